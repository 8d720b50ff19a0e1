package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/auth"
	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/logging"
)

type staticTokens map[string]string

func (s staticTokens) Authenticate(_ context.Context, token string) (string, error) {
	uid, ok := s[token]
	if !ok {
		return "", auth.ErrInvalidToken
	}
	return uid, nil
}

func TestJWTAuthSetsUserID(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Use(JWTAuth(staticTokens{"good": "user-1"}))
	app.Get("/me", func(c *fiber.Ctx) error {
		uid, err := httpx.UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(uid)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic good", fiber.StatusUnauthorized},
		{"invalid", "Bearer bad", fiber.StatusUnauthorized},
		{"valid", "Bearer good", fiber.StatusOK},
		{"lowercase scheme", "bearer good", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.StatusCode)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	login := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"phone":"`+phone+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if status := login("+911111111111"); status != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i+1, status)
		}
	}
	if status := login("+911111111111"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", status)
	}
	if status := login("+912222222222"); status != fiber.StatusOK {
		t.Fatalf("other phone should not be limited, got %d", status)
	}
	if ttl := mr.TTL(loginRatePrefix + "+911111111111"); ttl <= 0 {
		t.Fatalf("expected expiry on the counter, got %v", ttl)
	}
}
