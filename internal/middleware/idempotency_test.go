package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, func()) {
	t.Helper()
	return setupApp(t, IdempotencyConfig{TTL: time.Minute, Required: true})
}

func setupApp(t *testing.T, cfg IdempotencyConfig) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	calls := 0
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals(httpx.UserIDKey, uid)
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, cfg, logger))
	app.Post("/resource", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": calls})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, cleanup
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	body := strings.NewReader("{}")
	req := httptest.NewRequest(fiber.MethodPost, "/resource", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "abc123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	// Second request should return the cached response without invoking handler again.
	req2 := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req2.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req2.Header.Set(idempotencyKeyHeader, "abc123")

	resp2, err := app.Test(req2)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if resp2.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, resp2.StatusCode)
	}

	cachedPayload, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("read cached body: %v", err)
	}
	resp2.Body.Close()

	if string(cachedPayload) != string(payload) {
		t.Fatalf("expected cached payload %s got %s", string(payload), string(cachedPayload))
	}

	var decoded map[string]any
	if err := json.Unmarshal(cachedPayload, &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func post(t *testing.T, app *fiber.App, key, user string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyOptionalPassesThrough(t *testing.T) {
	app, cleanup := setupApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	_, first := post(t, app, "", "")
	_, second := post(t, app, "", "")
	if first == second {
		t.Fatalf("requests without a key must both reach the handler, got %s twice", first)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, cleanup := setupApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	_, alice := post(t, app, "k-1", "alice")
	_, aliceAgain := post(t, app, "k-1", "alice")
	_, bob := post(t, app, "k-1", "bob")

	if alice != aliceAgain {
		t.Fatalf("expected replay for alice, got %s then %s", alice, aliceAgain)
	}
	if bob == alice {
		t.Fatalf("bob must not see alice's cached response %s", bob)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, cleanup := setupApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	status, _ := post(t, app, "k-2", "alice")
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader(`{"amount":"5"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "k-2")
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, resp.StatusCode)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	fail := true
	app := fiber.New()
	app.Use(Idempotency(cache, IdempotencyConfig{TTL: time.Minute}, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		if fail {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func() int {
		req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
		req.Header.Set(idempotencyKeyHeader, "retry-me")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := send(); got != fiber.StatusServiceUnavailable {
		t.Fatalf("expected %d got %d", fiber.StatusServiceUnavailable, got)
	}
	fail = false
	if got := send(); got != fiber.StatusCreated {
		t.Fatalf("retry should reach the handler, got %d", got)
	}
}
