package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/httpx"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	idempotencyPrefix       = "idempotency:v2:"
	inProgressMarker        = "__in_progress__"
	cacheTimeout            = 2 * time.Second
)

// storedResponse is the replayable outcome of the first request under a key.
// Fingerprint binds the key to the method, path and body that produced it.
type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers"`
}

// IdempotencyConfig tunes the Idempotency middleware.
type IdempotencyConfig struct {
	TTL time.Duration
	// Required rejects unsafe requests without an Idempotency-Key header.
	Required bool
}

// Idempotency replays the stored response of an earlier unsafe request sent
// with the same Idempotency-Key. Keys are scoped to the authenticated user, and
// reusing a key for a different request is rejected. Failed requests release
// their key so the client may retry.
func Idempotency(cache *redis.Client, cfg IdempotencyConfig, logger *slog.Logger) fiber.Handler {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			if cfg.Required {
				return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
			}
			return c.Next()
		}
		cacheKey := scopedKey(c, key)
		fingerprint := fingerprintOf(c)
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			return replay(c, cached, fingerprint, log)
		case !errors.Is(err, redis.Nil):
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Fingerprint: fingerprint,
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})
		payload, err := json.Marshal(stored)
		if err != nil {
			release(cache, cacheKey)
			log.Error("encode idempotent response", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The side effect already happened; answer normally and let the key lapse.
			log.Error("persist idempotent response", slog.Any("error", err))
			release(cache, cacheKey)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cached, fingerprint string, log *slog.Logger) error {
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn("decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used for a different request")
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set(idempotencyReplayHeader, "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func scopedKey(c *fiber.Ctx, key string) string {
	if uid, ok := c.Locals(httpx.UserIDKey).(string); ok && uid != "" {
		return idempotencyPrefix + uid + ":" + key
	}
	return idempotencyPrefix + key
}

func fingerprintOf(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
