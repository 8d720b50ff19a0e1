package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRatePrefix = "rl:login:v1:"

// LoginRateLimit limits login attempts per phone or IP using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		key := loginRatePrefix + subject
		cnt, err := cache.Incr(ctx, key).Result()
		if err == nil && cnt == 1 {
			err = cache.Expire(ctx, key, time.Minute).Err()
		}
		if err != nil {
			// fail open
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
