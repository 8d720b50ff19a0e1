package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/metrics"
)

// Metrics records request latency by route pattern.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(c.Method(), route, statusFor(c, err), time.Since(start))
		return err
	}
}

// statusFor predicts the status the error handler will write for err.
func statusFor(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return httpx.StatusOf(err)
}
