package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const backendMemory = "memory"

// RegisterHealthRoutes adds the readiness endpoint. Backends that are not
// configured report "memory" and never fail the check.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		dbStatus, redisStatus := backendMemory, backendMemory
		if d.DB != nil {
			dbStatus = probe(d.DB.Ping(ctx))
		}
		if d.Cache != nil {
			redisStatus = probe(d.Cache.Ping(ctx).Err())
		}
		status := http.StatusOK
		if !healthy(dbStatus) || !healthy(redisStatus) {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func probe(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func healthy(s string) bool {
	return s == "ok" || s == backendMemory
}
