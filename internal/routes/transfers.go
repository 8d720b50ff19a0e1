package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/moneyrequest"
	"github.com/congo-pay/walletcore/internal/transfer"
)

// RegisterTransferRoutes mounts peer-to-peer transfer endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	g := r.Group("/transfers")
	g.Post("", h.Create)
	g.Post("/confirm", h.Confirm)
	g.Get("", h.List)
	g.Get("/:id", h.Get)
}

// RegisterRequestRoutes mounts money request endpoints.
func RegisterRequestRoutes(r fiber.Router, h *moneyrequest.Handler) {
	g := r.Group("/requests")
	g.Post("", h.Create)
	g.Get("", h.List)
	g.Get("/:id", h.Get)
	g.Post("/:id/pay", h.Pay)
	g.Post("/:id/decline", h.Decline)
	g.Post("/:id/cancel", h.Cancel)
}
