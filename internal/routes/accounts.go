package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/funding"
	"github.com/congo-pay/walletcore/internal/wallet"
)

// RegisterAccountRoutes mounts the caller's account views and top-ups.
func RegisterAccountRoutes(r fiber.Router, w *wallet.Handler, f *funding.Handler) {
	me := r.Group("/accounts/me")
	me.Get("", w.Me)
	me.Get("/limits", w.Limits)
	me.Put("/limits", w.UpdateLimits)
	me.Get("/entries", w.Entries)
	me.Post("/topups", f.CardIn)
}
