package wallet

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/limits"
	"github.com/congo-pay/walletcore/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type limitsResponse struct {
	DailyLimit       string    `json:"daily_limit"`
	MonthlyLimit     string    `json:"monthly_limit"`
	DailyRemaining   string    `json:"daily_remaining"`
	MonthlyRemaining string    `json:"monthly_remaining"`
	DailyResetsAt    time.Time `json:"daily_resets_at"`
	MonthlyResetsAt  time.Time `json:"monthly_resets_at"`
}

type entryResponse struct {
	ID           string            `json:"id"`
	Type         account.EntryType `json:"type"`
	Amount       string            `json:"amount"`
	BalanceAfter string            `json:"balance_after"`
	Reference    string            `json:"reference"`
	CreatedAt    time.Time         `json:"created_at"`
}

type updateLimitsRequest struct {
	DailyLimit   decimal.Decimal `json:"daily_limit"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

func toLimitsResponse(s limits.Summary) limitsResponse {
	return limitsResponse{
		DailyLimit:       money.Format(s.DailyLimit),
		MonthlyLimit:     money.Format(s.MonthlyLimit),
		DailyRemaining:   money.Format(s.DailyRemaining),
		MonthlyRemaining: money.Format(s.MonthlyRemaining),
		DailyResetsAt:    s.DailyResetsAt,
		MonthlyResetsAt:  s.MonthlyResetsAt,
	}
}

// Me returns the caller's profile, balance and limits.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	o, err := h.service.Overview(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":            o.UserID,
			"phone":         o.Phone,
			"token_version": o.TokenVersion,
			"created_at":    o.CreatedAt,
			"last_login":    o.LastLogin,
		},
		"account": fiber.Map{
			"id":         o.Account.ID,
			"balance":    money.Format(o.Account.Balance),
			"created_at": o.Account.CreatedAt,
		},
		"limits": toLimitsResponse(o.Limits),
	})
}

// Limits returns the caller's remaining headroom.
func (h *Handler) Limits(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	s, err := h.service.Limits(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(toLimitsResponse(s))
}

// UpdateLimits changes the caller's daily and monthly caps.
func (h *Handler) UpdateLimits(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	var req updateLimitsRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	daily, err := httpx.Amount(req.DailyLimit)
	if err != nil {
		return err
	}
	monthly, err := httpx.Amount(req.MonthlyLimit)
	if err != nil {
		return err
	}
	s, err := h.service.UpdateLimits(c.UserContext(), uid, daily, monthly)
	if err != nil {
		return err
	}
	return c.JSON(toLimitsResponse(s))
}

// Entries returns the caller's ledger entries, newest first.
func (h *Handler) Entries(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Entries(c.UserContext(), uid, c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			Type:         e.Type,
			Amount:       money.Format(e.Amount),
			BalanceAfter: money.Format(e.BalanceAfter),
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"entries": out})
}
