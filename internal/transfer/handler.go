package transfer

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/money"
)

// Handler exposes transfer endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a transfer handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type createRequest struct {
	RecipientPhone string          `json:"recipient_phone" validate:"required,min=8,max=20"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=140"`
	Secure         bool            `json:"secure"`
}

type confirmRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,numeric"`
}

type transferResponse struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	Kind           Kind       `json:"kind"`
	SenderID       string     `json:"sender_id"`
	RecipientID    string     `json:"recipient_id"`
	RecipientPhone string     `json:"recipient_phone,omitempty"`
	Amount         string     `json:"amount"`
	Description    string     `json:"description,omitempty"`
	FailureCode    string     `json:"failure_code,omitempty"`
	ChallengeID    string     `json:"challenge_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type resultResponse struct {
	TransferID    string    `json:"transfer_id"`
	Status        Status    `json:"status"`
	Reference     string    `json:"reference"`
	Amount        string    `json:"amount"`
	SenderBalance string    `json:"sender_balance"`
	CommittedAt   time.Time `json:"committed_at"`
	Replayed      bool      `json:"replayed,omitempty"`
}

func toResponse(t Transfer) transferResponse {
	out := transferResponse{
		ID:             t.ID,
		Status:         t.Status,
		Kind:           t.Kind,
		SenderID:       t.SenderID,
		RecipientID:    t.RecipientID,
		RecipientPhone: t.RecipientPhone,
		Amount:         money.Format(t.Amount),
		Description:    t.Description,
		FailureCode:    t.FailureCode,
		CreatedAt:      t.CreatedAt,
	}
	if t.Status == StatusAwaitingOTP {
		out.ChallengeID = t.ChallengeID
		exp := t.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

func toResultResponse(r Result) resultResponse {
	return resultResponse{
		TransferID:    r.TransferID,
		Status:        r.Status,
		Reference:     r.Reference,
		Amount:        money.Format(r.Amount),
		SenderBalance: money.Format(r.SenderBalance),
		CommittedAt:   r.CommittedAt,
		Replayed:      r.Replayed,
	}
}

// Create starts a transfer. Secure transfers answer 202 with the challenge to
// confirm, others 201 with the settled result.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount(req.Amount)
	if err != nil {
		return err
	}

	out, err := h.engine.CreateTransfer(c.UserContext(), CreateInput{
		SenderID:       uid,
		RecipientPhone: req.RecipientPhone,
		Amount:         amount,
		Description:    req.Description,
		Secure:         req.Secure,
	})
	if err != nil {
		return err
	}
	if out.Result != nil {
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"transfer": toResponse(out.Transfer),
			"result":   toResultResponse(*out.Result),
		})
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"transfer":     toResponse(out.Transfer),
		"challenge_id": out.ChallengeID,
		"expires_at":   out.ExpiresAt,
	})
}

// Confirm settles a secure transfer with its OTP.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.ConfirmAs(c.UserContext(), uid, req.ChallengeID, req.Code)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResultResponse(res))
}

// Get returns one transfer of the caller.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	t, err := h.engine.Get(c.UserContext(), c.Params("id"), uid)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(t))
}

// List returns the caller's recent outgoing transfers.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	items, err := h.engine.List(c.UserContext(), uid, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	out := make([]transferResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toResponse(t))
	}
	return c.JSON(fiber.Map{"transfers": out})
}
