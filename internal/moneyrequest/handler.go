package moneyrequest

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/money"
)

// Handler exposes money request endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a money request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	PayerPhone  string          `json:"payer_phone" validate:"required,min=8,max=20"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=140"`
	// ExpiresIn is in seconds; zero uses the default lifetime.
	ExpiresIn int64 `json:"expires_in" validate:"gte=0"`
}

type payRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

type declineRequest struct {
	Reason string `json:"reason" validate:"max=140"`
}

type requestResponse struct {
	ID            string     `json:"id"`
	Reference     string     `json:"reference"`
	Status        Status     `json:"status"`
	RequesterID   string     `json:"requester_id"`
	PayerID       string     `json:"payer_id"`
	Amount        string     `json:"amount"`
	Description   string     `json:"description,omitempty"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	TransferID    string     `json:"transfer_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func toResponse(r Request) requestResponse {
	return requestResponse{
		ID:            r.ID,
		Reference:     r.Reference,
		Status:        r.Status,
		RequesterID:   r.RequesterID,
		PayerID:       r.PayerID,
		Amount:        money.Format(r.Amount),
		Description:   r.Description,
		DeclineReason: r.DeclineReason,
		TransferID:    r.TransferID,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ResolvedAt:    r.ResolvedAt,
	}
}

// Create opens a request addressed to a payer phone number.
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
	r, err := h.service.Create(c.UserContext(), CreateInput{
		RequesterID: uid,
		PayerPhone:  req.PayerPhone,
		Amount:      amount,
		Description: req.Description,
		ExpiresIn:   time.Duration(req.ExpiresIn) * time.Second,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(r))
}

// Get returns one request the caller is a party to.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	r, err := h.service.Get(c.UserContext(), c.Params("id"), uid)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r))
}

// List returns incoming (default) or outgoing requests.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	role := Role(c.Query("role", string(RoleIncoming)))
	items, err := h.service.List(c.UserContext(), uid, role, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	out := make([]requestResponse, 0, len(items))
	for _, r := range items {
		out = append(out, toResponse(r))
	}
	return c.JSON(fiber.Map{"requests": out})
}

// Pay settles a request with the payer's PIN.
func (h *Handler) Pay(c *fiber.Ctx) error {
	var req payRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	return h.resolve(c, ResolveInput{Action: ActionPay, Credential: req.PIN})
}

// Decline rejects a request as its payer.
func (h *Handler) Decline(c *fiber.Ctx) error {
	var req declineRequest
	if len(c.Body()) > 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	return h.resolve(c, ResolveInput{Action: ActionDecline, Reason: req.Reason})
}

// Cancel withdraws a request as its requester.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.resolve(c, ResolveInput{Action: ActionCancel})
}

func (h *Handler) resolve(c *fiber.Ctx, in ResolveInput) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	in.RequestID = c.Params("id")
	in.Actor = uid
	r, err := h.service.Resolve(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r))
}
