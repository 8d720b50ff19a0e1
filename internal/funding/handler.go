package funding

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/money"
)

// Handler exposes HTTP endpoints for card funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type cardInRequest struct {
	CardNumber string          `json:"card_number" validate:"required"`
	Expiry     string          `json:"expiry"`
	CVV        string          `json:"cvv"`
	Amount     decimal.Decimal `json:"amount"`
	ClientTxID string          `json:"client_tx_id" validate:"max=64"`
}

type fundingResponse struct {
	EntryID           string    `json:"entry_id"`
	Reference         string    `json:"reference"`
	Balance           string    `json:"balance"`
	AcquirerReference string    `json:"acquirer_reference"`
	CompletedAt       time.Time `json:"completed_at"`
}

// CardIn processes top-ups of the caller's account funded by cards.
func (h *Handler) CardIn(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	var req cardInRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount(req.Amount)
	if err != nil {
		return err
	}

	result, err := h.service.CardIn(c.UserContext(), CardInInput{
		AccountID:  uid,
		Amount:     amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fundingResponse{
		EntryID:           result.EntryID,
		Reference:         result.Reference,
		Balance:           money.Format(result.Balance),
		AcquirerReference: result.AcquirerReference,
		CompletedAt:       result.CompletedAt,
	})
}
