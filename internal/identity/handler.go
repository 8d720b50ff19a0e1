package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/httpx"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
	PIN   string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

type userResponse struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Phone     string `json:"phone"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(userResponse{UserID: user.ID, AccountID: user.ID, Phone: user.Phone})
}
