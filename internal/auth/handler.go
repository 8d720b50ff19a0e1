package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/identity"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
	PIN   string `json:"pin" validate:"required"`
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccountID    string `json:"account_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return err
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		UserID:       user.ID,
		AccountID:    user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: user.TokenVersion,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates the caller's tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, err := httpx.UserID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
