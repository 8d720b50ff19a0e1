package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/logging"
)

type sample struct {
	Phone  string          `json:"phone" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("x", "bad"), http.StatusBadRequest},
		{apperr.NotFound("account", "a"), http.StatusNotFound},
		{apperr.New(apperr.KindLimitExceeded, "daily", ""), http.StatusUnprocessableEntity},
		{apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", ""), http.StatusUnprocessableEntity},
		{apperr.New(apperr.KindOTP, "otp_mismatch", ""), http.StatusUnauthorized},
		{apperr.New(apperr.KindOTP, "otp_expired", ""), http.StatusGone},
		{apperr.StateConflict("expired", "request expired"), http.StatusConflict},
		{apperr.Forbidden("not_payer", "nope"), http.StatusForbidden},
		{apperr.Unavailable(errors.New("db")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Fatalf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestBindAndErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Post("/", func(c *fiber.Ctx) error {
		var req sample
		if err := Bind(c, &req); err != nil {
			return err
		}
		amount, err := Amount(req.Amount)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"minor": amount})
	})

	do := func(body string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.StatusCode, out
	}

	status, out := do(`{"phone":"+911","amount":"12.50"}`)
	if status != http.StatusOK || out["minor"].(float64) != 1250 {
		t.Fatalf("unexpected response %d %v", status, out)
	}

	status, out = do(`{"amount":1}`)
	if status != http.StatusBadRequest || out["code"] != "invalid_request" {
		t.Fatalf("expected validation failure, got %d %v", status, out)
	}
	details, _ := out["details"].(map[string]any)
	if _, ok := details["phone"]; !ok {
		t.Fatalf("expected phone field in details, got %v", out)
	}

	status, out = do(`{"phone":"+911","amount":50000.015}`)
	if status != http.StatusBadRequest || out["code"] != "invalid_amount" {
		t.Fatalf("expected invalid amount, got %d %v", status, out)
	}
}
