package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/otp"
	"github.com/congo-pay/walletcore/internal/routes"
)

type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *codeBox) Deliver(_ context.Context, d otp.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[d.ChallengeID] = d.Code
	return nil
}

func (b *codeBox) code(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[id]
}

func testConfig() config.Config {
	return config.Config{
		AppName:              "walletcore-test",
		AppEnv:               "test",
		LoginRateLimit:       20,
		IdempotencyTTL:       time.Hour,
		JWTSecret:            "access-secret",
		RefreshSecret:        "refresh-secret",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      time.Hour,
		OTPSecret:            "otp-secret",
		OTPTTL:               5 * time.Minute,
		OTPLength:            6,
		OTPMaxAttempts:       3,
		MinAmount:            100,
		MaxAmount:            5_000_000,
		SecureThreshold:      1_000_000,
		DefaultDailyLimit:    10_000_000,
		DefaultMonthlyLimit:  50_000_000,
		LimitLocation:        time.UTC,
		RequestDefaultTTL:    72 * time.Hour,
		RequestMaxTTL:        720 * time.Hour,
		RequestSweepInterval: time.Minute,
		RetryAttempts:        3,
		RetryBaseDelay:       time.Millisecond,
	}
}

type harness struct {
	t     *testing.T
	app   *fiber.App
	codes *codeBox
}

func setup(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	codes := &codeBox{codes: map[string]string{}}
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	services, err := routes.Setup(app, routes.Deps{
		Cfg:       testConfig(),
		Cache:     cache,
		Logger:    logging.Discard(),
		Deliverer: codes,
	})
	require.NoError(t, err)
	require.NotNil(t, services.Requests)
	return &harness{t: t, app: app, codes: codes}
}

func (h *harness) do(method, path, token string, body any, headers ...string) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (h *harness) signUp(phone, pin string) (string, string) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/v1/identity/register", "", map[string]string{"phone": phone, "pin": pin})
	require.Equal(h.t, http.StatusCreated, status, body)
	status, body = h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"phone": phone, "pin": pin})
	require.Equal(h.t, http.StatusOK, status, body)
	return body["account_id"].(string), body["access_token"].(string)
}

func TestWalletFlow(t *testing.T) {
	h := setup(t)
	_, alice := h.signUp("+91 98000 00001", "4321")
	_, bob := h.signUp("+919800000002", "8765")

	topup := map[string]any{"amount": "1000", "card_number": "4111111111111111", "client_tx_id": "tx-1"}
	status, body := h.do(http.MethodPost, "/api/v1/accounts/me/topups", alice, topup, "Idempotency-Key", "topup-1")
	require.Equal(t, http.StatusCreated, status, body)
	require.Equal(t, "1000.00", body["balance"])

	status, replay := h.do(http.MethodPost, "/api/v1/accounts/me/topups", alice, topup, "Idempotency-Key", "topup-1")
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, body["entry_id"], replay["entry_id"])

	status, body = h.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{
		"recipient_phone": "+919800000002",
		"amount":          "250",
		"description":     "lunch",
	})
	require.Equal(t, http.StatusCreated, status, body)
	result := body["result"].(map[string]any)
	require.Equal(t, "750.00", result["sender_balance"])
	transferID := result["transfer_id"].(string)

	status, body = h.do(http.MethodGet, "/api/v1/transfers/"+transferID, bob, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "committed", body["status"])

	status, body = h.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{
		"recipient_phone": "+919800000002",
		"amount":          "100",
		"secure":          true,
	})
	require.Equal(t, http.StatusAccepted, status, body)
	challengeID := body["challenge_id"].(string)
	code := h.codes.code(challengeID)
	require.NotEmpty(t, code)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body = h.do(http.MethodPost, "/api/v1/transfers/confirm", alice, map[string]string{"challenge_id": challengeID, "code": wrong})
	require.Equal(t, http.StatusUnauthorized, status, body)
	require.Equal(t, "otp_mismatch", body["code"])

	status, body = h.do(http.MethodPost, "/api/v1/transfers/confirm", bob, map[string]string{"challenge_id": challengeID, "code": code})
	require.Equal(t, http.StatusForbidden, status, body)

	status, body = h.do(http.MethodPost, "/api/v1/transfers/confirm", alice, map[string]string{"challenge_id": challengeID, "code": code})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "650.00", body["sender_balance"])

	status, body = h.do(http.MethodPost, "/api/v1/transfers/confirm", alice, map[string]string{"challenge_id": challengeID, "code": code})
	require.Equal(t, http.StatusUnauthorized, status, body)

	status, body = h.do(http.MethodGet, "/api/v1/accounts/me/limits", alice, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "99650.00", body["daily_remaining"])

	status, body = h.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{
		"recipient_phone": "+919800000002",
		"amount":          "5000",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status, body)
	require.Equal(t, "insufficient_funds", body["code"])
}

func TestMoneyRequestFlow(t *testing.T) {
	h := setup(t)
	_, payer := h.signUp("+919800000011", "4321")
	requesterID, requester := h.signUp("+919800000012", "8765")

	status, body := h.do(http.MethodPost, "/api/v1/accounts/me/topups", payer, map[string]any{"amount": "200", "card_number": "4111111111111111"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = h.do(http.MethodPost, "/api/v1/requests", requester, map[string]any{
		"payer_phone": "+91 98000-00011",
		"amount":      "50",
		"description": "movie",
	})
	require.Equal(t, http.StatusCreated, status, body)
	requestID := body["id"].(string)
	require.Equal(t, "pending", body["status"])

	status, body = h.do(http.MethodGet, "/api/v1/requests?role=incoming", payer, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Len(t, body["requests"], 1)

	status, body = h.do(http.MethodPost, "/api/v1/requests/"+requestID+"/pay", requester, map[string]string{"pin": "8765"})
	require.Equal(t, http.StatusForbidden, status, body)

	status, body = h.do(http.MethodPost, "/api/v1/requests/"+requestID+"/pay", payer, map[string]string{"pin": "1111"})
	require.Equal(t, http.StatusUnauthorized, status, body)

	status, body = h.do(http.MethodPost, "/api/v1/requests/"+requestID+"/pay", payer, map[string]string{"pin": "4321"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "paid", body["status"])
	require.Equal(t, requesterID, body["requester_id"])

	status, body = h.do(http.MethodPost, "/api/v1/requests/"+requestID+"/cancel", requester, nil)
	require.Equal(t, http.StatusConflict, status, body)

	status, body = h.do(http.MethodGet, "/api/v1/accounts/me", requester, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "50.00", body["account"].(map[string]any)["balance"])
}

func TestAuthBoundary(t *testing.T) {
	h := setup(t)

	status, _ := h.do(http.MethodGet, "/api/v1/accounts/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	_, token := h.signUp("+919800000021", "4321")
	status, body := h.do(http.MethodGet, "/api/v1/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = h.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, _ = h.do(http.MethodGet, "/api/v1/accounts/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"phone": "+919800000021", "pin": "0000"})
	require.Equal(t, http.StatusUnauthorized, status, body)
}

func TestHealthReportsBackends(t *testing.T) {
	h := setup(t)

	status, body := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	backends := body["status"].(map[string]any)
	require.Equal(t, "memory", backends["postgres"])
	require.Equal(t, "ok", backends["redis"])

	status, _ = h.do(http.MethodGet, "/api/v1/ping", "", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	_, err := routes.Setup(fiber.New(), routes.Deps{Cfg: cfg, Logger: logging.Discard()})
	require.Error(t, err)
}
