// Package otp issues and verifies short-lived, single-use numeric codes bound
// to one specific intent.
//
// Only an HMAC of the code is stored. The raw code leaves the gate through a
// Deliverer and is never returned to the caller of Issue.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/metrics"
)

// Purpose scopes a challenge. At most one unconsumed challenge exists per
// owner and purpose.
type Purpose string

const PurposeTransfer Purpose = "transfer"

var (
	ErrNotFound        = apperr.New(apperr.KindNotFound, "otp_challenge_not_found", "challenge not found")
	ErrExpired         = apperr.New(apperr.KindOTP, "otp_expired", "code expired, request a new one")
	ErrMismatch        = apperr.New(apperr.KindOTP, "otp_mismatch", "code does not match")
	ErrAlreadyConsumed = apperr.New(apperr.KindOTP, "otp_already_consumed", "code already used")

	errAttemptsExhausted = ErrExpired.With("", map[string]any{"reason": "attempts_exhausted"})
)

// Payload is the intent a challenge authorizes.
type Payload struct {
	Purpose     Purpose `json:"purpose"`
	RecipientID string  `json:"recipient_id"`
	Amount      int64   `json:"amount"`
	Reference   string  `json:"reference"`
}

// Challenge is the stored state of one issued code.
type Challenge struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Payload   Payload   `json:"payload"`
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"-"`
	Consumed  bool      `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Issued is what the caller of Issue learns about a new challenge.
type Issued struct {
	ChallengeID string
	ExpiresAt   time.Time
}

// Config tunes the gate.
type Config struct {
	Secret      []byte
	TTL         time.Duration
	Length      int
	MaxAttempts int
}

// Gate issues and verifies challenges.
type Gate struct {
	store     Store
	deliverer Deliverer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate builds a gate. Zero config values fall back to a 600s TTL, six
// digits and five attempts.
func NewGate(store Store, deliverer Deliverer, cfg Config, logger *slog.Logger, now func() time.Time) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = 600 * time.Second
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, deliverer: deliverer, cfg: cfg, logger: logger, now: now}
}

// Bind runs once a challenge is stored and before its code is delivered, so
// the caller can record the challenge id where a confirmation will look it up.
type Bind func(ctx context.Context, issued Issued) error

// Issue creates a challenge for owner bound to payload, supersedes the
// previous one for the same purpose and delivers the code out of band. bind
// may be nil. If bind or delivery fails the new challenge is discarded and
// the superseded one is active again.
func (g *Gate) Issue(ctx context.Context, ownerID string, payload Payload, bind Bind) (Issued, error) {
	if ownerID == "" {
		return Issued{}, apperr.Validation("owner_required", "challenge owner is required")
	}
	if payload.Purpose == "" {
		payload.Purpose = PurposeTransfer
	}
	code, err := g.generate()
	if err != nil {
		return Issued{}, fmt.Errorf("generate otp: %w", err)
	}

	now := g.now().UTC()
	c := Challenge{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Payload:   payload,
		ExpiresAt: now.Add(g.cfg.TTL),
		CreatedAt: now,
	}
	c.CodeHash = g.hash(c.ID, code)
	issued := Issued{ChallengeID: c.ID, ExpiresAt: c.ExpiresAt}

	previous, err := g.store.Active(ctx, ownerID, payload.Purpose)
	if err != nil {
		return Issued{}, err
	}
	if err := g.store.Save(ctx, c); err != nil {
		return Issued{}, err
	}
	if bind != nil {
		if err := bind(ctx, issued); err != nil {
			g.discard(ctx, c, previous)
			return Issued{}, err
		}
	}
	if err := g.deliverer.Deliver(ctx, Delivery{
		OwnerID:     ownerID,
		ChallengeID: c.ID,
		Code:        code,
		Purpose:     payload.Purpose,
		ExpiresAt:   c.ExpiresAt,
	}); err != nil {
		g.discard(ctx, c, previous)
		return Issued{}, apperr.Unavailable(fmt.Errorf("deliver otp: %w", err))
	}

	g.logger.Info("otp issued",
		slog.String("challenge_id", c.ID),
		slog.String("account_id", ownerID),
		slog.String("purpose", string(payload.Purpose)),
	)
	return issued, nil
}

func (g *Gate) discard(ctx context.Context, c Challenge, previous string) {
	if err := g.store.Discard(context.WithoutCancel(ctx), c, previous); err != nil {
		g.logger.Warn("discard undelivered otp",
			slog.String("challenge_id", c.ID),
			slog.Any("error", err),
		)
	}
}

// Verify checks code against the challenge and, on success, consumes it and
// returns the payload bound at issue time. Every verification counts against
// MaxAttempts before the code is compared, so parallel guesses cannot exceed
// it. Concurrent verifications of the same challenge succeed at most once.
func (g *Gate) Verify(ctx context.Context, challengeID, code string) (Payload, error) {
	c, err := g.store.Get(ctx, challengeID)
	if err != nil {
		return Payload{}, err
	}
	if c.Consumed {
		return Payload{}, g.fail("already_consumed", ErrAlreadyConsumed)
	}
	if !g.now().Before(c.ExpiresAt) {
		return Payload{}, g.fail("expired", ErrExpired.With("", map[string]any{"reason": "expired"}))
	}
	active, err := g.store.Active(ctx, c.OwnerID, c.Payload.Purpose)
	if err != nil {
		return Payload{}, err
	}
	if active != c.ID {
		return Payload{}, g.fail("expired", ErrExpired.With("", map[string]any{"reason": "superseded"}))
	}
	if c.Attempts >= g.cfg.MaxAttempts {
		return Payload{}, g.fail("expired", errAttemptsExhausted)
	}

	attempts, err := g.store.RecordAttempt(ctx, c.ID)
	if err != nil {
		return Payload{}, err
	}
	if attempts > g.cfg.MaxAttempts {
		return Payload{}, g.fail("expired", errAttemptsExhausted)
	}
	if !hmac.Equal([]byte(c.CodeHash), []byte(g.hash(c.ID, code))) {
		return Payload{}, g.fail("mismatch", ErrMismatch.With("", map[string]any{"attempts_remaining": g.cfg.MaxAttempts - attempts}))
	}

	won, err := g.store.Consume(ctx, c.ID, g.cfg.MaxAttempts)
	if errors.Is(err, ErrExpired) {
		return Payload{}, g.fail("expired", err)
	}
	if err != nil {
		return Payload{}, err
	}
	if !won {
		return Payload{}, g.fail("already_consumed", ErrAlreadyConsumed)
	}
	metrics.OTPVerification("success")
	g.logger.Info("otp verified", slog.String("challenge_id", c.ID), slog.String("account_id", c.OwnerID))
	return c.Payload, nil
}

func (g *Gate) fail(result string, err error) error {
	metrics.OTPVerification(result)
	return err
}

func (g *Gate) generate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.cfg.Length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", g.cfg.Length, n), nil
}

func (g *Gate) hash(challengeID, code string) string {
	mac := hmac.New(sha256.New, g.cfg.Secret)
	mac.Write([]byte(challengeID))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
