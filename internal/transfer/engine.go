// Package transfer orchestrates money movement between accounts: validation,
// limit checks, optional OTP authorization and the atomic ledger commit.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/limits"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
)

const maxDescription = 140

var (
	ErrSelfTransfer      = apperr.Validation("self_transfer", "cannot transfer to your own account")
	ErrOTPRequired       = apperr.Validation("otp_required", "amount requires a secure transfer")
	ErrInvalidCredential = apperr.Unauthenticated("invalid_credential", "credential rejected")
)

// Directory resolves phone numbers to account ids.
type Directory interface {
	ResolvePhone(ctx context.Context, phone string) (string, error)
}

// CredentialVerifier checks a secondary credential such as a PIN.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, accountID, credential string) (bool, error)
}

// Ledger is the part of the ledger service the engine drives.
type Ledger interface {
	Reserve(ctx context.Context, accountID string, amount int64) error
	Commit(ctx context.Context, c ledger.Commit, guards ...ledger.Guard) (ledger.Result, error)
}

// Limits is the part of the limit tracker the engine drives.
type Limits interface {
	Check(ctx context.Context, accountID string, amount int64) (limits.Headroom, error)
	Guard(accountID string, amount int64) ledger.Guard
}

// Challenger issues and verifies OTP challenges.
type Challenger interface {
	Issue(ctx context.Context, ownerID string, payload otp.Payload, bind otp.Bind) (otp.Issued, error)
	Verify(ctx context.Context, challengeID, code string) (otp.Payload, error)
}

// RetryPolicy bounds the retries of transient store errors.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Config tunes the engine.
type Config struct {
	Bounds money.Bounds
	// SecureThreshold is the smallest amount that must go through OTP.
	SecureThreshold int64
	Retry           RetryPolicy
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Store       Store
	Ledger      Ledger
	Limits      Limits
	OTP         Challenger
	Directory   Directory
	Credentials CredentialVerifier
	Notifier    notification.Emitter
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine is the transfer state machine.
type Engine struct {
	store       Store
	ledger      Ledger
	limits      Limits
	otp         Challenger
	directory   Directory
	credentials CredentialVerifier
	notifier    notification.Emitter
	logger      *slog.Logger
	now         func() time.Time
	cfg         Config
}

// NewEngine wires an engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 25 * time.Millisecond
	}
	return &Engine{
		store:       deps.Store,
		ledger:      deps.Ledger,
		limits:      deps.Limits,
		otp:         deps.OTP,
		directory:   deps.Directory,
		credentials: deps.Credentials,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		now:         deps.Now,
		cfg:         cfg,
	}
}

// CreateInput is a transfer request from a sender.
type CreateInput struct {
	SenderID       string
	RecipientPhone string
	Amount         int64
	Description    string
	Secure         bool
}

// CreateResult carries either the challenge to confirm or the settled result.
type CreateResult struct {
	Transfer    Transfer
	ChallengeID string
	ExpiresAt   time.Time
	Result      *Result
}

// CreateTransfer validates a transfer and either starts the OTP challenge or,
// for a non-secure transfer, settles it right away. Validation, directory and
// limit failures leave no trace.
func (e *Engine) CreateTransfer(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.SenderID == "" {
		return CreateResult{}, apperr.Validation("sender_required", "sender is required")
	}
	if in.RecipientPhone == "" {
		return CreateResult{}, apperr.Validation("recipient_required", "recipient phone is required")
	}
	if err := e.cfg.Bounds.Validate(in.Amount); err != nil {
		return CreateResult{}, err
	}
	if utf8.RuneCountInString(in.Description) > maxDescription {
		return CreateResult{}, apperr.Validation("description_too_long", "description must be at most %d characters", maxDescription)
	}
	if !in.Secure && e.cfg.SecureThreshold > 0 && in.Amount >= e.cfg.SecureThreshold {
		return CreateResult{}, ErrOTPRequired.With("", map[string]any{"threshold": money.Format(e.cfg.SecureThreshold)})
	}

	recipientID, err := e.directory.ResolvePhone(ctx, in.RecipientPhone)
	if err != nil {
		return CreateResult{}, err
	}
	if recipientID == in.SenderID {
		return CreateResult{}, ErrSelfTransfer
	}
	if _, err := e.limits.Check(ctx, in.SenderID, in.Amount); err != nil {
		return CreateResult{}, err
	}
	if err := e.ledger.Reserve(ctx, in.SenderID, in.Amount); err != nil {
		return CreateResult{}, err
	}

	now := e.now().UTC()
	id := uuid.NewString()
	t := Transfer{
		ID:             id,
		SenderID:       in.SenderID,
		RecipientID:    recipientID,
		RecipientPhone: in.RecipientPhone,
		Amount:         in.Amount,
		Description:    in.Description,
		Kind:           KindP2P,
		Secure:         in.Secure,
		Status:         StatusInitiated,
		Reference:      id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.retry(ctx, func() error { return e.store.Create(ctx, t) }); err != nil {
		return CreateResult{}, err
	}
	metrics.Transfer(string(StatusInitiated))

	if !in.Secure {
		if t, err = e.transition(ctx, t, StatusAuthorized, ""); err != nil {
			return CreateResult{}, err
		}
		res, err := e.settle(ctx, t)
		if err != nil {
			return CreateResult{}, err
		}
		t.Status = StatusCommitted
		return CreateResult{Transfer: t, Result: &res}, nil
	}

	// The challenge id is stored on the transfer before the code goes out, so
	// a confirmation can never outrun it.
	issued, err := e.otp.Issue(ctx, in.SenderID, otp.Payload{
		Purpose:     otp.PurposeTransfer,
		RecipientID: recipientID,
		Amount:      in.Amount,
		Reference:   t.ID,
	}, func(ctx context.Context, issued otp.Issued) error {
		awaiting := t
		awaiting.ChallengeID = issued.ChallengeID
		awaiting.ExpiresAt = issued.ExpiresAt
		awaiting, err := e.transition(ctx, awaiting, StatusAwaitingOTP, "")
		if err != nil {
			return err
		}
		t = awaiting
		return nil
	})
	if err != nil {
		e.fail(ctx, t, err)
		return CreateResult{}, err
	}
	return CreateResult{Transfer: t, ChallengeID: issued.ChallengeID, ExpiresAt: issued.ExpiresAt}, nil
}

// ConfirmTransfer verifies the code of a pending secure transfer and settles
// exactly the intent bound to the challenge. A consumed code is never
// reusable, even when the commit that follows fails.
func (e *Engine) ConfirmTransfer(ctx context.Context, challengeID, code string) (Result, error) {
	return e.confirm(ctx, "", challengeID, code)
}

// ConfirmAs is ConfirmTransfer restricted to the sender of the transfer.
func (e *Engine) ConfirmAs(ctx context.Context, actor, challengeID, code string) (Result, error) {
	return e.confirm(ctx, actor, challengeID, code)
}

func (e *Engine) confirm(ctx context.Context, actor, challengeID, code string) (Result, error) {
	t, err := e.store.GetByChallenge(ctx, challengeID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, otp.ErrNotFound.With("", map[string]any{"id": challengeID})
	}
	if err != nil {
		return Result{}, err
	}
	if actor != "" && actor != t.SenderID {
		return Result{}, apperr.Forbidden("not_sender", "only the sender can confirm this transfer")
	}

	payload, err := e.otp.Verify(ctx, challengeID, code)
	if err != nil {
		if errors.Is(err, otp.ErrExpired) && t.Status == StatusAwaitingOTP {
			if _, terr := e.transition(ctx, t, StatusExpired, "otp_expired"); terr != nil && !errors.Is(terr, ErrStale) {
				e.logger.Warn("mark transfer expired", slog.String("transfer_id", t.ID), slog.Any("error", terr))
			}
		}
		return Result{}, err
	}

	if payload.Reference != t.ID || payload.RecipientID != t.RecipientID || payload.Amount != t.Amount {
		conflict := apperr.StateConflict("payload_mismatch", "challenge does not authorize this transfer")
		e.fail(ctx, t, conflict)
		return Result{}, conflict
	}

	if t, err = e.transition(ctx, t, StatusAuthorized, ""); err != nil {
		return Result{}, err
	}
	return e.settle(ctx, t)
}

// PayInput is a credential-gated settlement on behalf of a money request.
type PayInput struct {
	PayerID     string
	RequesterID string
	Amount      int64
	// Reference is the idempotency key of the posting.
	Reference   string
	Credential  string
	Description string
}

// PayRequest moves Amount from payer to requester after checking the payer's
// credential. Repeating a call with the same Reference never posts twice.
func (e *Engine) PayRequest(ctx context.Context, in PayInput) (Result, error) {
	if in.Reference == "" {
		return Result{}, apperr.Validation("reference_required", "reference is required")
	}
	if err := e.cfg.Bounds.Validate(in.Amount); err != nil {
		return Result{}, err
	}
	if in.PayerID == in.RequesterID {
		return Result{}, ErrSelfTransfer
	}
	ok, err := e.credentials.VerifyCredential(ctx, in.PayerID, in.Credential)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrInvalidCredential
	}

	now := e.now().UTC()
	t := Transfer{
		ID:          uuid.NewString(),
		SenderID:    in.PayerID,
		RecipientID: in.RequesterID,
		Amount:      in.Amount,
		Description: in.Description,
		Kind:        KindRequest,
		Status:      StatusInitiated,
		Reference:   in.Reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.retry(ctx, func() error { return e.store.Create(ctx, t) }); err != nil {
		return Result{}, err
	}
	metrics.Transfer(string(StatusInitiated))
	if t, err = e.transition(ctx, t, StatusAuthorized, ""); err != nil {
		return Result{}, err
	}
	return e.settle(ctx, t)
}

// Get returns a transfer visible to actor, expiring a stale OTP wait on the way.
func (e *Engine) Get(ctx context.Context, id, actor string) (Transfer, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if actor != t.SenderID && actor != t.RecipientID {
		return Transfer{}, apperr.Forbidden("not_a_party", "transfer belongs to other accounts")
	}
	if t.Status == StatusAwaitingOTP && !t.ExpiresAt.IsZero() && !e.now().Before(t.ExpiresAt) {
		expired, err := e.transition(ctx, t, StatusExpired, "otp_expired")
		if err == nil {
			return expired, nil
		}
		if !errors.Is(err, ErrStale) {
			return Transfer{}, err
		}
		return e.store.Get(ctx, id)
	}
	return t, nil
}

// List returns the most recent transfers sent by accountID.
func (e *Engine) List(ctx context.Context, accountID string, limit int) ([]Transfer, error) {
	return e.store.ListBySender(ctx, accountID, limit)
}

// settle commits an authorized transfer. The limit guard runs inside the
// ledger unit, so spend is recorded iff the balances move.
func (e *Engine) settle(ctx context.Context, t Transfer) (Result, error) {
	var res ledger.Result
	err := e.retry(ctx, func() error {
		var err error
		res, err = e.ledger.Commit(ctx, ledger.Commit{
			DebitAccountID:  t.SenderID,
			CreditAccountID: t.RecipientID,
			Amount:          t.Amount,
			Reference:       t.Reference,
		}, e.limits.Guard(t.SenderID, t.Amount))
		return err
	})
	if err != nil {
		e.fail(ctx, t, err)
		return Result{}, err
	}

	committed, err := e.transition(ctx, t, StatusCommitted, "")
	if err != nil {
		// The posting is final; only the transfer record lags behind.
		e.logger.Error("record committed transfer",
			slog.String("transfer_id", t.ID),
			slog.String("reference", t.Reference),
			slog.Any("error", err),
		)
		committed = t
	}

	out := Result{
		TransferID:    committed.ID,
		Status:        StatusCommitted,
		Reference:     res.Reference,
		Amount:        t.Amount,
		SenderBalance: res.DebitBalance,
		RecipientID:   t.RecipientID,
		CommittedAt:   res.CommittedAt,
		Replayed:      res.Replayed,
	}
	e.logger.Info("transfer committed",
		slog.String("transfer_id", t.ID),
		slog.String("sender_id", t.SenderID),
		slog.String("recipient_id", t.RecipientID),
		slog.Int64("amount", t.Amount),
		slog.Bool("replayed", res.Replayed),
	)
	if !res.Replayed {
		e.notifySucceeded(ctx, t)
	}
	return out, nil
}

func (e *Engine) notifySucceeded(ctx context.Context, t Transfer) {
	amount := money.Format(t.Amount)
	meta := map[string]string{"transfer_id": t.ID, "reference": t.Reference, "amount": amount}
	notification.Dispatch(ctx, e.notifier, e.logger,
		notification.Event{
			Type:      notification.TypeTransferSucceeded,
			AccountID: t.SenderID,
			Title:     "Money sent",
			Message:   fmt.Sprintf("You sent ₹%s", amount),
			Metadata:  meta,
		},
		notification.Event{
			Type:      notification.TypeTransferSucceeded,
			AccountID: t.RecipientID,
			Title:     "Money received",
			Message:   fmt.Sprintf("You received ₹%s", amount),
			Metadata:  meta,
		},
	)
}

// fail moves t to Failed and tells the sender. The cause is already being
// returned to the caller, so store errors here are only logged.
func (e *Engine) fail(ctx context.Context, t Transfer, cause error) {
	code := "internal"
	var appErr *apperr.Error
	if errors.As(cause, &appErr) && appErr.Code != "" {
		code = appErr.Code
	}
	if _, err := e.transition(ctx, t, StatusFailed, code); err != nil {
		e.logger.Warn("mark transfer failed", slog.String("transfer_id", t.ID), slog.Any("error", err))
	}
	e.logger.Info("transfer failed",
		slog.String("transfer_id", t.ID),
		slog.String("sender_id", t.SenderID),
		slog.String("failure_code", code),
	)
	notification.Dispatch(ctx, e.notifier, e.logger, notification.Event{
		Type:      notification.TypeTransferFailed,
		AccountID: t.SenderID,
		Title:     "Transfer failed",
		Message:   fmt.Sprintf("Your transfer of ₹%s could not be completed", money.Format(t.Amount)),
		Metadata:  map[string]string{"transfer_id": t.ID, "failure_code": code},
	})
}

func (e *Engine) transition(ctx context.Context, t Transfer, next Status, failureCode string) (Transfer, error) {
	if !t.Status.CanTransition(next) {
		return t, apperr.StateConflict(string(t.Status), fmt.Sprintf("transfer cannot move from %s to %s", t.Status, next))
	}
	from := t.Status
	t.Status = next
	t.FailureCode = failureCode
	t.UpdatedAt = e.now().UTC()
	if err := e.retry(ctx, func() error { return e.store.Update(ctx, t, from) }); err != nil {
		return t, err
	}
	metrics.Transfer(string(next))
	return t, nil
}

// retry runs op until it succeeds or fails with a non-transient error.
// Exhausted retries surface as ServiceUnavailable.
func (e *Engine) retry(ctx context.Context, op func() error) error {
	delay := e.cfg.Retry.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !apperr.IsTransient(err) {
			return err
		}
		if attempt >= e.cfg.Retry.Attempts {
			break
		}
		e.logger.Warn("transient store error, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return apperr.Unavailable(err)
}
