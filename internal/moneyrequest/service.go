package moneyrequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/transfer"
)

const (
	maxDescriptionRunes = 140
	sweepBatch          = 100
	defaultClaimTTL     = 2 * time.Minute
)

var (
	ErrSelfRequest  = apperr.Validation("self_request", "cannot request money from yourself")
	ErrNotPayer     = apperr.Forbidden("not_payer", "only the payer can do this")
	ErrNotRequester = apperr.Forbidden("not_requester", "only the requester can do this")
	ErrNotAParty    = apperr.Forbidden("not_a_party", "request belongs to other accounts")
)

// Payer settles a request by moving money from payer to requester.
type Payer interface {
	PayRequest(ctx context.Context, in transfer.PayInput) (transfer.Result, error)
}

// Directory resolves a phone number to an account id.
type Directory interface {
	ResolvePhone(ctx context.Context, phone string) (string, error)
}

// Config tunes request lifetimes. ClaimTTL is how long a payment attempt
// holds a request before its payer may retry over it.
type Config struct {
	Bounds     money.Bounds
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	ClaimTTL   time.Duration
}

// Service is the money request state machine.
type Service struct {
	store     Store
	payer     Payer
	directory Directory
	notifier  notification.Emitter
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

// NewService constructs a request service. A nil now uses time.Now.
func NewService(cfg Config, store Store, payer Payer, directory Directory, notifier notification.Emitter, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 72 * time.Hour
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		cfg.MaxTTL = cfg.DefaultTTL
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	return &Service{
		store:     store,
		payer:     payer,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       now,
		cfg:       cfg,
	}
}

// CreateInput describes a new request. A zero ExpiresIn uses the default TTL.
type CreateInput struct {
	RequesterID string
	PayerPhone  string
	Amount      int64
	Description string
	ExpiresIn   time.Duration
}

// Create persists a pending request addressed to the account behind PayerPhone.
func (s *Service) Create(ctx context.Context, in CreateInput) (Request, error) {
	if in.RequesterID == "" {
		return Request{}, apperr.Validation("requester_required", "requester is required")
	}
	if err := s.cfg.Bounds.Validate(in.Amount); err != nil {
		return Request{}, err
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionRunes {
		return Request{}, apperr.Validation("description_too_long", "description must be at most %d characters", maxDescriptionRunes)
	}
	ttl := in.ExpiresIn
	switch {
	case ttl == 0:
		ttl = s.cfg.DefaultTTL
	case ttl < 0:
		return Request{}, apperr.Validation("expiry_not_positive", "expiry must be positive")
	case ttl > s.cfg.MaxTTL:
		return Request{}, apperr.Validation("expiry_too_long", "expiry must be at most %s", s.cfg.MaxTTL)
	}

	payerID, err := s.directory.ResolvePhone(ctx, in.PayerPhone)
	if err != nil {
		return Request{}, err
	}
	if payerID == in.RequesterID {
		return Request{}, ErrSelfRequest
	}

	now := s.now().UTC()
	r := Request{
		ID:          uuid.NewString(),
		RequesterID: in.RequesterID,
		PayerID:     payerID,
		PayerPhone:  in.PayerPhone,
		Amount:      in.Amount,
		Description: in.Description,
		Status:      StatusPending,
		Reference:   newReference(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return Request{}, err
	}
	metrics.MoneyRequest(string(StatusPending))
	s.logger.Info("money request created",
		slog.String("request_id", r.ID),
		slog.String("requester_id", r.RequesterID),
		slog.String("payer_id", r.PayerID),
		slog.Int64("amount", r.Amount),
	)
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Event{
		Type:      notification.TypeRequestCreated,
		AccountID: r.PayerID,
		Title:     "Money requested",
		Message:   fmt.Sprintf("You have a request for ₹%s", money.Format(r.Amount)),
		Metadata:  s.metadata(r),
	})
	return r, nil
}

// Get returns a request visible to actor.
func (s *Service) Get(ctx context.Context, id, actor string) (Request, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor != r.RequesterID && actor != r.PayerID {
		return Request{}, ErrNotAParty
	}
	return r, nil
}

// List returns the requests actor receives (incoming) or sent (outgoing),
// newest first.
func (s *Service) List(ctx context.Context, actor string, role Role, limit int) ([]Request, error) {
	if role != RoleIncoming && role != RoleOutgoing {
		return nil, apperr.Validation("invalid_role", "role must be %s or %s", RoleIncoming, RoleOutgoing)
	}
	rows, err := s.store.List(ctx, actor, role, limit)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if rows[i], err = s.expireDue(ctx, r); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Pay settles a pending request on behalf of its payer. The request is
// claimed (paying) for the duration of the settlement, so decline, cancel and
// expiry cannot resolve it underneath a posting. On failure the claim is
// released and the request is pending again.
func (s *Service) Pay(ctx context.Context, id, actor, credential string) (Request, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor != r.PayerID {
		return Request{}, ErrNotPayer
	}
	claimed, err := s.claim(ctx, r)
	if err != nil {
		return Request{}, err
	}

	res, err := s.payer.PayRequest(ctx, transfer.PayInput{
		PayerID:     r.PayerID,
		RequesterID: r.RequesterID,
		Amount:      r.Amount,
		Reference:   r.ID,
		Credential:  credential,
		Description: r.Description,
	})
	if err != nil {
		s.logger.Info("money request payment failed",
			slog.String("request_id", r.ID),
			slog.String("code", codeOf(err)),
		)
		if _, relErr := s.transition(context.WithoutCancel(ctx), claimed, StatusPending); relErr != nil {
			s.logger.Warn("release money request claim",
				slog.String("request_id", r.ID),
				slog.Any("error", relErr),
			)
		}
		return Request{}, err
	}

	claimed.TransferID = res.TransferID
	paid, err := s.transition(ctx, claimed, StatusPaid)
	if errors.Is(err, errStale) {
		// A newer attempt took the claim over; the posting is shared by reference.
		cur, getErr := s.store.Get(ctx, r.ID)
		if getErr != nil {
			return Request{}, getErr
		}
		if cur.Status == StatusPaid {
			return cur, nil
		}
		s.logger.Warn("money request claim lost after settlement",
			slog.String("request_id", r.ID),
			slog.String("status", string(cur.Status)),
			slog.String("transfer_id", res.TransferID),
		)
		return Request{}, pending(cur)
	}
	if err != nil {
		return Request{}, err
	}
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Event{
		Type:      notification.TypeRequestPaid,
		AccountID: paid.RequesterID,
		Title:     "Request paid",
		Message:   fmt.Sprintf("Your request for ₹%s was paid", money.Format(paid.Amount)),
		Metadata:  s.metadata(paid),
	})
	return paid, nil
}

// claim moves a pending request to paying. A claim older than ClaimTTL is
// left by an attempt that never finished; its payer may take it over, which
// cannot post twice because request payments are keyed by the request id.
func (s *Service) claim(ctx context.Context, r Request) (Request, error) {
	switch {
	case r.Status == StatusPending:
		out, err := s.transition(ctx, r, StatusPaying)
		if err != nil {
			return Request{}, s.conflict(ctx, r.ID, err)
		}
		return out, nil
	case r.Status == StatusPaying && r.ClaimedAt != nil && s.now().Sub(*r.ClaimedAt) > s.cfg.ClaimTTL:
		out := r
		now := stamp(s.now())
		out.ClaimedAt = &now
		if err := s.store.Update(ctx, out, r); err != nil {
			return Request{}, s.conflict(ctx, r.ID, err)
		}
		s.logger.Warn("money request claim taken over",
			slog.String("request_id", r.ID),
			slog.Time("claimed_at", *r.ClaimedAt),
		)
		return out, nil
	default:
		return Request{}, pending(r)
	}
}

// Decline rejects a pending request on behalf of its payer.
func (s *Service) Decline(ctx context.Context, id, actor, reason string) (Request, error) {
	if utf8.RuneCountInString(reason) > maxDescriptionRunes {
		return Request{}, apperr.Validation("reason_too_long", "reason must be at most %d characters", maxDescriptionRunes)
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor != r.PayerID {
		return Request{}, ErrNotPayer
	}
	if err := pending(r); err != nil {
		return Request{}, err
	}
	r.DeclineReason = reason
	if r, err = s.transition(ctx, r, StatusDeclined); err != nil {
		return Request{}, s.conflict(ctx, id, err)
	}
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Event{
		Type:      notification.TypeRequestDeclined,
		AccountID: r.RequesterID,
		Title:     "Request declined",
		Message:   fmt.Sprintf("Your request for ₹%s was declined", money.Format(r.Amount)),
		Metadata:  s.metadata(r),
	})
	return r, nil
}

// Cancel withdraws a pending request on behalf of its requester.
func (s *Service) Cancel(ctx context.Context, id, actor string) (Request, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor != r.RequesterID {
		return Request{}, ErrNotRequester
	}
	if err := pending(r); err != nil {
		return Request{}, err
	}
	if r, err = s.transition(ctx, r, StatusCancelled); err != nil {
		return Request{}, s.conflict(ctx, id, err)
	}
	notification.Dispatch(ctx, s.notifier, s.logger, notification.Event{
		Type:      notification.TypeRequestCancelled,
		AccountID: r.PayerID,
		Title:     "Request cancelled",
		Message:   fmt.Sprintf("A request for ₹%s was cancelled", money.Format(r.Amount)),
		Metadata:  s.metadata(r),
	})
	return r, nil
}

// ResolveInput is one resolution attempt. Credential is used by pay and
// Reason by decline.
type ResolveInput struct {
	RequestID  string
	Actor      string
	Action     Action
	Credential string
	Reason     string
}

// Resolve dispatches a resolution action.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Request, error) {
	switch in.Action {
	case ActionPay:
		return s.Pay(ctx, in.RequestID, in.Actor, in.Credential)
	case ActionDecline:
		return s.Decline(ctx, in.RequestID, in.Actor, in.Reason)
	case ActionCancel:
		return s.Cancel(ctx, in.RequestID, in.Actor)
	default:
		return Request{}, apperr.Validation("invalid_action", "unknown action %q", in.Action)
	}
}

// Sweep expires every pending request past its expiry and reports how many
// it moved.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		due, err := s.store.DuePending(ctx, s.now(), sweepBatch)
		if err != nil {
			return expired, err
		}
		moved := 0
		for _, r := range due {
			out, err := s.expireDue(ctx, r)
			if err != nil {
				return expired, err
			}
			if out.Status == StatusExpired {
				moved++
			}
		}
		expired += moved
		if len(due) < sweepBatch || moved == 0 {
			return expired, nil
		}
	}
}

// Run sweeps every interval until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("money request sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.Info("money requests expired", slog.Int("count", n))
			}
		}
	}
}

// load fetches a request and applies lazy expiry.
func (s *Service) load(ctx context.Context, id string) (Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	return s.expireDue(ctx, r)
}

func (s *Service) expireDue(ctx context.Context, r Request) (Request, error) {
	if r.Status != StatusPending || !s.now().After(r.ExpiresAt) {
		return r, nil
	}
	out, err := s.transition(ctx, r, StatusExpired)
	if errors.Is(err, errStale) {
		return s.store.Get(ctx, r.ID)
	}
	if err != nil {
		return Request{}, err
	}
	meta := s.metadata(out)
	notification.Dispatch(ctx, s.notifier, s.logger,
		notification.Event{
			Type:      notification.TypeRequestExpired,
			AccountID: out.RequesterID,
			Title:     "Request expired",
			Message:   fmt.Sprintf("Your request for ₹%s expired", money.Format(out.Amount)),
			Metadata:  meta,
		},
		notification.Event{
			Type:      notification.TypeRequestExpired,
			AccountID: out.PayerID,
			Title:     "Request expired",
			Message:   fmt.Sprintf("A request for ₹%s expired", money.Format(out.Amount)),
			Metadata:  meta,
		},
	)
	return out, nil
}

func (s *Service) transition(ctx context.Context, r Request, next Status) (Request, error) {
	if !r.Status.CanTransition(next) {
		return r, apperr.StateConflict(string(r.Status), fmt.Sprintf("money request cannot move from %s to %s", r.Status, next))
	}
	prev := r
	now := stamp(s.now())
	r.Status = next
	switch next {
	case StatusPaying:
		r.ClaimedAt = &now
	case StatusPending:
		r.ClaimedAt = nil
	}
	if next.Terminal() {
		r.ResolvedAt = &now
	}
	if err := s.store.Update(ctx, r, prev); err != nil {
		return r, err
	}
	metrics.MoneyRequest(string(next))
	s.logger.Info("money request transitioned",
		slog.String("request_id", r.ID),
		slog.String("status", string(next)),
	)
	return r, nil
}

// conflict turns a lost compare-and-set into the state the winner left behind.
func (s *Service) conflict(ctx context.Context, id string, err error) error {
	if !errors.Is(err, errStale) {
		return err
	}
	cur, getErr := s.store.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	if conflictErr := pending(cur); conflictErr != nil {
		return conflictErr
	}
	return err
}

func (s *Service) metadata(r Request) map[string]string {
	meta := map[string]string{
		"request_id": r.ID,
		"reference":  r.Reference,
		"amount":     money.Format(r.Amount),
	}
	if r.TransferID != "" {
		meta["transfer_id"] = r.TransferID
	}
	return meta
}

// stamp truncates to the precision Postgres keeps, so stored claim times
// compare equal to the ones held in memory.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func pending(r Request) error {
	switch r.Status {
	case StatusPending:
		return nil
	case StatusPaying:
		return apperr.StateConflict(string(StatusPaying), "money request payment is in progress")
	}
	return apperr.StateConflict(string(r.Status), "money request is "+string(r.Status))
}

func newReference() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func codeOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
