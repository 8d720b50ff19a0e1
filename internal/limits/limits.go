// Package limits tracks rolling daily and monthly spend per account and
// vetoes transfers that would exceed the configured caps.
//
// Windows are calendar days and calendar months in a single fixed reference
// zone (Policy.Location), never the caller's local zone. A window has rolled
// over when the account's last transaction falls in an earlier day or month
// of that zone than the current time.
package limits

import (
	"context"
	"time"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/money"
)

const (
	LimitPerTransaction = "per_transaction"
	LimitDaily          = "daily"
	LimitMonthly        = "monthly"
)

var (
	ErrPerTransactionLimit = apperr.New(apperr.KindLimitExceeded, LimitPerTransaction, "per-transaction limit exceeded")
	ErrDailyLimit          = apperr.New(apperr.KindLimitExceeded, LimitDaily, "daily limit exceeded")
	ErrMonthlyLimit        = apperr.New(apperr.KindLimitExceeded, LimitMonthly, "monthly limit exceeded")
)

// Policy holds the global limit configuration.
type Policy struct {
	Bounds   money.Bounds
	Location *time.Location
}

// Headroom is what an account may still spend in the current windows.
type Headroom struct {
	DailyLimit       int64
	MonthlyLimit     int64
	DailyRemaining   int64
	MonthlyRemaining int64
}

// Summary is the getLimits view of an account.
type Summary struct {
	Headroom
	AccountID       string
	Balance         int64
	DailyResetsAt   time.Time
	MonthlyResetsAt time.Time
}

// Tracker owns the spend counters of every account.
type Tracker struct {
	store  account.Store
	policy Policy
	now    func() time.Time
}

// NewTracker builds a limit tracker. A nil location means UTC.
func NewTracker(store account.Store, policy Policy, now func() time.Time) *Tracker {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, policy: policy, now: now}
}

// Check reports the headroom left after spending amount, without recording anything.
func (t *Tracker) Check(ctx context.Context, accountID string, amount int64) (Headroom, error) {
	acct, err := t.store.Get(ctx, accountID)
	if err != nil {
		return Headroom{}, err
	}
	t.rollover(&acct, t.now())
	if err := t.admit(acct, amount); err != nil {
		return headroom(acct), err
	}
	acct.DailySpent += amount
	acct.MonthlySpent += amount
	return headroom(acct), nil
}

// RecordSpend atomically rolls stale windows over, checks and increments the
// counters. Two concurrent calls can never jointly exceed a cap.
func (t *Tracker) RecordSpend(ctx context.Context, accountID string, amount int64) (Headroom, error) {
	var out Headroom
	err := t.store.Atomic(ctx, []string{accountID}, func(ctx context.Context, u account.Unit) error {
		h, err := t.apply(u, accountID, amount, t.now())
		out = h
		return err
	})
	return out, err
}

// Guard returns a ledger guard that records the spend inside the same atomic
// unit as the posting, so the counters move iff the balance moves.
func (t *Tracker) Guard(accountID string, amount int64) ledger.Guard {
	return func(_ context.Context, u account.Unit, now time.Time) error {
		_, err := t.apply(u, accountID, amount, now)
		return err
	}
}

// Summary returns balance and remaining headroom for the current windows.
func (t *Tracker) Summary(ctx context.Context, accountID string) (Summary, error) {
	acct, err := t.store.Get(ctx, accountID)
	if err != nil {
		return Summary{}, err
	}
	now := t.now()
	t.rollover(&acct, now)
	local := now.In(t.policy.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.policy.Location)
	month := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, t.policy.Location)
	return Summary{
		Headroom:        headroom(acct),
		AccountID:       acct.ID,
		Balance:         acct.Balance,
		DailyResetsAt:   day.AddDate(0, 0, 1).UTC(),
		MonthlyResetsAt: month.AddDate(0, 1, 0).UTC(),
	}, nil
}

// SetLimits changes the caps of an account. Spend already recorded in the
// current windows is kept.
func (t *Tracker) SetLimits(ctx context.Context, accountID string, daily, monthly int64) (Headroom, error) {
	if daily < 0 || monthly < 0 {
		return Headroom{}, apperr.Validation("limit_negative", "limits must not be negative")
	}
	if daily > monthly {
		return Headroom{}, apperr.Validation("limit_order", "daily limit must not exceed monthly limit")
	}
	var out Headroom
	err := t.store.Atomic(ctx, []string{accountID}, func(_ context.Context, u account.Unit) error {
		row, err := u.Account(accountID)
		if err != nil {
			return err
		}
		row.DailyLimit = daily
		row.MonthlyLimit = monthly
		out = headroom(*row)
		return nil
	})
	return out, err
}

func (t *Tracker) apply(u account.Unit, accountID string, amount int64, now time.Time) (Headroom, error) {
	row, err := u.Account(accountID)
	if err != nil {
		return Headroom{}, err
	}
	t.rollover(row, now)
	if err := t.admit(*row, amount); err != nil {
		return headroom(*row), err
	}
	row.DailySpent += amount
	row.MonthlySpent += amount
	row.LastTransactionAt = now.UTC()
	return headroom(*row), nil
}

func (t *Tracker) admit(acct account.Account, amount int64) error {
	b := t.policy.Bounds
	if amount <= 0 || amount < b.Min || amount > b.Max {
		return ErrPerTransactionLimit.With("", map[string]any{
			"limit":     LimitPerTransaction,
			"min":       money.Format(b.Min),
			"max":       money.Format(b.Max),
			"remaining": money.Format(b.Max),
		})
	}
	h := headroom(acct)
	if amount > h.DailyRemaining {
		return ErrDailyLimit.With("", map[string]any{
			"limit":     LimitDaily,
			"remaining": money.Format(h.DailyRemaining),
			"requested": money.Format(amount),
		})
	}
	if amount > h.MonthlyRemaining {
		return ErrMonthlyLimit.With("", map[string]any{
			"limit":     LimitMonthly,
			"remaining": money.Format(h.MonthlyRemaining),
			"requested": money.Format(amount),
		})
	}
	return nil
}

// rollover zeroes the counters of windows that have passed since the last transaction.
func (t *Tracker) rollover(acct *account.Account, now time.Time) {
	if acct.LastTransactionAt.IsZero() {
		return
	}
	last := acct.LastTransactionAt.In(t.policy.Location)
	cur := now.In(t.policy.Location)
	if !cur.After(last) {
		return
	}
	if cur.Year() != last.Year() || cur.Month() != last.Month() {
		acct.MonthlySpent = 0
		acct.DailySpent = 0
		return
	}
	if cur.Day() != last.Day() {
		acct.DailySpent = 0
	}
}

func headroom(acct account.Account) Headroom {
	return Headroom{
		DailyLimit:       acct.DailyLimit,
		MonthlyLimit:     acct.MonthlyLimit,
		DailyRemaining:   nonNegative(acct.DailyLimit - acct.DailySpent),
		MonthlyRemaining: nonNegative(acct.MonthlyLimit - acct.MonthlySpent),
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
