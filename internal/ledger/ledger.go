package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
)

var (
	// ErrInsufficientFunds occurs when the debit account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds")

	// ErrAccountNotFound occurs when either side of a posting does not exist.
	ErrAccountNotFound = account.ErrNotFound

	// ErrSameAccount rejects postings whose debit and credit side coincide.
	ErrSameAccount = apperr.New(apperr.KindValidation, "same_account", "debit and credit account must differ")

	// ErrInvalidAmount rejects non-positive postings.
	ErrInvalidAmount = apperr.New(apperr.KindValidation, "amount_not_positive", "amount must be positive")
)

// Commit describes a balanced movement of Amount from DebitAccountID to
// CreditAccountID. Reference is the idempotency key of the posting.
type Commit struct {
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Reference       string
}

// Result captures the outcome of a posting.
type Result struct {
	Reference     string
	DebitBalance  int64
	CreditBalance int64
	Entries       []account.Entry
	CommittedAt   time.Time
	// Replayed is set when the reference had already been committed and the
	// original outcome was returned without any new effect.
	Replayed bool
}

// Guard runs inside the same atomic unit as a posting, after the rows are
// locked and before any entry is staged. A non-nil error aborts the posting.
type Guard func(ctx context.Context, u account.Unit, now time.Time) error

// OpenInput captures the data required to open an account.
type OpenInput struct {
	ID           string
	DailyLimit   int64
	MonthlyLimit int64
}

// Service is the source of truth for account balances.
type Service struct {
	store account.Store
	now   func() time.Time
}

// NewService builds a ledger over store. A nil clock defaults to time.Now.
func NewService(store account.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Open creates an account with a zero balance.
func (s *Service) Open(ctx context.Context, in OpenInput) (account.Account, error) {
	if in.ID == "" {
		return account.Account{}, apperr.Validation("account_id_required", "account id is required")
	}
	if in.DailyLimit < 0 || in.MonthlyLimit < 0 {
		return account.Account{}, apperr.Validation("limit_negative", "limits must not be negative")
	}
	now := s.now().UTC()
	acct := account.Account{
		ID:           in.ID,
		DailyLimit:   in.DailyLimit,
		MonthlyLimit: in.MonthlyLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// Get returns the current account row.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.store.Get(ctx, id)
}

// Balance returns the committed balance of an account.
func (s *Service) Balance(ctx context.Context, id string) (int64, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Entries lists the committed entries of an account.
func (s *Service) Entries(ctx context.Context, id string) ([]account.Entry, error) {
	return s.store.Entries(ctx, id)
}

// Reserve verifies that the account could currently cover amount. It never
// mutates; the authoritative check happens again inside Commit.
func (s *Service) Reserve(ctx context.Context, id string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if acct.Balance < amount {
		return insufficient(acct.Balance, amount)
	}
	return nil
}

// Deposit credits an account from outside the ledger, writing a single
// deposit entry. It is idempotent on reference.
func (s *Service) Deposit(ctx context.Context, accountID string, amount int64, reference string) (account.Entry, error) {
	if amount <= 0 {
		return account.Entry{}, ErrInvalidAmount
	}
	if reference == "" {
		reference = "deposit:" + uuid.NewString()
	}
	var out account.Entry
	err := s.store.Atomic(ctx, []string{accountID}, func(ctx context.Context, u account.Unit) error {
		prior, err := u.EntriesByReference(ctx, reference)
		if err != nil {
			return err
		}
		for _, e := range prior {
			if e.AccountID == accountID {
				out = e
				return nil
			}
		}
		row, err := u.Account(accountID)
		if err != nil {
			return err
		}
		row.Balance += amount
		out = account.Entry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       amount,
			BalanceAfter: row.Balance,
			Type:         account.EntryDeposit,
			Reference:    reference,
			Status:       account.EntryStatusCommitted,
			CreatedAt:    s.now().UTC(),
		}
		u.Append(out)
		return nil
	})
	if err != nil {
		return account.Entry{}, err
	}
	return out, nil
}

// Commit atomically debits one account, credits the other and writes the two
// entries. Guards run inside the same unit. A reference that was already
// committed returns the original result and runs no guard.
func (s *Service) Commit(ctx context.Context, c Commit, guards ...Guard) (Result, error) {
	if c.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if c.DebitAccountID == c.CreditAccountID {
		return Result{}, ErrSameAccount
	}
	if c.Reference == "" {
		c.Reference = uuid.NewString()
	}

	var res Result
	err := s.store.Atomic(ctx, []string{c.DebitAccountID, c.CreditAccountID}, func(ctx context.Context, u account.Unit) error {
		prior, err := u.EntriesByReference(ctx, c.Reference)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			res = replay(c, prior)
			return nil
		}

		debit, err := u.Account(c.DebitAccountID)
		if err != nil {
			return err
		}
		credit, err := u.Account(c.CreditAccountID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		for _, guard := range guards {
			if err := guard(ctx, u, now); err != nil {
				return err
			}
		}

		if debit.Balance < c.Amount {
			return insufficient(debit.Balance, c.Amount)
		}
		debit.Balance -= c.Amount
		credit.Balance += c.Amount

		entries := []account.Entry{
			{
				ID:           uuid.NewString(),
				AccountID:    debit.ID,
				Amount:       -c.Amount,
				BalanceAfter: debit.Balance,
				Type:         account.EntryDebit,
				Reference:    c.Reference,
				Status:       account.EntryStatusCommitted,
				CreatedAt:    now,
			},
			{
				ID:           uuid.NewString(),
				AccountID:    credit.ID,
				Amount:       c.Amount,
				BalanceAfter: credit.Balance,
				Type:         account.EntryCredit,
				Reference:    c.Reference,
				Status:       account.EntryStatusCommitted,
				CreatedAt:    now,
			},
		}
		u.Append(entries...)

		res = Result{
			Reference:     c.Reference,
			DebitBalance:  debit.Balance,
			CreditBalance: credit.Balance,
			Entries:       entries,
			CommittedAt:   now,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func replay(c Commit, prior []account.Entry) Result {
	res := Result{Reference: c.Reference, Entries: prior, Replayed: true}
	for _, e := range prior {
		switch e.Type {
		case account.EntryDebit:
			res.DebitBalance = e.BalanceAfter
		case account.EntryCredit:
			res.CreditBalance = e.BalanceAfter
		}
		res.CommittedAt = e.CreatedAt
	}
	return res
}

func insufficient(balance, amount int64) error {
	return ErrInsufficientFunds.With("", map[string]any{"balance": balance, "required": amount})
}
