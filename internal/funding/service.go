package funding

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/money"
)

var (
	ErrInvalidCard = apperr.Validation("invalid_card", "card number must be 12 to 19 digits")
	ErrDeclined    = apperr.New(apperr.KindForbidden, "card_declined", "card top-up declined")
)

// Depositor credits an account from outside the ledger, idempotently on reference.
type Depositor interface {
	Deposit(ctx context.Context, accountID string, amount int64, reference string) (account.Entry, error)
}

// Service tops wallets up from cards through the acquirer.
type Service struct {
	ledger   Depositor
	acquirer Acquirer
	bounds   money.Bounds
	logger   *slog.Logger
}

// NewService prepares a funding service. A nil acquirer approves everything.
func NewService(ledger Depositor, acquirer Acquirer, bounds money.Bounds, logger *slog.Logger) *Service {
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	return &Service{ledger: ledger, acquirer: acquirer, bounds: bounds, logger: logger}
}

// CardInInput captures the required data for a card top-up. Repeating a
// ClientTxID for the same account credits it once.
type CardInInput struct {
	AccountID  string
	Amount     int64
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// Result represents the domain outcome of a card top-up.
type Result struct {
	EntryID           string
	Reference         string
	Balance           int64
	AcquirerReference string
	CompletedAt       time.Time
}

// CardIn authorizes and records a card top-up into the account.
func (s *Service) CardIn(ctx context.Context, input CardInInput) (Result, error) {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return Result{}, err
	}
	if err := s.bounds.Validate(input.Amount); err != nil {
		return Result{}, err
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	reference := "topup:" + input.AccountID + ":" + input.ClientTxID
	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		IdempotencyKey: reference,
		AccountID:      input.AccountID,
		CardNumber:     input.CardNumber,
		Expiry:         input.Expiry,
		CVV:            input.CVV,
		Amount:         input.Amount,
	})
	if err != nil {
		return Result{}, apperr.Unavailable(err)
	}
	if !decision.Approved {
		s.logger.Info("card top-up declined",
			slog.String("account_id", input.AccountID),
			slog.String("card", maskCard(input.CardNumber)),
			slog.String("reason", decision.Reason),
		)
		if decision.Reason != "" {
			return Result{}, ErrDeclined.With("", map[string]any{"reason": decision.Reason})
		}
		return Result{}, ErrDeclined
	}

	entry, err := s.ledger.Deposit(ctx, input.AccountID, input.Amount, reference)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("card top-up recorded",
		slog.String("account_id", input.AccountID),
		slog.String("reference", reference),
		slog.Int64("amount", entry.Amount),
	)
	return Result{
		EntryID:           entry.ID,
		Reference:         reference,
		Balance:           entry.BalanceAfter,
		AcquirerReference: decision.Reference,
		CompletedAt:       entry.CreatedAt,
	}, nil
}

// maskCard keeps the last four digits for logs.
func maskCard(card string) string {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) <= 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return ErrInvalidCard
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidCard
		}
	}
	return nil
}
