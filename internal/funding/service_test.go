package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/money"
)

type decliningAcquirer struct{}

func (decliningAcquirer) AuthorizeCardIn(context.Context, CardInAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Approved: false}, nil
}

func newLedger(t *testing.T) *ledger.Service {
	t.Helper()
	svc := ledger.NewService(account.NewMemoryStore(), nil)
	if _, err := svc.Open(context.Background(), ledger.OpenInput{ID: "acct-1", DailyLimit: 1_000_000, MonthlyLimit: 5_000_000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	return svc
}

var bounds = money.Bounds{Min: 100, Max: 5_000_000}

func TestServiceCardInIsIdempotent(t *testing.T) {
	ctx := context.Background()
	led := newLedger(t)
	service := NewService(led, StaticAcquirer{}, bounds, logging.Discard())

	in := CardInInput{
		AccountID:  "acct-1",
		Amount:     10_000,
		CardNumber: "4111 1111 1111 1111",
		Expiry:     "12/29",
		CVV:        "123",
		ClientTxID: "dup",
	}
	res, err := service.CardIn(ctx, in)
	if err != nil {
		t.Fatalf("card in: %v", err)
	}
	if res.Balance != 10_000 {
		t.Fatalf("expected balance 10000, got %d", res.Balance)
	}

	again, err := service.CardIn(ctx, in)
	if err != nil {
		t.Fatalf("repeat card in: %v", err)
	}
	if again.EntryID != res.EntryID {
		t.Fatalf("expected the original entry %s, got %s", res.EntryID, again.EntryID)
	}
	if again.AcquirerReference != res.AcquirerReference {
		t.Fatalf("repeat charge should keep acquirer reference %s, got %s", res.AcquirerReference, again.AcquirerReference)
	}
	balance, err := led.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10_000 {
		t.Fatalf("repeat must not credit twice, balance %d", balance)
	}
}

func TestServiceCardInRejections(t *testing.T) {
	ctx := context.Background()
	led := newLedger(t)

	cases := []struct {
		name     string
		acquirer Acquirer
		in       CardInInput
		want     error
	}{
		{"short card", nil, CardInInput{AccountID: "acct-1", Amount: 1_000, CardNumber: "4111"}, ErrInvalidCard},
		{"letters", nil, CardInInput{AccountID: "acct-1", Amount: 1_000, CardNumber: "4111abcd11111111"}, ErrInvalidCard},
		{"below min", nil, CardInInput{AccountID: "acct-1", Amount: 50, CardNumber: "4111111111111111"}, apperr.New(apperr.KindValidation, "amount_out_of_bounds", "")},
		{"declined", decliningAcquirer{}, CardInInput{AccountID: "acct-1", Amount: 1_000, CardNumber: "4111111111111111"}, ErrDeclined},
		{"unknown account", nil, CardInInput{AccountID: "missing", Amount: 1_000, CardNumber: "4111111111111111"}, account.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := NewService(led, tc.acquirer, bounds, logging.Discard())
			if _, err := service.CardIn(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMaskCard(t *testing.T) {
	if got := maskCard("4111 1111 1111 1234"); got != "****1234" {
		t.Fatalf("expected ****1234 got %s", got)
	}
	if got := maskCard("12"); got != "****" {
		t.Fatalf("expected **** got %s", got)
	}
}
