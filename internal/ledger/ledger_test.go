package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/walletcore/internal/account"
)

func newTestLedger(t *testing.T, ids ...string) *Service {
	t.Helper()
	l := NewService(account.NewMemoryStore(), nil)
	for _, id := range ids {
		if _, err := l.Open(context.Background(), OpenInput{ID: id, DailyLimit: 1_000_000, MonthlyLimit: 10_000_000}); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	return l
}

func assertConsistent(t *testing.T, l *Service, id string) {
	t.Helper()
	ctx := context.Background()
	bal, err := l.Balance(ctx, id)
	if err != nil {
		t.Fatalf("balance %s: %v", id, err)
	}
	entries, err := l.Entries(ctx, id)
	if err != nil {
		t.Fatalf("entries %s: %v", id, err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != bal {
		t.Fatalf("account %s: balance %d != sum of entries %d", id, bal, sum)
	}
	if bal < 0 {
		t.Fatalf("account %s: negative balance %d", id, bal)
	}
}

func TestCommitMaintainsBalance(t *testing.T) {
	l := newTestLedger(t, "a", "b")
	ctx := context.Background()

	if _, err := l.Deposit(ctx, "a", 10_000, "seed-a"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	res, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 1_500, Reference: "client-1"})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if res.DebitBalance != 8_500 {
		t.Fatalf("expected debit balance 8500, got %d", res.DebitBalance)
	}
	if res.CreditBalance != 1_500 {
		t.Fatalf("expected credit balance 1500, got %d", res.CreditBalance)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(res.Entries))
	}
	if res.Entries[0].Amount != -res.Entries[1].Amount {
		t.Fatalf("entries are not of equal magnitude: %+v", res.Entries)
	}

	assertConsistent(t, l, "a")
	assertConsistent(t, l, "b")
}

func TestCommitIsIdempotentOnReference(t *testing.T) {
	l := newTestLedger(t, "a", "b")
	ctx := context.Background()
	if _, err := l.Deposit(ctx, "a", 5_000, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	first, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 500, Reference: "dup"})
	if err != nil {
		t.Fatalf("initial commit failed: %v", err)
	}

	guardCalls := 0
	guard := func(context.Context, account.Unit, time.Time) error {
		guardCalls++
		return nil
	}
	second, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 500, Reference: "dup"}, guard)
	if err != nil {
		t.Fatalf("replayed commit failed: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay flag")
	}
	if guardCalls != 0 {
		t.Fatalf("guards must not run on replay")
	}
	if second.DebitBalance != first.DebitBalance || second.CreditBalance != first.CreditBalance {
		t.Fatalf("replay returned %+v, original %+v", second, first)
	}
	bal, _ := l.Balance(ctx, "a")
	if bal != 4_500 {
		t.Fatalf("expected single debit, balance=%d", bal)
	}
}

func TestCommitFailuresHaveNoEffect(t *testing.T) {
	l := newTestLedger(t, "a", "b")
	ctx := context.Background()
	if _, err := l.Deposit(ctx, "a", 1_000, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 1_001, Reference: "too-much"}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "missing", Amount: 10, Reference: "nf"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	guardErr := errors.New("vetoed")
	if _, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 10, Reference: "veto"},
		func(_ context.Context, u account.Unit, _ time.Time) error {
			row, _ := u.Account("a")
			row.DailySpent = 999
			return guardErr
		}); !errors.Is(err, guardErr) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if _, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "a", Amount: 10}); !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected same account error, got %v", err)
	}

	acct, err := l.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acct.Balance != 1_000 || acct.DailySpent != 0 {
		t.Fatalf("failed commits mutated the account: %+v", acct)
	}
	entries, _ := l.Entries(ctx, "b")
	if len(entries) != 0 {
		t.Fatalf("expected no entries on b, got %d", len(entries))
	}
}

func TestReserveDoesNotMutate(t *testing.T) {
	l := newTestLedger(t, "a")
	ctx := context.Background()
	if _, err := l.Deposit(ctx, "a", 700, "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := l.Reserve(ctx, "a", 700); err != nil {
		t.Fatalf("reserve within balance: %v", err)
	}
	if err := l.Reserve(ctx, "a", 701); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "a"); bal != 700 {
		t.Fatalf("reserve mutated balance: %d", bal)
	}
}

func TestConcurrentCommitsConserveMoney(t *testing.T) {
	l := newTestLedger(t, "a", "b")
	ctx := context.Background()
	l.Deposit(ctx, "a", 100_000, "seed-a")
	l.Deposit(ctx, "b", 100_000, "seed-b")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "a", "b"
			if i%2 == 1 {
				from, to = "b", "a"
			}
			if _, err := l.Commit(ctx, Commit{DebitAccountID: from, CreditAccountID: to, Amount: 500, Reference: fmt.Sprintf("tx-%d", i)}); err != nil {
				t.Errorf("commit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "a")
	b, _ := l.Balance(ctx, "b")
	if a+b != 200_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", a+b)
	}
	assertConsistent(t, l, "a")
	assertConsistent(t, l, "b")
}

func TestConcurrentOverdraftNeverGoesNegative(t *testing.T) {
	l := newTestLedger(t, "a", "b")
	ctx := context.Background()
	l.Deposit(ctx, "a", 1_000, "seed")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Commit(ctx, Commit{DebitAccountID: "a", CreditAccountID: "b", Amount: 300, Reference: fmt.Sprintf("od-%d", i)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("expected exactly 3 successful debits of 300 out of 1000, got %d", successes)
	}
	assertConsistent(t, l, "a")
}

func TestDepositIsIdempotent(t *testing.T) {
	l := newTestLedger(t, "a")
	ctx := context.Background()
	if _, err := l.Deposit(ctx, "a", 2_000, "card-in"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.Deposit(ctx, "a", 2_000, "card-in"); err != nil {
		t.Fatalf("repeat deposit: %v", err)
	}
	if bal, _ := l.Balance(ctx, "a"); bal != 2_000 {
		t.Fatalf("expected balance 2000, got %d", bal)
	}
}
