package account

import (
	"context"
	"sort"

	"github.com/congo-pay/walletcore/internal/apperr"
)

var (
	// ErrNotFound is returned when an account row does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "account_not_found", "account not found")

	// ErrExists is returned when opening an account id that is already taken.
	ErrExists = apperr.New(apperr.KindStateConflict, "account_exists", "account already exists")

	// ErrDuplicateReference indicates entries for the reference were written
	// concurrently by another unit.
	ErrDuplicateReference = apperr.New(apperr.KindStateConflict, "duplicate_reference", "reference already posted")
)

// Unit is the view of a set of locked account rows handed to Store.Atomic.
// Mutations of the returned rows and appended entries become visible together
// when the unit function returns nil, and are discarded otherwise.
type Unit interface {
	// Account returns the locked row for id. Only ids passed to Atomic are available.
	Account(id string) (*Account, error)
	// EntriesByReference returns entries already committed under reference.
	EntriesByReference(ctx context.Context, reference string) ([]Entry, error)
	// Append stages entries for write.
	Append(entries ...Entry)
}

// Store persists account rows and their ledger entries.
type Store interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
	Entries(ctx context.Context, accountID string) ([]Entry, error)
	// Atomic locks the rows of ids in ascending id order and runs fn against them.
	Atomic(ctx context.Context, ids []string, fn func(ctx context.Context, u Unit) error) error
}

// LockOrder returns the distinct ids in the global lock acquisition order.
func LockOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
