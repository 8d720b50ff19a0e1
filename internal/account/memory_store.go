package account

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	entries  map[string][]Entry
	byRef    map[string][]Entry

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	now func() time.Time
}

// NewMemoryStore creates a concurrency-safe in-memory account store. Each
// account is serialized by its own mutex.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
		byRef:    make(map[string][]Entry),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

func (s *memoryStore) lockFor(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	return s.locks[id]
}

func (s *memoryStore) Create(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acct.ID]; exists {
		return ErrExists
	}
	s.accounts[acct.ID] = acct
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return acct, nil
}

func (s *memoryStore) Entries(_ context.Context, accountID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrNotFound.With("", map[string]any{"id": accountID})
	}
	out := make([]Entry, len(s.entries[accountID]))
	copy(out, s.entries[accountID])
	return out, nil
}

func (s *memoryStore) Atomic(ctx context.Context, ids []string, fn func(ctx context.Context, u Unit) error) error {
	ordered := LockOrder(ids)
	for _, id := range ordered {
		lock := s.lockFor(id)
		lock.Lock()
		defer lock.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	u := &memoryUnit{store: s, rows: make(map[string]*Account, len(ordered))}
	s.mu.RLock()
	for _, id := range ordered {
		if acct, ok := s.accounts[id]; ok {
			row := acct
			u.rows[id] = &row
		}
	}
	s.mu.RUnlock()

	if err := fn(ctx, u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range u.staged {
		if e.Reference == "" {
			continue
		}
		for _, existing := range s.byRef[e.Reference] {
			if existing.AccountID == e.AccountID {
				return ErrDuplicateReference.With("", map[string]any{"reference": e.Reference})
			}
		}
	}
	now := s.now().UTC()
	for id, row := range u.rows {
		if *row == s.accounts[id] {
			continue
		}
		row.Version++
		row.UpdatedAt = now
		s.accounts[id] = *row
	}
	for _, e := range u.staged {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
		if e.Reference != "" {
			s.byRef[e.Reference] = append(s.byRef[e.Reference], e)
		}
	}
	return nil
}

type memoryUnit struct {
	store  *memoryStore
	rows   map[string]*Account
	staged []Entry
}

func (u *memoryUnit) Account(id string) (*Account, error) {
	row, ok := u.rows[id]
	if !ok {
		return nil, ErrNotFound.With("", map[string]any{"id": id})
	}
	return row, nil
}

func (u *memoryUnit) EntriesByReference(_ context.Context, reference string) ([]Entry, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	out := make([]Entry, len(u.store.byRef[reference]))
	copy(out, u.store.byRef[reference])
	return out, nil
}

func (u *memoryUnit) Append(entries ...Entry) {
	u.staged = append(u.staged, entries...)
}
