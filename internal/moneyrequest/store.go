package moneyrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/walletcore/internal/apperr"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "request_not_found", "money request not found")
	errStale    = apperr.New(apperr.KindStateConflict, "request_state_changed", "money request changed concurrently")
)

// Store persists money requests. Update is a compare-and-set against prev's
// status and claim time, which keeps terminal states write-once and lets only
// the current payment attempt settle a paying request.
type Store interface {
	Create(ctx context.Context, r Request) error
	Get(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, r Request, prev Request) error
	List(ctx context.Context, accountID string, role Role, limit int) ([]Request, error)
	// DuePending returns pending requests whose expiry is before now.
	DuePending(ctx context.Context, now time.Time, limit int) ([]Request, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	requests map[string]Request
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{requests: make(map[string]Request)}
}

func (s *memoryStore) Create(_ context.Context, r Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return apperr.New(apperr.KindStateConflict, "request_exists", "money request already exists")
	}
	s.requests[r.ID] = r
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return r, nil
}

func (s *memoryStore) Update(_ context.Context, r Request, prev Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok {
		return ErrNotFound.With("", map[string]any{"id": r.ID})
	}
	if cur.Status != prev.Status || !sameClaim(cur.ClaimedAt, prev.ClaimedAt) {
		return errStale
	}
	s.requests[r.ID] = r
	return nil
}

func (s *memoryStore) List(_ context.Context, accountID string, role Role, limit int) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Request
	for _, r := range s.requests {
		if (role == RoleIncoming && r.PayerID == accountID) || (role == RoleOutgoing && r.RequesterID == accountID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) DuePending(_ context.Context, now time.Time, limit int) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Request
	for _, r := range s.requests {
		if r.Status == StatusPending && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sameClaim(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
