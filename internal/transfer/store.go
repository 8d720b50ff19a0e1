package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/walletcore/internal/apperr"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "transfer_not_found", "transfer not found")

	// ErrStale is returned when a status update lost a race. The stored
	// transfer is no longer in the expected state.
	ErrStale = apperr.New(apperr.KindStateConflict, "transfer_state_changed", "transfer state changed concurrently")
)

// Store persists transfers. Update is a compare-and-set on the status.
type Store interface {
	Create(ctx context.Context, t Transfer) error
	Get(ctx context.Context, id string) (Transfer, error)
	GetByChallenge(ctx context.Context, challengeID string) (Transfer, error)
	ListBySender(ctx context.Context, senderID string, limit int) ([]Transfer, error)
	// Update writes t if the stored transfer is still in status from.
	Update(ctx context.Context, t Transfer, from Status) error
}

type memoryStore struct {
	mu          sync.RWMutex
	transfers   map[string]Transfer
	byChallenge map[string]string
	order       []string
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{transfers: make(map[string]Transfer), byChallenge: make(map[string]string)}
}

func (s *memoryStore) Create(_ context.Context, t Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[t.ID]; exists {
		return apperr.New(apperr.KindStateConflict, "transfer_exists", "transfer already exists")
	}
	s.transfers[t.ID] = t
	s.order = append(s.order, t.ID)
	if t.ChallengeID != "" {
		s.byChallenge[t.ChallengeID] = t.ID
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return Transfer{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return t, nil
}

func (s *memoryStore) GetByChallenge(_ context.Context, challengeID string) (Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChallenge[challengeID]
	if !ok {
		return Transfer{}, ErrNotFound.With("", map[string]any{"challenge_id": challengeID})
	}
	return s.transfers[id], nil
}

func (s *memoryStore) ListBySender(_ context.Context, senderID string, limit int) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transfer
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.transfers[s.order[i]]
		if t.SenderID != senderID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, t Transfer, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.transfers[t.ID]
	if !ok {
		return ErrNotFound.With("", map[string]any{"id": t.ID})
	}
	if cur.Status != from {
		return ErrStale.With("", map[string]any{"status": string(cur.Status)})
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	s.transfers[t.ID] = t
	if t.ChallengeID != "" {
		s.byChallenge[t.ChallengeID] = t.ID
	}
	return nil
}
