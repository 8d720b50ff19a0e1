package otp

import (
	"context"
	"sync"
)

// Store persists challenges. RecordAttempt, Consume and Discard must be
// atomic per challenge id.
type Store interface {
	// Save stores c and makes it the active challenge of its owner and purpose.
	Save(ctx context.Context, c Challenge) error
	Get(ctx context.Context, id string) (Challenge, error)
	// Active returns the id of the current challenge for owner and purpose.
	Active(ctx context.Context, ownerID string, purpose Purpose) (string, error)
	// RecordAttempt counts one verification and returns the total so far.
	RecordAttempt(ctx context.Context, id string) (int, error)
	// Consume marks the challenge used. It reports false if it already was,
	// and fails with ErrExpired once more than maxAttempts were recorded.
	Consume(ctx context.Context, id string, maxAttempts int) (bool, error)
	// Discard drops c and, if it is still active, makes previous the active
	// challenge again. An empty previous leaves no active challenge.
	Discard(ctx context.Context, c Challenge, previous string) error
}

type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	active     map[string]string
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		challenges: make(map[string]Challenge),
		active:     make(map[string]string),
	}
}

func activeKey(ownerID string, purpose Purpose) string {
	return ownerID + ":" + string(purpose)
}

func (s *memoryStore) Save(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = c
	s.active[activeKey(c.OwnerID, c.Payload.Purpose)] = c.ID
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return c, nil
}

func (s *memoryStore) Active(_ context.Context, ownerID string, purpose Purpose) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[activeKey(ownerID, purpose)], nil
}

func (s *memoryStore) RecordAttempt(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return 0, ErrNotFound.With("", map[string]any{"id": id})
	}
	c.Attempts++
	s.challenges[id] = c
	return c.Attempts, nil
}

func (s *memoryStore) Consume(_ context.Context, id string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return false, ErrNotFound.With("", map[string]any{"id": id})
	}
	if c.Attempts > maxAttempts {
		return false, errAttemptsExhausted
	}
	if c.Consumed {
		return false, nil
	}
	c.Consumed = true
	s.challenges[id] = c
	key := activeKey(c.OwnerID, c.Payload.Purpose)
	if s.active[key] == id {
		delete(s.active, key)
	}
	return true, nil
}

func (s *memoryStore) Discard(_ context.Context, c Challenge, previous string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, c.ID)
	key := activeKey(c.OwnerID, c.Payload.Purpose)
	if s.active[key] != c.ID {
		return nil
	}
	if _, ok := s.challenges[previous]; ok {
		s.active[key] = previous
	} else {
		delete(s.active, key)
	}
	return nil
}
