package consent

import (
	"context"
	"sync"
	"time"

	"trailguard/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in process memory for tests. The mutex
// gives the same winner-takes-the-transition semantics the SQL store gets
// from conditional updates.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Token]; exists {
		return sentinel.ErrConflict
	}
	clone := *record
	s.records[record.Token] = &clone
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) TransitionStatus(_ context.Context, token string, from, to Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if record.Status != from {
		return false, nil
	}
	record.Status = to
	if to == StatusRevoked {
		revokedAt := at
		record.RevokedAt = &revokedAt
	}
	return true, nil
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, token string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = StatusRevoked
	at := revokedAt
	record.RevokedAt = &at
	return nil
}
