package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"trailguard/pkg/platform/sentinel"
)

// ConsentGuard answers whether a consent token is currently active. The
// in-memory store uses it to reproduce the conditional-insert semantics the
// SQL store gets from its consent subquery.
type ConsentGuard func(ctx context.Context, token string, at time.Time) bool

// InMemoryStore keeps telemetry records in process memory for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	guard   ConsentGuard
}

// NewInMemoryStore builds the store. A nil guard admits every insert.
func NewInMemoryStore(guard ConsentGuard) *InMemoryStore {
	return &InMemoryStore{guard: guard}
}

func (s *InMemoryStore) Insert(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guard != nil && !s.guard(ctx, record.ConsentToken, record.CollectedAt) {
		return sentinel.ErrInvalidState
	}
	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

func (s *InMemoryStore) ListByPseudoID(_ context.Context, pseudoID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.PseudoID == pseudoID && r.DeletedAt == nil {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	return out, nil
}

func (s *InMemoryStore) SoftDeleteByToken(_ context.Context, token string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ConsentToken == token && r.DeletedAt == nil {
			at := deletedAt
			r.DeletedAt = &at
		}
	}
	return nil
}

// Stats aggregates the clear summary fields across non-deleted records.
func (s *InMemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	subjects := map[string]struct{}{}
	type acc struct {
		records                 int
		timeSum, errSum, accSum float64
		timeN, errN, accN       int
	}
	byPhase := map[Phase]*acc{}

	for _, r := range s.records {
		if r.DeletedAt != nil {
			continue
		}
		stats.TotalRecords++
		subjects[r.PseudoID] = struct{}{}
		a := byPhase[r.TestPhase]
		if a == nil {
			a = &acc{}
			byPhase[r.TestPhase] = a
		}
		a.records++
		if r.Aggregates.TotalTime != nil {
			a.timeSum += *r.Aggregates.TotalTime
			a.timeN++
		}
		if r.Aggregates.TotalErrors != nil {
			a.errSum += float64(*r.Aggregates.TotalErrors)
			a.errN++
		}
		if r.Aggregates.Accuracy != nil {
			a.accSum += *r.Aggregates.Accuracy
			a.accN++
		}
	}
	stats.TotalSubjects = len(subjects)

	for _, phase := range []Phase{PhasePractice, PhaseTest} {
		a, ok := byPhase[phase]
		if !ok {
			continue
		}
		ps := PhaseStats{Phase: phase, Records: a.records}
		if a.timeN > 0 {
			avg := a.timeSum / float64(a.timeN)
			ps.AvgTotalTime = &avg
		}
		if a.errN > 0 {
			avg := a.errSum / float64(a.errN)
			ps.AvgErrors = &avg
		}
		if a.accN > 0 {
			avg := a.accSum / float64(a.accN)
			ps.AvgAccuracy = &avg
		}
		stats.ByPhase = append(stats.ByPhase, ps)
	}
	return stats, nil
}

// AllIncludingDeleted returns every record regardless of deletion state.
// Test helper for asserting the soft-delete cascade.
func (s *InMemoryStore) AllIncludingDeleted() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		clone := *r
		out = append(out, &clone)
	}
	return out
}
