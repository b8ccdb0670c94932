package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure DeadLetterStore implements the interface.
var _ driven.DeadLetterStore = (*DeadLetterStore)(nil)

// DeadLetterStore is an in-memory implementation of driven.DeadLetterStore.
type DeadLetterStore struct {
	mu      sync.RWMutex
	entries map[string]domain.DeadLetterEntry
}

// NewDeadLetterStore creates a new in-memory dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{
		entries: make(map[string]domain.DeadLetterEntry),
	}
}

// Record inserts an entry or, for a known ID, accumulates attempts and
// refreshes the last error while keeping the first-seen time.
func (s *DeadLetterStore) Record(_ context.Context, entry domain.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[entry.ID]; ok {
		entry.FirstSeen = cur.FirstSeen
		entry.Attempts += cur.Attempts
	}
	s.entries[entry.ID] = entry
	return nil
}

// List returns matching entries, most recently seen first.
func (s *DeadLetterStore) List(_ context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.DeadLetterEntry, 0)
	for _, e := range s.entries {
		if matchesDeadLetter(e, filter) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].LastSeen.After(result[j].LastSeen)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Count returns the number of matching entries, ignoring the limit.
func (s *DeadLetterStore) Count(_ context.Context, filter domain.DeadLetterFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if matchesDeadLetter(e, filter) {
			n++
		}
	}
	return n, nil
}

func matchesDeadLetter(e domain.DeadLetterEntry, f domain.DeadLetterFilter) bool {
	return (f.RunID == "" || e.RunID == f.RunID) &&
		(f.CityID == "" || e.CityID == f.CityID) &&
		(f.SourceType == "" || e.SourceType == f.SourceType)
}
