package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var _ driven.QuotaStore = (*QuotaStore)(nil)

type quotaKey struct {
	source domain.SourceType
	day    string
}

// QuotaStore is an in-memory implementation of driven.QuotaStore.
type QuotaStore struct {
	mu   sync.Mutex
	used map[quotaKey]int
}

// NewQuotaStore creates an empty quota store.
func NewQuotaStore() *QuotaStore {
	return &QuotaStore{used: make(map[quotaKey]int)}
}

func keyFor(source domain.SourceType, day time.Time) quotaKey {
	return quotaKey{source: source, day: day.UTC().Format(time.DateOnly)}
}

// Used returns the recorded calls for a source on a day.
func (s *QuotaStore) Used(_ context.Context, source domain.SourceType, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[keyFor(source, day)], nil
}

// Consume records one call unless limit is reached.
func (s *QuotaStore) Consume(_ context.Context, source domain.SourceType, day time.Time, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(source, day)
	if s.used[k] >= limit {
		return s.used[k], false, nil
	}
	s.used[k]++
	return s.used[k], true, nil
}
