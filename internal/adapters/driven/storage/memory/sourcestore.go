package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore keeps SourceSpecs in a map. Specs are copied on the way in
// and out so callers cannot alias stored state.
type SourceStore struct {
	mu    sync.RWMutex
	specs map[string]domain.SourceSpec
}

func NewSourceStore() *SourceStore {
	return &SourceStore{specs: make(map[string]domain.SourceSpec)}
}

func (s *SourceStore) Save(_ context.Context, spec domain.SourceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.ID] = clone(spec)
	return nil
}

func (s *SourceStore) Get(_ context.Context, id string) (*domain.SourceSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	spec = clone(spec)
	return &spec, nil
}

// Delete is a no-op for unknown ids.
func (s *SourceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.specs, id)
	return nil
}

func (s *SourceStore) List(_ context.Context) ([]domain.SourceSpec, error) {
	return s.collect(func(domain.SourceSpec) bool { return true }), nil
}

func (s *SourceStore) ListByCity(_ context.Context, cityID string) ([]domain.SourceSpec, error) {
	return s.collect(func(spec domain.SourceSpec) bool { return spec.CityID == cityID }), nil
}

// collect returns copies of the specs matching keep, ordered by ID.
func (s *SourceStore) collect(keep func(domain.SourceSpec) bool) []domain.SourceSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SourceSpec, 0, len(s.specs))
	for _, spec := range s.specs {
		if keep(spec) {
			out = append(out, clone(spec))
		}
	}
	slices.SortFunc(out, func(a, b domain.SourceSpec) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func clone(spec domain.SourceSpec) domain.SourceSpec {
	spec.Config = maps.Clone(spec.Config)
	spec.Queries = slices.Clone(spec.Queries)
	return spec
}
