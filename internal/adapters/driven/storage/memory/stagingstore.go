package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure StagingStore implements the interface.
var _ driven.StagingStore = (*StagingStore)(nil)

// StagingStore is an in-memory implementation of driven.StagingStore.
type StagingStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]domain.RawSignal
}

// NewStagingStore creates a new in-memory staging store.
func NewStagingStore() *StagingStore {
	return &StagingStore{
		runs: make(map[string]map[string]domain.RawSignal),
	}
}

// Stage adds signals to a run, ignoring fingerprints already staged.
// It returns the number of newly staged signals.
func (s *StagingStore) Stage(_ context.Context, runID string, signals []domain.RawSignal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string]domain.RawSignal)
		s.runs[runID] = run
	}
	added := 0
	for _, sig := range signals {
		fp := sig.Fingerprint()
		if _, exists := run[fp]; exists {
			continue
		}
		run[fp] = sig
		added++
	}
	return added, nil
}

// List returns a run's signals ordered by observation time, then fingerprint.
func (s *StagingStore) List(_ context.Context, runID string) ([]domain.RawSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.runs[runID]
	result := make([]domain.RawSignal, 0, len(run))
	for _, sig := range run {
		result = append(result, sig)
	}
	SortStaged(result)
	return result, nil
}

// Count returns the number of signals staged for a run.
func (s *StagingStore) Count(_ context.Context, runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs[runID]), nil
}

// Clear drops a run's staged signals.
func (s *StagingStore) Clear(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// SortStaged orders signals the way every staging store returns them.
func SortStaged(signals []domain.RawSignal) {
	fps := make([]string, len(signals))
	for i := range signals {
		fps[i] = signals[i].Fingerprint()
	}
	sort.Sort(byObservation{signals: signals, fps: fps})
}

type byObservation struct {
	signals []domain.RawSignal
	fps     []string
}

func (b byObservation) Len() int { return len(b.signals) }

func (b byObservation) Swap(i, j int) {
	b.signals[i], b.signals[j] = b.signals[j], b.signals[i]
	b.fps[i], b.fps[j] = b.fps[j], b.fps[i]
}

func (b byObservation) Less(i, j int) bool {
	if !b.signals[i].ObservedAt.Equal(b.signals[j].ObservedAt) {
		return b.signals[i].ObservedAt.Before(b.signals[j].ObservedAt)
	}
	return b.fps[i] < b.fps[j]
}
