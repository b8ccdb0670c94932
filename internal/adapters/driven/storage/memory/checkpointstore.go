package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of driven.CheckpointStore.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*domain.PipelineCheckpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]*domain.PipelineCheckpoint),
	}
}

// Save replaces the stored checkpoint for its run.
func (s *CheckpointStore) Save(_ context.Context, cp *domain.PipelineCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.RunID] = cp.Clone()
	return nil
}

// MarkAborted flips the status in place, leaving steps as they are.
func (s *CheckpointStore) MarkAborted(_ context.Context, runID string, at time.Time) (domain.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[runID]
	if !ok {
		return "", domain.ErrNotFound
	}
	prev := cp.Status
	if prev != domain.RunCompleted && prev != domain.RunAborted {
		cp.Status = domain.RunAborted
		cp.UpdatedAt = at
	}
	return prev, nil
}

// Get retrieves a run's checkpoint.
func (s *CheckpointStore) Get(_ context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cp.Clone(), nil
}

// Latest returns the most recently created checkpoint for a city.
func (s *CheckpointStore) Latest(ctx context.Context, cityID string) (*domain.PipelineCheckpoint, error) {
	list, err := s.List(ctx, cityID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

// List returns a city's checkpoints newest first. A limit of 0 returns all.
func (s *CheckpointStore) List(_ context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.PipelineCheckpoint, 0)
	for _, cp := range s.checkpoints {
		if cp.CityID == cityID {
			result = append(result, *cp.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].RunID > result[j].RunID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
