package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// Ensure RetentionService implements the interface.
var _ driving.RetentionService = (*RetentionService)(nil)

// RetentionService nulls community excerpts older than the retention window.
// Signals themselves are kept, so scores are unaffected.
type RetentionService struct {
	nodes  driven.NodeStore
	window time.Duration
	now    func() time.Time
}

// NewRetentionService creates a retention service.
func NewRetentionService(nodes driven.NodeStore, window time.Duration) *RetentionService {
	return &RetentionService{nodes: nodes, window: window, now: time.Now}
}

// Purge implements driving.RetentionService.
func (s *RetentionService) Purge(ctx context.Context) (int, error) {
	if s.window <= 0 {
		return 0, fmt.Errorf("%w: retention window must be positive", domain.ErrInvalidInput)
	}
	cutoff := s.now().UTC().Add(-s.window)
	n, err := s.nodes.PurgeExcerpts(ctx, domain.EphemeralSourceTypes(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge excerpts: %w", err)
	}
	metrics.ExcerptsPurged.Add(float64(n))
	logger.Info("purged %d excerpts observed before %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// DeadLetterService lists dead-letter entries.
type DeadLetterService struct {
	store driven.DeadLetterStore
}

// Ensure DeadLetterService implements the interface.
var _ driving.DeadLetterService = (*DeadLetterService)(nil)

// NewDeadLetterService creates a dead-letter service.
func NewDeadLetterService(store driven.DeadLetterStore) *DeadLetterService {
	return &DeadLetterService{store: store}
}

// List implements driving.DeadLetterService.
func (s *DeadLetterService) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", domain.ErrInvalidInput)
	}
	return s.store.List(ctx, filter)
}
