package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// StagingStore holds RawSignals between the ingest and resolve steps of a run.
// Staging is keyed on (run, fingerprint): staging the same signal twice keeps one copy.
type StagingStore interface {
	// Stage adds signals to a run's staging area. Returns the number newly staged.
	Stage(ctx context.Context, runID string, signals []domain.RawSignal) (int, error)

	// List returns a run's staged signals ordered by observed-at then fingerprint.
	List(ctx context.Context, runID string) ([]domain.RawSignal, error)

	// Count returns the number of signals staged for a run.
	Count(ctx context.Context, runID string) (int, error)

	// Clear drops a run's staging area.
	Clear(ctx context.Context, runID string) error
}
