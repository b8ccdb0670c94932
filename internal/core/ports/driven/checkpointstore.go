package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// CheckpointStore persists PipelineCheckpoints.
// Save must write the whole checkpoint atomically so a crashed process can
// resume from another process instance.
type CheckpointStore interface {
	// Save stores or updates a checkpoint.
	Save(ctx context.Context, cp *domain.PipelineCheckpoint) error

	// MarkAborted sets the run status to aborted without touching step
	// state, unless the run is already completed or aborted. It returns the
	// status the run had before the call, or domain.ErrNotFound.
	MarkAborted(ctx context.Context, runID string, at time.Time) (domain.RunStatus, error)

	// Get retrieves a checkpoint by run ID.
	Get(ctx context.Context, runID string) (*domain.PipelineCheckpoint, error)

	// Latest returns the most recently created checkpoint for a city.
	Latest(ctx context.Context, cityID string) (*domain.PipelineCheckpoint, error)

	// List returns a city's checkpoints, most recent first.
	List(ctx context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error)
}
