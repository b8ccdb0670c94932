package driving

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Seeder runs the city seeding pipeline.
type Seeder interface {
	// SeedCity runs (or resumes) a city run and returns its summary.
	// The summary is returned even when the run fails.
	SeedCity(ctx context.Context, cityID string, mode domain.SeedMode) (*domain.RunSummary, error)

	// Abort marks a run aborted. A running run stops before its next step.
	Abort(ctx context.Context, runID string) error

	// Status returns the checkpoint of a run.
	Status(ctx context.Context, runID string) (*domain.PipelineCheckpoint, error)

	// History returns a city's recent checkpoints, most recent first.
	History(ctx context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error)
}

// PublishMode selects which nodes index publication writes.
type PublishMode string

// Publish modes.
const (
	// PublishFull rebuilds every node of a city.
	PublishFull PublishMode = "full"

	// PublishIncremental writes nodes whose embedding fields changed since last publish.
	PublishIncremental PublishMode = "incremental"

	// PublishTargeted writes an explicit id list.
	PublishTargeted PublishMode = "targeted"
)

// PublishRequest describes one publication pass.
type PublishRequest struct {
	CityID  string
	Mode    PublishMode
	NodeIDs []string
}

// PublishResult reports one publication pass.
type PublishResult struct {
	Considered int
	Upserted   int
	Unchanged  int
}

// ParityReport compares canonical-store ids with index ids for a city.
type ParityReport struct {
	CityID           string
	StoreCount       int
	IndexCount       int
	MissingFromIndex []string
	OrphanedInIndex  []string
}

// InParity reports whether store and index agree.
func (r *ParityReport) InParity() bool {
	return len(r.MissingFromIndex) == 0 && len(r.OrphanedInIndex) == 0
}

// Publisher keeps the vector index in parity with the canonical store.
type Publisher interface {
	// Publish writes nodes to the index.
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)

	// CheckParity reports drift without repairing it.
	CheckParity(ctx context.Context, cityID string) (*ParityReport, error)
}

// RetentionService purges community excerpts past the retention window.
type RetentionService interface {
	// Purge nulls old excerpts and returns the number purged.
	Purge(ctx context.Context) (int, error)
}

// DeadLetterService exposes dead-letter entries for inspection.
type DeadLetterService interface {
	// List returns entries matching the filter.
	List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error)
}
