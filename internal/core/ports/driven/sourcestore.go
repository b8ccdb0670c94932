package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// SourceStore holds the SourceSpecs registered per city.
type SourceStore interface {
	// Save upserts by spec.ID.
	Save(ctx context.Context, spec domain.SourceSpec) error
	// Get returns domain.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*domain.SourceSpec, error)
	Delete(ctx context.Context, id string) error
	// List and ListByCity order specs by ID.
	List(ctx context.Context) ([]domain.SourceSpec, error)
	ListByCity(ctx context.Context, cityID string) ([]domain.SourceSpec, error)
}
