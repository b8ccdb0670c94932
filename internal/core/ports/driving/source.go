package driving

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// SourceService manages source configurations.
type SourceService interface {
	// Add creates a new source configuration.
	Add(ctx context.Context, spec domain.SourceSpec) error

	// Get retrieves a source by ID.
	Get(ctx context.Context, id string) (*domain.SourceSpec, error)

	// List returns all configured sources, or a city's sources when cityID is set.
	List(ctx context.Context, cityID string) ([]domain.SourceSpec, error)

	// Remove deletes a source. Nodes and signals it produced are kept.
	Remove(ctx context.Context, id string) error

	// ValidateConfig validates source configuration for a source type.
	// Returns an error if required fields are missing or invalid.
	ValidateConfig(ctx context.Context, sourceType domain.SourceType, config map[string]string) error
}

// ConnectorRegistry provides information about available source types.
type ConnectorRegistry interface {
	// List returns all registered source type descriptions.
	List() []domain.ConnectorType

	// Get returns the description of one source type.
	Get(sourceType domain.SourceType) (*domain.ConnectorType, error)
}
