package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Connector fetches venue mentions from a data source.
// Each source type (forum, blog, archive, directory) implements this interface.
//
// FetchBatch must normalise every source-specific payload into RawSignals
// before returning. Failures are reported as *domain.TransientError or
// *domain.PermanentError so the framework can decide whether to retry.
type Connector interface {
	// Type returns the source type this connector serves.
	Type() domain.SourceType

	// SourceID returns the configured source ID.
	SourceID() string

	// FetchBatch runs one query and returns the signals it produced.
	FetchBatch(ctx context.Context, query domain.Query) ([]domain.RawSignal, error)

	// Close releases resources.
	Close() error
}

// ConnectorBuilder creates a Connector from a SourceSpec.
type ConnectorBuilder func(spec domain.SourceSpec) (Connector, error)

// ConnectorFactory creates connectors from source configuration.
// It maintains a registry of source types and their builders.
type ConnectorFactory interface {
	// Create returns a Connector for the given source.
	// Returns ErrUnsupportedType if the source type is unknown.
	Create(ctx context.Context, spec domain.SourceSpec) (Connector, error)

	// Register adds a connector builder for the given type.
	Register(sourceType domain.SourceType, builder ConnectorBuilder)

	// SupportedTypes returns all registered source types.
	SupportedTypes() []domain.SourceType
}
