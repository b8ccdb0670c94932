package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

// Factory builds connectors from source specs.
type Factory struct {
	mu       sync.RWMutex
	builders map[domain.SourceType]driven.ConnectorBuilder
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[domain.SourceType]driven.ConnectorBuilder)}
}

// Register adds or replaces the builder for a source type.
func (f *Factory) Register(sourceType domain.SourceType, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[sourceType] = builder
}

// Create builds a connector for the spec.
func (f *Factory) Create(_ context.Context, spec domain.SourceSpec) (driven.Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[spec.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, spec.Type)
	}
	conn, err := builder(spec)
	if err != nil {
		return nil, fmt.Errorf("build %s connector for source %s: %w", spec.Type, spec.ID, err)
	}
	return conn, nil
}

// SupportedTypes returns the registered source types in stable order.
func (f *Factory) SupportedTypes() []domain.SourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]domain.SourceType, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
