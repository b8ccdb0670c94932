package services

import (
	"maps"
	"slices"
	"strings"

	"github.com/custodia-labs/cityseed/internal/connectors/builtin"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

var _ driving.ConnectorRegistry = (*ConnectorRegistry)(nil)

// ConnectorRegistry is the read-only catalogue of source types, keyed by
// SourceType.
type ConnectorRegistry struct {
	byType map[domain.SourceType]domain.ConnectorType
}

// NewConnectorRegistry returns the catalogue of built-in connectors.
func NewConnectorRegistry() *ConnectorRegistry {
	return NewConnectorRegistryFrom(builtin.ConnectorTypes())
}

// NewConnectorRegistryFrom builds a catalogue from types. A later entry
// for the same SourceType replaces an earlier one.
func NewConnectorRegistryFrom(types []domain.ConnectorType) *ConnectorRegistry {
	byType := make(map[domain.SourceType]domain.ConnectorType, len(types))
	for _, t := range types {
		byType[t.ID] = t
	}
	return &ConnectorRegistry{byType: byType}
}

func (r *ConnectorRegistry) List() []domain.ConnectorType {
	return slices.SortedFunc(maps.Values(r.byType), func(a, b domain.ConnectorType) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

func (r *ConnectorRegistry) Get(id domain.SourceType) (*domain.ConnectorType, error) {
	if t, ok := r.byType[id]; ok {
		return &t, nil
	}
	return nil, domain.ErrNotFound
}
