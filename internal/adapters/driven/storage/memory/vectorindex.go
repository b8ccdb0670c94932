package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
type VectorIndex struct {
	mu      sync.RWMutex
	records map[string]driven.VectorRecord
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		records: make(map[string]driven.VectorRecord),
	}
}

// Upsert stores or replaces the record for a node.
func (v *VectorIndex) Upsert(_ context.Context, record driven.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	vec := make([]float32, len(record.Vector))
	copy(vec, record.Vector)
	record.Vector = vec
	v.records[record.NodeID] = record
	return nil
}

// ListIDs returns the node IDs indexed for a city, ordered.
func (v *VectorIndex) ListIDs(_ context.Context, cityID string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0)
	for id, r := range v.records {
		if r.CityID == cityID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns a record by node ID.
func (v *VectorIndex) Get(nodeID string) (driven.VectorRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.records[nodeID]
	if !ok {
		return driven.VectorRecord{}, domain.ErrNotFound
	}
	return r, nil
}

// Remove deletes a record. The pipeline never removes records; operators
// and tests use this to reproduce drift.
func (v *VectorIndex) Remove(nodeID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, nodeID)
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}
