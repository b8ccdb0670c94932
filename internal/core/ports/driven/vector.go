package driven

import "context"

// VectorIndex is the downstream vector similarity index.
// Only the write/sync contract is defined here; query-time behaviour
// belongs to the recommender.
type VectorIndex interface {
	// Upsert inserts or replaces the vector and payload for a node.
	Upsert(ctx context.Context, record VectorRecord) error

	// ListIDs returns every node id indexed for a city.
	ListIDs(ctx context.Context, cityID string) ([]string, error)

	// Close releases resources.
	Close() error
}

// VectorRecord is one vector-plus-payload record keyed on node id.
type VectorRecord struct {
	// NodeID is the record key.
	NodeID string

	// CityID partitions the index for parity checks.
	CityID string

	// Vector is the embedding.
	Vector []float32

	// Payload carries the fields the recommender filters on.
	Payload map[string]any
}
