package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex on a local table. It suits
// single-host deployments and keeps parity checks cheap.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert stores or replaces the record for a node.
func (v *vectorIndex) Upsert(ctx context.Context, record driven.VectorRecord) error {
	if record.NodeID == "" {
		return domain.ErrInvalidInput
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	_, err = v.store.db.ExecContext(ctx, `
		INSERT INTO vectors (node_id, city_id, vector, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			city_id = excluded.city_id,
			vector = excluded.vector,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, record.NodeID, record.CityID, float32SliceToBytes(record.Vector), string(payload),
		formatTime(v.store.now()))
	if err != nil {
		return fmt.Errorf("upserting vector: %w", err)
	}
	return nil
}

// ListIDs returns the node IDs indexed for a city, ordered.
func (v *vectorIndex) ListIDs(ctx context.Context, cityID string) ([]string, error) {
	rows, err := v.store.db.QueryContext(ctx, "SELECT node_id FROM vectors WHERE city_id = ? ORDER BY node_id", cityID)
	if err != nil {
		return nil, fmt.Errorf("querying vector ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Get returns a record by node ID.
func (v *vectorIndex) Get(ctx context.Context, nodeID string) (driven.VectorRecord, error) {
	record := driven.VectorRecord{NodeID: nodeID}
	var blob []byte
	var payload string
	err := v.store.db.QueryRowContext(ctx, "SELECT city_id, vector, payload FROM vectors WHERE node_id = ?", nodeID).
		Scan(&record.CityID, &blob, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return record, domain.ErrNotFound
	}
	if err != nil {
		return record, fmt.Errorf("reading vector: %w", err)
	}
	record.Vector = bytesToFloat32Slice(blob)
	if err := json.Unmarshal([]byte(payload), &record.Payload); err != nil {
		return record, fmt.Errorf("unmarshalling payload: %w", err)
	}
	return record, nil
}

// Close is a no-op; the owning Store closes the database.
func (v *vectorIndex) Close() error {
	return nil
}
