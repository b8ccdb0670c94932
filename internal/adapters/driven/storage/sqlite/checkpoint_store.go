package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// checkpointStore implements driven.CheckpointStore. Each checkpoint is one
// JSON row, so a save is a single atomic write.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// Save replaces the stored checkpoint for its run.
func (s *checkpointStore) Save(ctx context.Context, cp *domain.PipelineCheckpoint) error {
	if cp == nil || cp.RunID == "" {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshalling checkpoint: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, city_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, cp.RunID, cp.CityID, string(cp.Status), string(data),
		formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// abortCheckpoint rewrites the status inside the JSON document and the
// status column together; step state in data is left alone.
const abortCheckpoint = `UPDATE checkpoints
	SET status = ?, updated_at = ?,
		data = json_set(data, '$.Status', ?, '$.UpdatedAt', ?)
	WHERE run_id = ?`

// MarkAborted updates only the run status, so it cannot undo a step the
// seeder recorded concurrently.
func (s *checkpointStore) MarkAborted(ctx context.Context, runID string, at time.Time) (domain.RunStatus, error) {
	var prev domain.RunStatus
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM checkpoints WHERE run_id = ?", runID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading checkpoint status: %w", err)
		}
		prev = domain.RunStatus(status)
		if prev == domain.RunCompleted || prev == domain.RunAborted {
			return nil
		}
		aborted := string(domain.RunAborted)
		_, err = tx.ExecContext(ctx, abortCheckpoint,
			aborted, formatTime(at), aborted, at.UTC().Format(time.RFC3339Nano), runID)
		return err
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}

// Get retrieves a run's checkpoint.
func (s *checkpointStore) Get(ctx context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	var data string
	err := s.store.db.QueryRowContext(ctx, "SELECT data FROM checkpoints WHERE run_id = ?", runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return decodeCheckpoint(data)
}

// Latest returns the most recently created checkpoint for a city.
func (s *checkpointStore) Latest(ctx context.Context, cityID string) (*domain.PipelineCheckpoint, error) {
	list, err := s.List(ctx, cityID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

// List returns a city's checkpoints newest first. A limit of 0 returns all.
func (s *checkpointStore) List(ctx context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error) {
	b := sq.Select("data").From("checkpoints").
		Where(sq.Eq{"city_id": cityID}).
		OrderBy("created_at DESC", "run_id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := query(ctx, s.store.db, b)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	result := make([]domain.PipelineCheckpoint, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cp, err := decodeCheckpoint(data)
		if err != nil {
			return nil, err
		}
		result = append(result, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return result, nil
}

func decodeCheckpoint(data string) (*domain.PipelineCheckpoint, error) {
	var cp domain.PipelineCheckpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("unmarshalling checkpoint: %w", err)
	}
	return &cp, nil
}
