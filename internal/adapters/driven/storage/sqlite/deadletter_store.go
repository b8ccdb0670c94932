package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// deadLetterStore implements driven.DeadLetterStore.
type deadLetterStore struct {
	store *Store
}

var _ driven.DeadLetterStore = (*deadLetterStore)(nil)

// Record inserts an entry. Recording the same request again within a run
// keeps the first-seen time and accumulates attempts.
func (s *deadLetterStore) Record(ctx context.Context, entry domain.DeadLetterEntry) error {
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("marshalling params: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, run_id, city_id, source_id, source_type, params, reason,
			attempts, last_error, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reason = excluded.reason,
			attempts = dead_letters.attempts + excluded.attempts,
			last_error = excluded.last_error,
			last_seen = excluded.last_seen
	`, entry.ID, entry.RunID, entry.CityID, entry.SourceID, string(entry.SourceType), string(params),
		string(entry.Reason), entry.Attempts, nullString(entry.LastError),
		formatTime(entry.FirstSeen), formatTime(entry.LastSeen))
	if err != nil {
		return fmt.Errorf("recording dead letter: %w", err)
	}
	return nil
}

// List returns matching entries, most recently seen first.
func (s *deadLetterStore) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	b := deadLetterFilter(sq.Select(
		"id", "run_id", "city_id", "source_id", "source_type", "params", "reason",
		"attempts", "last_error", "first_seen", "last_seen",
	).From("dead_letters"), filter).OrderBy("last_seen DESC", "id")
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	rows, err := query(ctx, s.store.db, b)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.DeadLetterEntry, 0)
	for rows.Next() {
		var e domain.DeadLetterEntry
		var sourceType, params, reason string
		var lastError, firstSeen, lastSeen sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.CityID, &e.SourceID, &sourceType, &params,
			&reason, &e.Attempts, &lastError, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("unmarshalling params: %w", err)
		}
		e.SourceType = domain.SourceType(sourceType)
		e.Reason = domain.FailureReason(reason)
		e.LastError = lastError.String
		e.FirstSeen = parseNullableTime(firstSeen)
		e.LastSeen = parseNullableTime(lastSeen)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}
	return entries, nil
}

// Count returns the number of matching entries, ignoring the limit.
func (s *deadLetterStore) Count(ctx context.Context, filter domain.DeadLetterFilter) (int, error) {
	rows, err := query(ctx, s.store.db, deadLetterFilter(sq.Select("COUNT(*)").From("dead_letters"), filter))
	if err != nil {
		return 0, fmt.Errorf("counting dead letters: %w", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scanning count: %w", err)
		}
	}
	return n, rows.Err()
}

func deadLetterFilter(b sq.SelectBuilder, f domain.DeadLetterFilter) sq.SelectBuilder {
	if f.RunID != "" {
		b = b.Where(sq.Eq{"run_id": f.RunID})
	}
	if f.CityID != "" {
		b = b.Where(sq.Eq{"city_id": f.CityID})
	}
	if f.SourceType != "" {
		b = b.Where(sq.Eq{"source_type": string(f.SourceType)})
	}
	return b
}
