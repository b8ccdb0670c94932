package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// quotaStore implements driven.QuotaStore.
type quotaStore struct {
	store *Store
}

var _ driven.QuotaStore = (*quotaStore)(nil)

func quotaDay(day time.Time) string { return day.UTC().Format(time.DateOnly) }

// Used returns the recorded calls for a source on a day.
func (s *quotaStore) Used(ctx context.Context, source domain.SourceType, day time.Time) (int, error) {
	return s.used(ctx, s.store.db, source, day)
}

func (s *quotaStore) used(ctx context.Context, q queryer, source domain.SourceType, day time.Time) (int, error) {
	stmt, args, err := sq.Select("used").From("quota_usage").
		Where(sq.Eq{"source_type": string(source), "day": quotaDay(day)}).ToSql()
	if err != nil {
		return 0, err
	}
	var used int
	err = q.QueryRowContext(ctx, stmt, args...).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading quota usage: %w", err)
	}
	return used, nil
}

// Consume increments the day's count unless it already reached limit. The
// check and the increment share one transaction.
func (s *quotaStore) Consume(ctx context.Context, source domain.SourceType, day time.Time, limit int) (int, bool, error) {
	var (
		used    int
		granted bool
	)
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		used, err = s.used(ctx, tx, source, day)
		if err != nil {
			return err
		}
		if used >= limit {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO quota_usage (source_type, day, used) VALUES (?, ?, 1)
			ON CONFLICT(source_type, day) DO UPDATE SET used = quota_usage.used + 1
		`, string(source), quotaDay(day))
		if err != nil {
			return fmt.Errorf("recording quota usage: %w", err)
		}
		used++
		granted = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return used, granted, nil
}
