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

var sourceColumns = []string{"id", "type", "city_id", "name", "config", "queries", "created_at", "updated_at"}

// upsertSource keeps created_at from the first save.
const upsertSource = `ON CONFLICT(id) DO UPDATE SET
	type = excluded.type, city_id = excluded.city_id, name = excluded.name,
	config = excluded.config, queries = excluded.queries, updated_at = excluded.updated_at`

type sourceStore struct {
	store *Store
}

var _ driven.SourceStore = (*sourceStore)(nil)

// Save stores config and queries as JSON text. Zero timestamps are
// stamped with the store clock.
func (s *sourceStore) Save(ctx context.Context, spec domain.SourceSpec) error {
	config, err := json.Marshal(spec.Config)
	if err != nil {
		return fmt.Errorf("encoding config of %s: %w", spec.ID, err)
	}
	queries, err := json.Marshal(spec.Queries)
	if err != nil {
		return fmt.Errorf("encoding queries of %s: %w", spec.ID, err)
	}
	now := s.store.now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	if spec.UpdatedAt.IsZero() {
		spec.UpdatedAt = now
	}

	b := sq.Insert("sources").Columns(sourceColumns...).
		Values(spec.ID, string(spec.Type), spec.CityID, spec.Name, string(config), string(queries),
			formatTime(spec.CreatedAt), formatTime(spec.UpdatedAt)).
		Suffix(upsertSource)
	if err := exec(ctx, s.store.db, b); err != nil {
		return fmt.Errorf("saving source %s: %w", spec.ID, err)
	}
	return nil
}

func (s *sourceStore) Get(ctx context.Context, id string) (*domain.SourceSpec, error) {
	specs, err := s.selectSources(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &specs[0], nil
}

func (s *sourceStore) Delete(ctx context.Context, id string) error {
	if err := exec(ctx, s.store.db, sq.Delete("sources").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("deleting source %s: %w", id, err)
	}
	return nil
}

func (s *sourceStore) List(ctx context.Context) ([]domain.SourceSpec, error) {
	return s.selectSources(ctx, nil)
}

func (s *sourceStore) ListByCity(ctx context.Context, cityID string) ([]domain.SourceSpec, error) {
	return s.selectSources(ctx, sq.Eq{"city_id": cityID})
}

// selectSources returns the rows matching where, ordered by id. A nil
// where matches every row.
func (s *sourceStore) selectSources(ctx context.Context, where sq.Sqlizer) ([]domain.SourceSpec, error) {
	b := sq.Select(sourceColumns...).From("sources").OrderBy("id")
	if where != nil {
		b = b.Where(where)
	}
	rows, err := query(ctx, s.store.db, b)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	specs := []domain.SourceSpec{}
	for rows.Next() {
		spec, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func scanSource(row scanner) (domain.SourceSpec, error) {
	var (
		spec                 domain.SourceSpec
		kind, config, qs     string
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&spec.ID, &kind, &spec.CityID, &spec.Name, &config, &qs, &createdAt, &updatedAt); err != nil {
		return spec, fmt.Errorf("scanning source: %w", err)
	}
	spec.Type = domain.SourceType(kind)
	if err := json.Unmarshal([]byte(config), &spec.Config); err != nil {
		return spec, fmt.Errorf("decoding config of %s: %w", spec.ID, err)
	}
	if err := json.Unmarshal([]byte(qs), &spec.Queries); err != nil {
		return spec, fmt.Errorf("decoding queries of %s: %w", spec.ID, err)
	}
	spec.CreatedAt = parseNullableTime(createdAt)
	spec.UpdatedAt = parseNullableTime(updatedAt)
	return spec, nil
}
