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

// nodeStore implements driven.NodeStore.
type nodeStore struct {
	store *Store
}

var _ driven.NodeStore = (*nodeStore)(nil)

var nodeColumns = []string{
	"id", "city_id", "name", "normalized_name", "category", "lat", "lon",
	"convergence", "divergence", "overrated", "tags", "source_count", "active",
	"published_hash", "published_at", "version", "created_at", "updated_at",
}

const signalColumns = "fingerprint, node_id, source_type, author, authority, sentiment, excerpt, observed_at, resolved_at"

// CreateNode stores a new node together with its first signal.
func (s *nodeStore) CreateNode(ctx context.Context, node *domain.ActivityNode, first domain.QualitySignal) error {
	tagsJSON, err := json.Marshal(nonNilTags(node.Tags))
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}
	var lat, lon any
	if node.Coordinates != nil {
		lat, lon = node.Coordinates.Lat, node.Coordinates.Lon
	}
	first.NodeID = node.ID

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if exists, err := rowExists(ctx, tx, "SELECT 1 FROM nodes WHERE id = ?", node.ID); err != nil || exists {
			return existsErr(err, exists)
		}
		if exists, err := rowExists(ctx, tx, "SELECT 1 FROM signals WHERE fingerprint = ?", first.Fingerprint); err != nil || exists {
			return existsErr(err, exists)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, city_id, name, normalized_name, category, lat, lon,
				convergence, divergence, overrated, tags, source_count, active,
				published_hash, published_at, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, node.ID, node.CityID, node.Name, node.NormalizedName, string(node.Category), lat, lon,
			node.Convergence, node.Divergence, boolToInt(node.Overrated), string(tagsJSON),
			node.SourceCount, boolToInt(node.Active), nullString(node.PublishedHash),
			formatNullableTime(node.PublishedAt), formatNullableTime(node.CreatedAt), formatNullableTime(node.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting node: %w", err)
		}
		return insertSignal(ctx, tx, first)
	})
}

// AttachSignal adds a signal to an existing node.
func (s *nodeStore) AttachSignal(ctx context.Context, signal domain.QualitySignal) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if exists, err := rowExists(ctx, tx, "SELECT 1 FROM signals WHERE fingerprint = ?", signal.Fingerprint); err != nil || exists {
			return existsErr(err, exists)
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE nodes SET updated_at = ?, version = version + 1 WHERE id = ?",
			formatTime(signal.ResolvedAt), signal.NodeID)
		if err != nil {
			return fmt.Errorf("touching node: %w", err)
		}
		if err := rowsAffected(res, domain.ErrNotFound); err != nil {
			return err
		}
		return insertSignal(ctx, tx, signal)
	})
}

// HasSignal reports whether a fingerprint has already been resolved.
func (s *nodeStore) HasSignal(ctx context.Context, fingerprint string) (bool, error) {
	return rowExists(ctx, s.store.db, "SELECT 1 FROM signals WHERE fingerprint = ?", fingerprint)
}

// GetNode retrieves a node by ID.
func (s *nodeStore) GetNode(ctx context.Context, id string) (*domain.ActivityNode, error) {
	return getNode(ctx, s.store.db, id)
}

// ListNodes returns nodes matching the filter ordered by ID.
func (s *nodeStore) ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.ActivityNode, error) {
	b := sq.Select(nodeColumns...).From("nodes").OrderBy("id")
	if filter.CityID != "" {
		b = b.Where(sq.Eq{"city_id": filter.CityID})
	}
	if len(filter.IDs) > 0 {
		b = b.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.ActiveOnly {
		b = b.Where(sq.Eq{"active": 1})
	}
	if !filter.UpdatedSince.IsZero() {
		b = b.Where(sq.GtOrEq{"updated_at": formatTime(filter.UpdatedSince)})
	}

	rows, err := query(ctx, s.store.db, b)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]domain.ActivityNode, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

// ListNodeIDs returns every node ID of a city ordered.
func (s *nodeStore) ListNodeIDs(ctx context.Context, cityID string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT id FROM nodes WHERE city_id = ? ORDER BY id", cityID)
	if err != nil {
		return nil, fmt.Errorf("querying node ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListSignals returns a node's signals ordered by fingerprint.
func (s *nodeStore) ListSignals(ctx context.Context, nodeID string) ([]domain.QualitySignal, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+signalColumns+" FROM signals WHERE node_id = ? ORDER BY fingerprint", nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	signals := make([]domain.QualitySignal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signals: %w", err)
	}
	return signals, nil
}

// UpsertTags writes tags, keeping the higher confidence of old and new.
func (s *nodeStore) UpsertTags(ctx context.Context, nodeID string, tags []domain.VibeTag) error {
	return s.updateTags(ctx, nodeID, func(current map[string]domain.VibeTag) bool {
		changed := false
		for _, tag := range tags {
			if cur, ok := current[tag.Tag]; ok && !tag.Supersedes(cur) {
				continue
			}
			current[tag.Tag] = tag
			changed = true
		}
		return changed
	})
}

// RemoveTags deletes tags from a node.
func (s *nodeStore) RemoveTags(ctx context.Context, nodeID string, tags []string) error {
	return s.updateTags(ctx, nodeID, func(current map[string]domain.VibeTag) bool {
		changed := false
		for _, tag := range tags {
			if _, ok := current[tag]; ok {
				delete(current, tag)
				changed = true
			}
		}
		return changed
	})
}

// updateTags applies mutate to the stored tag set in one transaction and
// writes it back when mutate reports a change.
func (s *nodeStore) updateTags(ctx context.Context, nodeID string, mutate func(map[string]domain.VibeTag) bool) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var tagsJSON string
		err := tx.QueryRowContext(ctx, "SELECT tags FROM nodes WHERE id = ?", nodeID).Scan(&tagsJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading tags: %w", err)
		}
		current := make(map[string]domain.VibeTag)
		if err := json.Unmarshal([]byte(tagsJSON), &current); err != nil {
			return fmt.Errorf("unmarshalling tags: %w", err)
		}
		if current == nil {
			current = make(map[string]domain.VibeTag)
		}
		if !mutate(current) {
			return nil
		}
		updated, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE nodes SET tags = ?, updated_at = ?, version = version + 1 WHERE id = ?",
			string(updated), formatTime(s.store.now()), nodeID)
		if err != nil {
			return fmt.Errorf("writing tags: %w", err)
		}
		return nil
	})
}

// UpdateScores writes derived scores. An unchanged score set is not a write.
func (s *nodeStore) UpdateScores(ctx context.Context, nodeID string, scores domain.Scores) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var cur domain.Scores
		var overrated int
		err := tx.QueryRowContext(ctx,
			"SELECT convergence, divergence, overrated, source_count FROM nodes WHERE id = ?", nodeID).
			Scan(&cur.Convergence, &cur.Divergence, &overrated, &cur.SourceCount)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading scores: %w", err)
		}
		cur.Overrated = overrated == 1
		if cur == scores {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE nodes SET convergence = ?, divergence = ?, overrated = ?, source_count = ?,
				updated_at = ?, version = version + 1
			WHERE id = ?
		`, scores.Convergence, scores.Divergence, boolToInt(scores.Overrated), scores.SourceCount,
			formatTime(s.store.now()), nodeID)
		if err != nil {
			return fmt.Errorf("writing scores: %w", err)
		}
		return nil
	})
}

// MarkPublished records the content hash written to the vector index.
// It does not count as a change to the node.
func (s *nodeStore) MarkPublished(ctx context.Context, nodeID, hash string, at time.Time) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE nodes SET published_hash = ?, published_at = ? WHERE id = ?",
		nullString(hash), formatNullableTime(at), nodeID)
	if err != nil {
		return fmt.Errorf("marking node published: %w", err)
	}
	return rowsAffected(res, domain.ErrNotFound)
}

// SetActive flags a node active or retired.
func (s *nodeStore) SetActive(ctx context.Context, nodeID string, active bool) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var cur int
		err := tx.QueryRowContext(ctx, "SELECT active FROM nodes WHERE id = ?", nodeID).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading node: %w", err)
		}
		if (cur == 1) == active {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE nodes SET active = ?, updated_at = ?, version = version + 1 WHERE id = ?",
			boolToInt(active), formatTime(s.store.now()), nodeID)
		if err != nil {
			return fmt.Errorf("writing node: %w", err)
		}
		return nil
	})
}

// PurgeExcerpts nulls excerpts of the given source types observed before the
// cutoff. Undated signals age from when they were resolved.
func (s *nodeStore) PurgeExcerpts(ctx context.Context, sourceTypes []domain.SourceType, before time.Time) (int, error) {
	if len(sourceTypes) == 0 {
		return 0, nil
	}
	types := make([]string, len(sourceTypes))
	for i, t := range sourceTypes {
		types[i] = string(t)
	}
	stmt, args, err := sq.Update("signals").
		Set("excerpt", nil).
		Where(sq.NotEq{"excerpt": nil}).
		Where(sq.Eq{"source_type": types}).
		Where(sq.Expr("COALESCE(observed_at, resolved_at) < ?", formatTime(before))).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building purge: %w", err)
	}
	res, err := s.store.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purging excerpts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}

// ==================== Helper Functions ====================

func insertSignal(ctx context.Context, q queryer, sig domain.QualitySignal) error {
	var excerpt any
	if sig.Excerpt != nil {
		excerpt = *sig.Excerpt
	}
	_, err := q.ExecContext(ctx, "INSERT INTO signals ("+signalColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		sig.Fingerprint, sig.NodeID, string(sig.SourceType), nullString(sig.Author), sig.Authority,
		string(sig.Sentiment), excerpt, formatNullableTime(sig.ObservedAt), formatTime(sig.ResolvedAt))
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

func getNode(ctx context.Context, q queryer, id string) (*domain.ActivityNode, error) {
	stmt, args, err := sq.Select(nodeColumns...).From("nodes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	node, err := scanNode(q.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return node, err
}

func scanNode(row scanner) (*domain.ActivityNode, error) {
	var node domain.ActivityNode
	var category, tagsJSON string
	var lat, lon sql.NullFloat64
	var overrated, active int
	var publishedHash, publishedAt, createdAt, updatedAt sql.NullString
	if err := row.Scan(&node.ID, &node.CityID, &node.Name, &node.NormalizedName, &category,
		&lat, &lon, &node.Convergence, &node.Divergence, &overrated, &tagsJSON,
		&node.SourceCount, &active, &publishedHash, &publishedAt, &node.Version,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning node: %w", err)
	}
	node.Category = domain.Category(category)
	if lat.Valid && lon.Valid {
		node.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	node.Overrated = overrated == 1
	node.Active = active == 1
	node.Tags = make(map[string]domain.VibeTag)
	if err := json.Unmarshal([]byte(tagsJSON), &node.Tags); err != nil {
		return nil, fmt.Errorf("unmarshalling tags: %w", err)
	}
	if node.Tags == nil {
		node.Tags = make(map[string]domain.VibeTag)
	}
	node.PublishedHash = publishedHash.String
	node.PublishedAt = parseNullableTime(publishedAt)
	node.CreatedAt = parseNullableTime(createdAt)
	node.UpdatedAt = parseNullableTime(updatedAt)
	return &node, nil
}

func scanSignal(row scanner) (domain.QualitySignal, error) {
	var sig domain.QualitySignal
	var sourceType, sentiment string
	var author, excerpt, observedAt, resolvedAt sql.NullString
	if err := row.Scan(&sig.Fingerprint, &sig.NodeID, &sourceType, &author, &sig.Authority,
		&sentiment, &excerpt, &observedAt, &resolvedAt); err != nil {
		return sig, fmt.Errorf("scanning signal: %w", err)
	}
	sig.SourceType = domain.SourceType(sourceType)
	sig.Sentiment = domain.Sentiment(sentiment)
	sig.Author = author.String
	if excerpt.Valid {
		text := excerpt.String
		sig.Excerpt = &text
	}
	sig.ObservedAt = parseNullableTime(observedAt)
	sig.ResolvedAt = parseNullableTime(resolvedAt)
	return sig, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

func rowExists(ctx context.Context, q queryer, stmt string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, stmt, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return true, nil
}

// existsErr turns a rowExists result into the error for a conflicting insert.
func existsErr(err error, exists bool) error {
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyExists
	}
	return nil
}

func nonNilTags(tags map[string]domain.VibeTag) map[string]domain.VibeTag {
	if tags == nil {
		return map[string]domain.VibeTag{}
	}
	return tags
}
