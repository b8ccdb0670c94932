package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store owns the cityseed.db connection and hands out the port views
// that share it.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// pragmas are applied to every connection. WAL lets the ops API read while
// a run writes; busy_timeout covers the short overlap with other processes.
var pragmas = []string{"journal_mode(WAL)", "busy_timeout(5000)", "foreign_keys(1)"}

// NewStore opens <dataDir>/cityseed.db, creating the directory and schema
// as needed. An empty dataDir means ~/.cityseed/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".cityseed", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, "cityseed.db")
	dsn := url.Values{"_pragma": pragmas}
	db, err := sql.Open("sqlite", path+"?"+dsn.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection serialises node read-modify-write transactions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path is the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) SourceStore() driven.SourceStore         { return &sourceStore{store: s} }
func (s *Store) NodeStore() driven.NodeStore             { return &nodeStore{store: s} }
func (s *Store) CheckpointStore() driven.CheckpointStore { return &checkpointStore{store: s} }
func (s *Store) DeadLetterStore() driven.DeadLetterStore { return &deadLetterStore{store: s} }
func (s *Store) VectorIndex() driven.VectorIndex         { return &vectorIndex{store: s} }
func (s *Store) SchedulerStore() driven.SchedulerStore   { return &schedulerStore{store: s} }
func (s *Store) QuotaStore() driven.QuotaStore           { return &quotaStore{store: s} }

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// query runs a squirrel select builder.
func query(ctx context.Context, q queryer, b sq.SelectBuilder) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return q.QueryContext(ctx, stmt, args...)
}

// exec runs a squirrel insert, update or delete.
func exec(ctx context.Context, q queryer, b sq.Sqlizer) error {
	stmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building statement: %w", err)
	}
	_, err = q.ExecContext(ctx, stmt, args...)
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// formatTime formats a time in the fixed-width UTC layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatNullableTime formats a time, or returns nil for zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullableTime parses a nullable timestamp. Returns zero time if the
// string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s.String); err != nil {
			return time.Time{}
		}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowsAffected maps an update that touched nothing to ErrNotFound.
func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
