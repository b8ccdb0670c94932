// Package badgerstore provides a BadgerDB-backed staging area for RawSignals
// between the ingest and resolve steps, so a resumed run finds the signals
// its ingest step captured before the process stopped.
//
// Key layout:
//
//	staged:<run>:<observed-at>:<fingerprint> -> JSON RawSignal
//	fp:<run>:<fingerprint>                    -> staged key
//
// Observed-at is written in a fixed-width UTC layout, so a prefix scan over
// staged:<run>: yields signals already in resolve order.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
)

const (
	stagedPrefix = "staged:"
	fpPrefix     = "fp:"

	// observedLayout is fixed width so keys sort chronologically.
	observedLayout = "2006-01-02T15:04:05.000000000Z"

	// maxBatch bounds the writes in one transaction.
	maxBatch = 500
)

// Ensure StagingStore implements the interface.
var _ driven.StagingStore = (*StagingStore)(nil)

// StagingStore implements driven.StagingStore on BadgerDB.
type StagingStore struct {
	db *badger.DB
}

// Open opens (or creates) a staging store in dir.
func Open(dir string) (*StagingStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logger.Debug("staging store opened at %s", dir)
	return &StagingStore{db: db}, nil
}

// NewStagingStore wraps an already open database.
func NewStagingStore(db *badger.DB) *StagingStore {
	return &StagingStore{db: db}
}

// Stage adds signals to a run, ignoring fingerprints already staged.
// It returns the number of newly staged signals.
func (s *StagingStore) Stage(ctx context.Context, runID string, signals []domain.RawSignal) (int, error) {
	added := 0
	for start := 0; start < len(signals); start += maxBatch {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		end := min(start+maxBatch, len(signals))
		err := s.db.Update(func(txn *badger.Txn) error {
			for i := start; i < end; i++ {
				ok, err := stageOne(txn, runID, &signals[i])
				if err != nil {
					return err
				}
				if ok {
					added++
				}
			}
			return nil
		})
		if err != nil {
			return added, fmt.Errorf("stage signals: %w", err)
		}
	}
	return added, nil
}

func stageOne(txn *badger.Txn, runID string, sig *domain.RawSignal) (bool, error) {
	fp := sig.Fingerprint()
	fpKey := []byte(fpPrefix + runID + ":" + fp)
	_, err := txn.Get(fpKey)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return false, fmt.Errorf("marshal signal: %w", err)
	}
	key := stagedKey(runID, sig.ObservedAt, fp)
	if err := txn.Set(key, data); err != nil {
		return false, fmt.Errorf("set signal: %w", err)
	}
	if err := txn.Set(fpKey, key); err != nil {
		return false, fmt.Errorf("set fingerprint: %w", err)
	}
	return true, nil
}

// List returns a run's signals ordered by observation time, then fingerprint.
func (s *StagingStore) List(ctx context.Context, runID string) ([]domain.RawSignal, error) {
	signals := make([]domain.RawSignal, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(stagedPrefix + runID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var sig domain.RawSignal
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sig)
			})
			if err != nil {
				return fmt.Errorf("unmarshal signal: %w", err)
			}
			signals = append(signals, sig)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list staged signals: %w", err)
	}
	return signals, nil
}

// Count returns the number of signals staged for a run.
func (s *StagingStore) Count(_ context.Context, runID string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fpPrefix + runID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Clear drops a run's staged signals.
func (s *StagingStore) Clear(_ context.Context, runID string) error {
	for _, prefix := range []string{stagedPrefix + runID + ":", fpPrefix + runID + ":"} {
		if err := s.db.DropPrefix([]byte(prefix)); err != nil {
			return fmt.Errorf("clear staging: %w", err)
		}
	}
	return nil
}

// RunGC reclaims value-log space left by cleared runs.
func (s *StagingStore) RunGC() error {
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the underlying database.
func (s *StagingStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}

func stagedKey(runID string, observed time.Time, fp string) []byte {
	return []byte(stagedPrefix + runID + ":" + observed.UTC().Format(observedLayout) + ":" + fp)
}
