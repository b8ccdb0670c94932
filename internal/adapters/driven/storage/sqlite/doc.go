// Package sqlite provides a SQLite-based implementation of the cityseed
// driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database connection backs every store:
//
//   - SourceStore: configured sources per city
//   - NodeStore: activity nodes and their quality signals
//   - CheckpointStore: pipeline checkpoints, one JSON row per run
//   - DeadLetterStore: permanently failed fetches
//   - VectorIndex: published embeddings with their payload
//   - SchedulerStore: background task state and history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files.
//
// # Data Location
//
// By default, the database is stored at ~/.cityseed/data/cityseed.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. Read-modify-write operations
// on a node run in a transaction; SQLite in WAL mode serialises writers.
package sqlite
