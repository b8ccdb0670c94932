// Package migrations ships the schema for the SQLite store. Files are named
// NNN_name.up.sql / NNN_name.down.sql and applied in version order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
