// Package mcp provides an MCP (Model Context Protocol) server adapter for
// cityseed. It lets assistants trigger city runs, read run status and check
// index parity.
package mcp

import "errors"

// ErrMissingSeeder is returned when the seeder is not provided.
var ErrMissingSeeder = errors.New("mcp: seeder is required")
