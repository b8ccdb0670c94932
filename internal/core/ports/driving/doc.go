// Package driving holds the use-case interfaces that the CLI, the ops HTTP
// API, the MCP server and the archive watcher call into. Every interface is
// implemented by a service in internal/core/services; adapters never reach
// past these ports into driven stores.
package driving
