package mcp

import (
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server uses.
type Ports struct {
	// Seeder runs cities and reports run status.
	Seeder driving.Seeder

	// Publisher answers parity checks. Optional.
	Publisher driving.Publisher

	// Sources lists a city's sources. Optional.
	Sources driving.SourceService

	// DeadLetters lists failed fetches. Optional.
	DeadLetters driving.DeadLetterService

	// Version is reported to clients; empty means "dev".
	Version string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Seeder == nil {
		return ErrMissingSeeder
	}
	return nil
}
