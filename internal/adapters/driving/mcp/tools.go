package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// defaultDeadLetterLimit caps list_dead_letters when no limit is given.
const defaultDeadLetterLimit = 20

// SeedInput is the input schema for the seed_city tool.
type SeedInput struct {
	City string `json:"city" jsonschema:"the city id to seed"`
	Mode string `json:"mode,omitempty" jsonschema:"full or resume (default resume)"`
}

// SeedOutput is the output schema for the seed_city tool.
type SeedOutput struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Trustworthy bool            `json:"trustworthy"`
	Totals      domain.Counters `json:"totals"`
	Alerts      []string        `json:"alerts,omitempty"`
	Drift       []string        `json:"drift,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// StatusInput is the input schema for the run_status tool.
type StatusInput struct {
	RunID string `json:"run_id" jsonschema:"the run id returned by seed_city"`
}

// StatusOutput is the output schema for the run_status tool.
type StatusOutput struct {
	RunID     string       `json:"run_id"`
	CityID    string       `json:"city_id"`
	Mode      string       `json:"mode"`
	Status    string       `json:"status"`
	Steps     []StepOutput `json:"steps"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StepOutput is one step of a run.
type StepOutput struct {
	Name     string          `json:"name"`
	Status   string          `json:"status"`
	Counters domain.Counters `json:"counters"`
	Error    string          `json:"error,omitempty"`
}

// ParityInput is the input schema for the check_parity tool.
type ParityInput struct {
	City string `json:"city" jsonschema:"the city id to check"`
}

// ParityOutput is the output schema for the check_parity tool.
type ParityOutput struct {
	InParity         bool     `json:"in_parity"`
	StoreCount       int      `json:"store_count"`
	IndexCount       int      `json:"index_count"`
	MissingFromIndex []string `json:"missing_from_index"`
	OrphanedInIndex  []string `json:"orphaned_in_index"`
}

// DeadLetterInput is the input schema for the list_dead_letters tool.
type DeadLetterInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"only entries of this run"`
	City  string `json:"city,omitempty" jsonschema:"only entries of this city"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default 20)"`
}

// DeadLetterOutput is the output schema for the list_dead_letters tool.
type DeadLetterOutput struct {
	Entries []DeadLetterEntryOutput `json:"entries"`
	Count   int                     `json:"count"`
}

// DeadLetterEntryOutput is one failed fetch.
type DeadLetterEntryOutput struct {
	SourceID  string            `json:"source_id"`
	Source    string            `json:"source_type"`
	Reason    string            `json:"reason"`
	Attempts  int               `json:"attempts"`
	Params    map[string]string `json:"params,omitempty"`
	LastError string            `json:"last_error"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "seed_city",
		Description: "Run the seeding pipeline for a city and return its summary",
	}, s.handleSeed)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "run_status",
		Description: "Show the per-step checkpoint of a run",
	}, s.handleStatus)

	if s.ports.Publisher != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "check_parity",
			Description: "Compare a city's canonical nodes with the vector index",
		}, s.handleParity)
	}

	if s.ports.DeadLetters != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_dead_letters",
			Description: "List fetches that failed permanently or exhausted their retries",
		}, s.handleDeadLetters)
	}
}

func (s *Server) handleSeed(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SeedInput,
) (*mcp.CallToolResult, SeedOutput, error) {
	if input.City == "" {
		return nil, SeedOutput{}, errors.New("city is required")
	}
	mode := domain.SeedResume
	if input.Mode != "" {
		parsed, err := domain.ParseSeedMode(input.Mode)
		if err != nil {
			return nil, SeedOutput{}, err
		}
		mode = parsed
	}

	summary, err := s.ports.Seeder.SeedCity(ctx, input.City, mode)
	if summary == nil {
		if err == nil {
			err = errors.New("seed returned no summary")
		}
		return nil, SeedOutput{}, err
	}

	// A failed run still has a summary worth returning.
	out := SeedOutput{
		RunID:       summary.RunID,
		Status:      string(summary.Status),
		Trustworthy: summary.Trustworthy(),
		Totals:      summary.Totals,
		Drift:       summary.DriftWarnings,
		Error:       summary.Error,
	}
	for _, a := range summary.Alerts {
		out.Alerts = append(out.Alerts, fmt.Sprintf("%s reached %d dead letters (threshold %d)",
			a.SourceType, a.DeadLetters, a.Threshold))
	}
	if out.Error == "" && err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	cp, err := s.ports.Seeder.Status(ctx, input.RunID)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	out := StatusOutput{
		RunID:     cp.RunID,
		CityID:    cp.CityID,
		Mode:      string(cp.Mode),
		Status:    string(cp.Status),
		Steps:     make([]StepOutput, len(cp.Steps)),
		UpdatedAt: cp.UpdatedAt,
	}
	for i, st := range cp.Steps {
		out.Steps[i] = StepOutput{
			Name:     string(st.Name),
			Status:   string(st.Status),
			Counters: st.Counters,
			Error:    st.Error,
		}
	}
	return nil, out, nil
}

func (s *Server) handleParity(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ParityInput,
) (*mcp.CallToolResult, ParityOutput, error) {
	report, err := s.ports.Publisher.CheckParity(ctx, input.City)
	if err != nil {
		return nil, ParityOutput{}, err
	}

	out := ParityOutput{
		InParity:         report.InParity(),
		StoreCount:       report.StoreCount,
		IndexCount:       report.IndexCount,
		MissingFromIndex: report.MissingFromIndex,
		OrphanedInIndex:  report.OrphanedInIndex,
	}
	if out.MissingFromIndex == nil {
		out.MissingFromIndex = []string{}
	}
	if out.OrphanedInIndex == nil {
		out.OrphanedInIndex = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleDeadLetters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeadLetterInput,
) (*mcp.CallToolResult, DeadLetterOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}

	entries, err := s.ports.DeadLetters.List(ctx, domain.DeadLetterFilter{
		RunID:  input.RunID,
		CityID: input.City,
		Limit:  limit,
	})
	if err != nil {
		return nil, DeadLetterOutput{}, err
	}

	out := DeadLetterOutput{
		Entries: make([]DeadLetterEntryOutput, len(entries)),
		Count:   len(entries),
	}
	for i, e := range entries {
		out.Entries[i] = DeadLetterEntryOutput{
			SourceID:  e.SourceID,
			Source:    string(e.SourceType),
			Reason:    string(e.Reason),
			Attempts:  e.Attempts,
			Params:    e.Params,
			LastError: e.LastError,
		}
	}
	return nil, out, nil
}
