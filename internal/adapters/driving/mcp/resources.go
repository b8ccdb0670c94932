package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for cityseed resources.
const uriScheme = "cityseed://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "cities/{cityId}/runs",
		Name:        "city-runs",
		Description: "Recent runs of a city, most recent first",
		MIMEType:    "application/json",
	}, s.handleRunsResource)

	if s.ports.Sources != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "cities/{cityId}/sources",
			Name:        "city-sources",
			Description: "Sources configured for a city",
			MIMEType:    "application/json",
		}, s.handleSourcesResource)
	}
}

// runsResourceLimit caps the run history returned by the runs resource.
const runsResourceLimit = 20

func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	city := extractCityID(req.Params.URI, "/runs")
	if city == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	history, err := s.ports.Seeder.History(ctx, city, runsResourceLimit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	type runInfo struct {
		RunID     string    `json:"run_id"`
		Mode      string    `json:"mode"`
		Status    string    `json:"status"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	infos := make([]runInfo, len(history))
	for i, cp := range history {
		infos[i] = runInfo{
			RunID:     cp.RunID,
			Mode:      string(cp.Mode),
			Status:    string(cp.Status),
			UpdatedAt: cp.UpdatedAt,
		}
	}
	return jsonResult(req.Params.URI, infos)
}

func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	city := extractCityID(req.Params.URI, "/sources")
	if city == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	sources, err := s.ports.Sources.List(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	// Config is left out; it may hold API keys.
	type sourceInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	infos := make([]sourceInfo, len(sources))
	for i, src := range sources {
		infos[i] = sourceInfo{ID: src.ID, Name: src.Name, Type: string(src.Type)}
	}
	return jsonResult(req.Params.URI, infos)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractCityID extracts the city from a URI like cityseed://cities/{cityId}<suffix>.
func extractCityID(uri, suffix string) string {
	const prefix = uriScheme + "cities/"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}
	city := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	if strings.Contains(city, "/") {
		return ""
	}
	return city
}
