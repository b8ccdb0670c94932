// Package directory is a client for place-directory JSON APIs.
//
// A listing is one signal. Its sentiment comes from the aggregate star
// rating, which is why directories lean tourist in divergence scoring.
package directory

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/excerpt"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// ErrMissingBaseURL indicates the source has no base_url configured.
var ErrMissingBaseURL = errors.New("directory: base_url is required")

// Config holds the parsed configuration for a directory source.
type Config struct {
	BaseURL string

	// APIKey is sent as a bearer token. api_key_env names an environment
	// variable to read it from so keys stay out of the config file.
	APIKey string

	PageSize int
}

// ParseConfig reads a source's config map.
func ParseConfig(spec domain.SourceSpec) (*Config, error) {
	cfg := &Config{
		BaseURL:  strings.TrimRight(strings.TrimSpace(spec.Config["base_url"]), "/"),
		APIKey:   spec.Config["api_key"],
		PageSize: 50,
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if env := spec.Config["api_key_env"]; env != "" && cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(env)
	}
	if v := spec.Config["page_size"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("directory: invalid page_size")
		}
		cfg.PageSize = n
	}
	return cfg, nil
}

// Place is one listing in a directory response.
type Place struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Summary     string   `json:"summary"`
	URL         string   `json:"url"`
	UpdatedAt   string   `json:"updated_at"`
}

type placesResponse struct {
	Results []Place `json:"results"`
}

// Connector queries a place directory.
type Connector struct {
	sourceID string
	config   *Config
	client   *http.Client

	mu     sync.Mutex
	closed bool
}

// New creates a directory connector.
func New(sourceID string, cfg *Config, client *http.Client) *Connector {
	return &Connector{sourceID: sourceID, config: cfg, client: connectors.NewHTTPClient(client)}
}

// Type returns the connector type identifier.
func (c *Connector) Type() domain.SourceType {
	return domain.SourceDirectory
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// FetchBatch lists one page of places for the query's city. Supported params
// are category, page and q (free-text search).
func (c *Connector) FetchBatch(ctx context.Context, q domain.Query) ([]domain.RawSignal, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.NewPermanentError("directory list", errors.New("connector closed"))
	}

	values := url.Values{}
	values.Set("city", q.CityID)
	values.Set("page", strconv.Itoa(connectors.IntParam(q, "page", 1)))
	values.Set("per_page", strconv.Itoa(c.config.PageSize))
	for _, key := range []string{"category", "q"} {
		if v := q.Params[key]; v != "" {
			values.Set(key, v)
		}
	}

	header := http.Header{"Accept": []string{"application/json"}}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	body, err := connectors.Get(ctx, c.client, "directory list", c.config.BaseURL+"/places?"+values.Encode(), header)
	if err != nil {
		return nil, err
	}

	var resp placesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewPermanentError("directory decode", err)
	}

	signals := make([]domain.RawSignal, 0, len(resp.Results))
	for _, p := range resp.Results {
		ref := p.URL
		if ref == "" {
			ref = c.config.BaseURL + "/places/" + url.PathEscape(p.ID)
		}
		signals = append(signals, domain.RawSignal{
			SourceType:   domain.SourceDirectory,
			SourceID:     c.sourceID,
			RawName:      strings.TrimSpace(p.Name),
			CategoryHint: p.Category,
			CityID:       q.CityID,
			Coordinates:  connectors.Coordinates(p.Lat, p.Lon),
			Excerpt:      excerpt.Truncate(excerpt.Clean(p.Summary, excerpt.FormatPlain), excerpt.DefaultLimit),
			Sentiment:    connectors.RatingSentiment(p.Rating),
			SourceRef:    ref,
			ObservedAt:   connectors.ParseTime(p.UpdatedAt),
		})
	}
	return signals, nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
