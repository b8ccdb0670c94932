// Package archive reads archival dumps of community content.
//
// A dump is a JSON-lines file, local or served over HTTP, with one venue
// mention per line. Queries page through it with offset and limit params.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/excerpt"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// ErrMissingLocation indicates neither path nor url is configured.
var ErrMissingLocation = errors.New("archive: path or url is required")

// DefaultLimit is the number of lines read per query.
const DefaultLimit = 500

// Record is one line of an archive dump.
type Record struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	City       string   `json:"city"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Text       string   `json:"text"`
	Format     string   `json:"format"`
	Sentiment  string   `json:"sentiment"`
	Author     string   `json:"author"`
	URL        string   `json:"url"`
	ObservedAt string   `json:"observed_at"`
}

// Config holds the parsed configuration for an archive source.
type Config struct {
	Path string
	URL  string
}

// ParseConfig reads a source's config map.
func ParseConfig(spec domain.SourceSpec) (*Config, error) {
	cfg := &Config{
		Path: strings.TrimSpace(spec.Config["path"]),
		URL:  strings.TrimSpace(spec.Config["url"]),
	}
	if cfg.Path == "" && cfg.URL == "" {
		return nil, ErrMissingLocation
	}
	return cfg, nil
}

// Connector pages through an archive dump.
type Connector struct {
	sourceID string
	config   *Config
	client   *http.Client

	mu     sync.Mutex
	closed bool
}

// New creates an archive connector.
func New(sourceID string, cfg *Config, client *http.Client) *Connector {
	return &Connector{sourceID: sourceID, config: cfg, client: connectors.NewHTTPClient(client)}
}

// Type returns the connector type identifier.
func (c *Connector) Type() domain.SourceType {
	return domain.SourceArchive
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// FetchBatch reads lines [offset, offset+limit) of the dump and returns the
// mentions belonging to the query's city. Malformed lines are skipped.
func (c *Connector) FetchBatch(ctx context.Context, q domain.Query) ([]domain.RawSignal, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.NewPermanentError("archive read", errors.New("connector closed"))
	}

	offset := connectors.IntParam(q, "offset", 0)
	limit := connectors.IntParam(q, "limit", DefaultLimit)
	if offset < 0 || limit <= 0 {
		return nil, domain.NewPermanentError("archive read", fmt.Errorf("invalid window offset=%d limit=%d", offset, limit))
	}

	r, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	signals := make([]domain.RawSignal, 0)
	line, skipped := 0, 0
	for scanner.Scan() {
		if line >= offset+limit {
			break
		}
		n := line
		line++
		if n < offset {
			continue
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			continue
		}
		city := rec.City
		if city == "" {
			city = q.CityID
		}
		if city != q.CityID {
			continue
		}
		signals = append(signals, c.toSignal(rec, city, n))
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.NewTransientError("archive read", err)
	}
	if skipped > 0 {
		logger.Warn("archive %s: skipped %d malformed lines in [%d,%d)", c.sourceID, skipped, offset, offset+limit)
	}
	return signals, nil
}

func (c *Connector) toSignal(rec Record, city string, line int) domain.RawSignal {
	ref := rec.URL
	if ref == "" {
		ref = fmt.Sprintf("%s#L%d", c.location(), line+1)
	}
	return domain.RawSignal{
		SourceType:   domain.SourceArchive,
		SourceID:     c.sourceID,
		RawName:      strings.TrimSpace(rec.Name),
		CategoryHint: rec.Category,
		CityID:       city,
		Coordinates:  connectors.Coordinates(rec.Lat, rec.Lon),
		Excerpt:      excerpt.Truncate(excerpt.Clean(rec.Text, excerpt.ParseFormat(rec.Format)), excerpt.DefaultLimit),
		Sentiment:    domain.ParseSentiment(rec.Sentiment),
		Author:       strings.TrimSpace(rec.Author),
		SourceRef:    ref,
		ObservedAt:   connectors.ParseTime(rec.ObservedAt),
	}
}

func (c *Connector) location() string {
	if c.config.Path != "" {
		return c.config.Path
	}
	return c.config.URL
}

func (c *Connector) open(ctx context.Context) (io.ReadCloser, error) {
	if c.config.Path != "" {
		f, err := os.Open(c.config.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				return nil, domain.NewPermanentError("archive open", err)
			}
			return nil, domain.NewTransientError("archive open", err)
		}
		return f, nil
	}
	body, err := connectors.Get(ctx, c.client, "archive download", c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
