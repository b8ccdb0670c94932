// Package forum reads venue mentions from a community forum JSON API.
//
// The forum annotates each comment with the places it mentions. Every
// (comment, place) pair becomes one signal whose excerpt is the part of the
// comment around the mention.
package forum

import (
	"context"
	"errors"
	"net/http"
	"net/url"
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
var ErrMissingBaseURL = errors.New("forum: base_url is required")

// Config holds the parsed configuration for a forum source.
type Config struct {
	BaseURL      string
	BodyFormat   excerpt.Format
	ExcerptLimit int
}

// ParseConfig reads a source's config map.
func ParseConfig(spec domain.SourceSpec) (*Config, error) {
	cfg := &Config{
		BaseURL:      strings.TrimRight(strings.TrimSpace(spec.Config["base_url"]), "/"),
		BodyFormat:   excerpt.FormatMarkdown,
		ExcerptLimit: 400,
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if v := spec.Config["body_format"]; v != "" {
		cfg.BodyFormat = excerpt.ParseFormat(v)
	}
	if v := spec.Config["excerpt_limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("forum: invalid excerpt_limit")
		}
		cfg.ExcerptLimit = n
	}
	return cfg, nil
}

// Mention is a place annotation on a comment.
type Mention struct {
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Sentiment string   `json:"sentiment"`
}

// Comment is one forum post.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Sentiment string    `json:"sentiment"`
	URL       string    `json:"url"`
	CreatedAt string    `json:"created_at"`
	Mentions  []Mention `json:"mentions"`
}

type commentsResponse struct {
	Comments []Comment `json:"comments"`
}

// Connector reads forum threads.
type Connector struct {
	sourceID string
	config   *Config
	client   *http.Client

	mu     sync.Mutex
	closed bool
}

// New creates a forum connector.
func New(sourceID string, cfg *Config, client *http.Client) *Connector {
	return &Connector{sourceID: sourceID, config: cfg, client: connectors.NewHTTPClient(client)}
}

// Type returns the connector type identifier.
func (c *Connector) Type() domain.SourceType {
	return domain.SourceForum
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// FetchBatch reads one page of comments. With a "thread" param it reads that
// thread; otherwise the city's recent comments.
func (c *Connector) FetchBatch(ctx context.Context, q domain.Query) ([]domain.RawSignal, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.NewPermanentError("forum comments", errors.New("connector closed"))
	}

	path := "/cities/" + url.PathEscape(q.CityID) + "/comments"
	if thread := q.Params["thread"]; thread != "" {
		path = "/threads/" + url.PathEscape(thread) + "/comments"
	}
	values := url.Values{}
	values.Set("page", strconv.Itoa(connectors.IntParam(q, "page", 1)))

	body, err := connectors.Get(ctx, c.client, "forum comments", c.config.BaseURL+path+"?"+values.Encode(),
		http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, err
	}

	var resp commentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewPermanentError("forum decode", err)
	}

	signals := make([]domain.RawSignal, 0)
	for _, comment := range resp.Comments {
		text := excerpt.Clean(comment.Body, c.config.BodyFormat)
		for _, m := range comment.Mentions {
			name := strings.TrimSpace(m.Name)
			sentiment := m.Sentiment
			if sentiment == "" {
				sentiment = comment.Sentiment
			}
			signals = append(signals, domain.RawSignal{
				SourceType:   domain.SourceForum,
				SourceID:     c.sourceID,
				RawName:      name,
				CategoryHint: m.Category,
				CityID:       q.CityID,
				Coordinates:  connectors.Coordinates(m.Lat, m.Lon),
				Excerpt:      excerpt.Window(text, name, c.config.ExcerptLimit),
				Sentiment:    domain.ParseSentiment(sentiment),
				Author:       strings.TrimSpace(comment.Author),
				SourceRef:    c.ref(comment),
				ObservedAt:   connectors.ParseTime(comment.CreatedAt),
			})
		}
	}
	return signals, nil
}

func (c *Connector) ref(comment Comment) string {
	if comment.URL != "" {
		return comment.URL
	}
	return c.config.BaseURL + "/comments/" + url.PathEscape(comment.ID)
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
