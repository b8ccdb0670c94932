// Package blog extracts venue mentions from editorial blog pages.
//
// Pages are parsed with goquery. Each element matching the item selector is
// one mention; the remaining selectors pick the name, category, text,
// author, date and link inside the item.
package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/excerpt"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// ErrMissingURL indicates the source has no url configured.
var ErrMissingURL = errors.New("blog: url is required")

// Config holds the parsed configuration for a blog source.
type Config struct {
	URL              string
	ItemSelector     string
	NameSelector     string
	CategorySelector string
	TextSelector     string
	AuthorSelector   string
	DateSelector     string
	LinkSelector     string
	Sentiment        domain.Sentiment
	ExcerptLimit     int
}

// ParseConfig reads a source's config map. Only url is required.
func ParseConfig(spec domain.SourceSpec) (*Config, error) {
	cfg := &Config{
		URL:              strings.TrimSpace(spec.Config["url"]),
		ItemSelector:     "article",
		NameSelector:     "h2, h3",
		CategorySelector: ".category",
		TextSelector:     "p",
		AuthorSelector:   ".author",
		DateSelector:     "time",
		LinkSelector:     "a[href]",
		Sentiment:        domain.SentimentPositive,
		ExcerptLimit:     excerpt.DefaultLimit,
	}
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(spec.Config[key]); v != "" {
			*dst = v
		}
	}
	set("item_selector", &cfg.ItemSelector)
	set("name_selector", &cfg.NameSelector)
	set("category_selector", &cfg.CategorySelector)
	set("text_selector", &cfg.TextSelector)
	set("author_selector", &cfg.AuthorSelector)
	set("date_selector", &cfg.DateSelector)
	set("link_selector", &cfg.LinkSelector)
	if v := spec.Config["sentiment"]; v != "" {
		cfg.Sentiment = domain.ParseSentiment(v)
	}
	if v := spec.Config["excerpt_limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("blog: invalid excerpt_limit %q", v)
		}
		cfg.ExcerptLimit = n
	}
	return cfg, nil
}

// Connector fetches and parses blog pages.
type Connector struct {
	sourceID string
	config   *Config
	client   *http.Client

	mu     sync.Mutex
	closed bool
}

// New creates a blog connector.
func New(sourceID string, cfg *Config, client *http.Client) *Connector {
	return &Connector{sourceID: sourceID, config: cfg, client: connectors.NewHTTPClient(client)}
}

// Type returns the connector type identifier.
func (c *Connector) Type() domain.SourceType {
	return domain.SourceBlog
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// FetchBatch downloads one page and extracts its mentions. The query may
// override the page with a "url" or "path" param and paginate with "page".
func (c *Connector) FetchBatch(ctx context.Context, q domain.Query) ([]domain.RawSignal, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.NewPermanentError("blog fetch", errors.New("connector closed"))
	}

	pageURL, err := c.pageURL(q)
	if err != nil {
		return nil, domain.NewPermanentError("blog fetch", err)
	}
	body, err := connectors.Get(ctx, c.client, "blog fetch", pageURL.String(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewPermanentError("blog parse", err)
	}
	return c.extract(doc, pageURL, q.CityID), nil
}

func (c *Connector) pageURL(q domain.Query) (*url.URL, error) {
	base, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, err
	}
	target := base
	if v := q.Params["url"]; v != "" {
		if target, err = url.Parse(v); err != nil {
			return nil, err
		}
	} else if v := q.Params["path"]; v != "" {
		if target, err = base.Parse(v); err != nil {
			return nil, err
		}
	}
	if page := q.Params["page"]; page != "" {
		values := target.Query()
		values.Set("page", page)
		target.RawQuery = values.Encode()
	}
	return target, nil
}

func (c *Connector) extract(doc *goquery.Document, pageURL *url.URL, cityID string) []domain.RawSignal {
	signals := make([]domain.RawSignal, 0)
	doc.Find(c.config.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		name := text(item.Find(c.config.NameSelector).First())
		if name == "" {
			return
		}

		var paragraphs []string
		item.Find(c.config.TextSelector).Each(func(_ int, p *goquery.Selection) {
			if t := text(p); t != "" {
				paragraphs = append(paragraphs, t)
			}
		})
		body := excerpt.Clean(strings.Join(paragraphs, "\n"), excerpt.FormatPlain)

		sentiment := c.config.Sentiment
		if v, ok := item.Attr("data-sentiment"); ok {
			sentiment = domain.ParseSentiment(v)
		}

		signals = append(signals, domain.RawSignal{
			SourceType:   domain.SourceBlog,
			SourceID:     c.sourceID,
			RawName:      name,
			CategoryHint: category(item, c.config.CategorySelector),
			CityID:       cityID,
			Coordinates:  connectors.ParseCoordinates(item.AttrOr("data-lat", ""), item.AttrOr("data-lon", "")),
			Excerpt:      excerpt.Truncate(body, c.config.ExcerptLimit),
			Sentiment:    sentiment,
			Author:       text(item.Find(c.config.AuthorSelector).First()),
			SourceRef:    link(item, c.config.LinkSelector, pageURL),
			ObservedAt:   date(item.Find(c.config.DateSelector).First()),
		})
	})
	return signals
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func category(item *goquery.Selection, selector string) string {
	if v, ok := item.Attr("data-category"); ok {
		return strings.TrimSpace(v)
	}
	return text(item.Find(selector).First())
}

func date(s *goquery.Selection) time.Time {
	if v, ok := s.Attr("datetime"); ok {
		return connectors.ParseTime(v)
	}
	return connectors.ParseTime(text(s))
}

func link(item *goquery.Selection, selector string, base *url.URL) string {
	href, ok := item.Find(selector).First().Attr("href")
	if !ok {
		return base.String()
	}
	ref, err := base.Parse(href)
	if err != nil {
		return base.String()
	}
	return ref.String()
}
