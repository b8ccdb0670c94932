// Package builtin registers the reference connectors with a factory.
package builtin

import (
	"net/http"

	"github.com/custodia-labs/cityseed/internal/connectors/archive"
	"github.com/custodia-labs/cityseed/internal/connectors/blog"
	"github.com/custodia-labs/cityseed/internal/connectors/directory"
	"github.com/custodia-labs/cityseed/internal/connectors/forum"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// RegisterDefaults registers every built-in connector. Call this during
// application initialisation. A nil client gives each connector its own
// default client.
func RegisterDefaults(f driven.ConnectorFactory, client *http.Client) {
	f.Register(domain.SourceBlog, func(spec domain.SourceSpec) (driven.Connector, error) {
		cfg, err := blog.ParseConfig(spec)
		if err != nil {
			return nil, err
		}
		return blog.New(spec.ID, cfg, client), nil
	})
	f.Register(domain.SourceArchive, func(spec domain.SourceSpec) (driven.Connector, error) {
		cfg, err := archive.ParseConfig(spec)
		if err != nil {
			return nil, err
		}
		return archive.New(spec.ID, cfg, client), nil
	})
	f.Register(domain.SourceDirectory, func(spec domain.SourceSpec) (driven.Connector, error) {
		cfg, err := directory.ParseConfig(spec)
		if err != nil {
			return nil, err
		}
		return directory.New(spec.ID, cfg, client), nil
	})
	f.Register(domain.SourceForum, func(spec domain.SourceSpec) (driven.Connector, error) {
		cfg, err := forum.ParseConfig(spec)
		if err != nil {
			return nil, err
		}
		return forum.New(spec.ID, cfg, client), nil
	})
}

// ConnectorTypes describes the configuration each built-in connector takes.
func ConnectorTypes() []domain.ConnectorType {
	return []domain.ConnectorType{
		{
			ID:          domain.SourceArchive,
			Name:        "Archive dump",
			Description: "JSON-lines archive of older community content",
			ConfigKeys: []domain.ConfigKey{
				{Key: "path", Label: "File path", Description: "Local JSON-lines file"},
				{Key: "url", Label: "URL", Description: "Remote JSON-lines file, used when path is empty"},
			},
			QueryKeys: []domain.ConfigKey{
				{Key: "offset", Label: "First line", Default: "0"},
				{Key: "limit", Label: "Lines per query", Default: "500"},
			},
		},
		{
			ID:          domain.SourceBlog,
			Name:        "Editorial blog",
			Description: "HTML pages scraped with CSS selectors",
			ConfigKeys: []domain.ConfigKey{
				{Key: "url", Label: "Page URL", Required: true},
				{Key: "item_selector", Label: "Item selector", Default: "article"},
				{Key: "name_selector", Label: "Name selector", Default: "h2, h3"},
				{Key: "category_selector", Label: "Category selector", Default: ".category"},
				{Key: "text_selector", Label: "Text selector", Default: "p"},
				{Key: "author_selector", Label: "Author selector", Default: ".author"},
				{Key: "date_selector", Label: "Date selector", Default: "time"},
				{Key: "sentiment", Label: "Default sentiment", Default: "positive"},
				{Key: "excerpt_limit", Label: "Excerpt length", Default: "1000"},
			},
			QueryKeys: []domain.ConfigKey{
				{Key: "path", Label: "Path relative to the page URL"},
				{Key: "url", Label: "Absolute page URL"},
				{Key: "page", Label: "Page number"},
			},
		},
		{
			ID:          domain.SourceDirectory,
			Name:        "Place directory",
			Description: "Place-directory JSON API",
			ConfigKeys: []domain.ConfigKey{
				{Key: "base_url", Label: "API base URL", Required: true},
				{Key: "api_key", Label: "API key", Secret: true},
				{Key: "api_key_env", Label: "API key variable", Description: "Environment variable holding the API key"},
				{Key: "page_size", Label: "Page size", Default: "50"},
			},
			QueryKeys: []domain.ConfigKey{
				{Key: "category", Label: "Category filter"},
				{Key: "q", Label: "Search text"},
				{Key: "page", Label: "Page number", Default: "1"},
			},
		},
		{
			ID:          domain.SourceForum,
			Name:        "Community forum",
			Description: "Forum JSON API with place-annotated comments",
			ConfigKeys: []domain.ConfigKey{
				{Key: "base_url", Label: "API base URL", Required: true},
				{Key: "body_format", Label: "Body format", Description: "markdown, html or plain", Default: "markdown"},
				{Key: "excerpt_limit", Label: "Excerpt length", Default: "400"},
			},
			QueryKeys: []domain.ConfigKey{
				{Key: "thread", Label: "Thread id"},
				{Key: "page", Label: "Page number", Default: "1"},
			},
		},
	}
}
