package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceType identifies a connector family.
type SourceType string

// Supported source types.
const (
	// SourceForum is a community forum (threads, comments).
	SourceForum SourceType = "forum"

	// SourceArchive is an archival dump of older community content.
	SourceArchive SourceType = "archive"

	// SourceBlog is an editorial blog or feed.
	SourceBlog SourceType = "blog"

	// SourceDirectory is a place-directory API listing.
	SourceDirectory SourceType = "directory"
)

// SourceProfile holds the fixed weights attached to a source type.
type SourceProfile struct {
	// Authority is how much a single mention from this source is trusted (0-1).
	// Editorial > forum > directory.
	Authority float64

	// LocalWeight is how strongly the source reflects local opinion (0-1).
	LocalWeight float64

	// TouristWeight is how strongly the source reflects tourist aggregators (0-1).
	TouristWeight float64

	// Ephemeral marks community content whose excerpts are purged after the
	// retention window.
	Ephemeral bool
}

var sourceProfiles = map[SourceType]SourceProfile{
	SourceBlog:      {Authority: 0.8, LocalWeight: 0.6, TouristWeight: 0.4},
	SourceForum:     {Authority: 0.5, LocalWeight: 1.0, TouristWeight: 0.0, Ephemeral: true},
	SourceArchive:   {Authority: 0.4, LocalWeight: 0.8, TouristWeight: 0.2},
	SourceDirectory: {Authority: 0.3, LocalWeight: 0.0, TouristWeight: 1.0, Ephemeral: true},
}

// Profile returns the fixed weights for the source type.
func (t SourceType) Profile() (SourceProfile, bool) {
	p, ok := sourceProfiles[t]
	return p, ok
}

// Valid reports whether the source type is known.
func (t SourceType) Valid() bool {
	_, ok := sourceProfiles[t]
	return ok
}

// Authority returns the fixed authority weight, or 0 for unknown types.
func (t SourceType) Authority() float64 {
	return sourceProfiles[t].Authority
}

// String implements fmt.Stringer.
func (t SourceType) String() string {
	return string(t)
}

// ParseSourceType converts a string to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: source type %q", ErrUnsupportedType, s)
	}
	return t, nil
}

// AllSourceTypes returns the known source types in stable order.
func AllSourceTypes() []SourceType {
	types := make([]SourceType, 0, len(sourceProfiles))
	for t := range sourceProfiles {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// EphemeralSourceTypes returns source types subject to excerpt retention.
func EphemeralSourceTypes() []SourceType {
	var types []SourceType
	for _, t := range AllSourceTypes() {
		if sourceProfiles[t].Ephemeral {
			types = append(types, t)
		}
	}
	return types
}

// Query is one request issued to a connector.
type Query struct {
	// CityID scopes the query to a city.
	CityID string

	// Params are connector-specific request parameters (page, thread id, ...).
	Params map[string]string
}

// Key returns a stable textual form of the query, used in dead-letter ids.
func (q Query) Key() string {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(q.CityID)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(q.Params[k])
	}
	return b.String()
}

// SourceSpec is a configured source feeding one city.
type SourceSpec struct {
	// ID is the unique identifier for the source.
	ID string

	// Type identifies the connector family.
	Type SourceType

	// CityID is the city this source seeds.
	CityID string

	// Name is the human-readable name for this source.
	Name string

	// Config contains connector-specific configuration (base URL, selectors).
	Config map[string]string

	// Queries are the requests issued on every ingest.
	// An empty list means a single query with no parameters.
	Queries []Query

	// CreatedAt is when the source was created.
	CreatedAt time.Time

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time
}

// EffectiveQueries returns the queries to run, defaulting to one bare query.
func (s *SourceSpec) EffectiveQueries() []Query {
	if len(s.Queries) == 0 {
		return []Query{{CityID: s.CityID, Params: map[string]string{}}}
	}
	out := make([]Query, len(s.Queries))
	for i, q := range s.Queries {
		if q.CityID == "" {
			q.CityID = s.CityID
		}
		out[i] = q
	}
	return out
}
