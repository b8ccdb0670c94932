package connectors

import (
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// timeLayouts are the timestamp forms sources are known to emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// ParseTime parses a source timestamp. Unparseable or empty input yields the
// zero time, which keeps the fingerprint of an undated mention stable
// across reruns.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Coordinates builds a point from optional lat/lon values. Missing or
// out-of-range values yield nil.
func Coordinates(lat, lon *float64) *domain.Coordinates {
	if lat == nil || lon == nil {
		return nil
	}
	c := domain.Coordinates{Lat: *lat, Lon: *lon}
	if !c.Valid() {
		return nil
	}
	return &c
}

// ParseCoordinates builds a point from textual lat/lon values.
func ParseCoordinates(lat, lon string) *domain.Coordinates {
	la, errLat := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, errLon := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	return Coordinates(&la, &lo)
}

// RatingSentiment maps a 0-5 star rating onto a sentiment.
func RatingSentiment(rating float64) domain.Sentiment {
	switch {
	case rating <= 0:
		return domain.SentimentUnknown
	case rating >= 4:
		return domain.SentimentPositive
	case rating <= 2.5:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// IntParam reads an integer query parameter with a default.
func IntParam(q domain.Query, key string, def int) int {
	if v, ok := q.Params[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
