package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Sentiment is the polarity hint carried by a signal.
type Sentiment string

// Sentiment values.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentUnknown  Sentiment = "unknown"
)

// ParseSentiment converts a string to a Sentiment, defaulting to unknown.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentNeutral:
		return SentimentNeutral
	default:
		return SentimentUnknown
	}
}

// Value maps sentiment onto [-1, 1]. The second result is false for unknown.
func (s Sentiment) Value() (float64, bool) {
	switch s {
	case SentimentPositive:
		return 1, true
	case SentimentNegative:
		return -1, true
	case SentimentNeutral:
		return 0, true
	default:
		return 0, false
	}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies in WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// RawSignal is one observation extracted from one source before resolution.
// It is immutable once captured.
type RawSignal struct {
	// SourceType identifies the connector that captured the signal.
	SourceType SourceType

	// SourceID is the configured source that produced the signal.
	SourceID string

	// RawName is the venue name as written in the source.
	RawName string

	// CategoryHint is the source's own category label, if any.
	CategoryHint string

	// CityID is the city the mention refers to.
	CityID string

	// Coordinates are present only when the connector supplies them.
	Coordinates *Coordinates

	// Excerpt is the free text surrounding the mention.
	Excerpt string

	// Sentiment is the polarity hint.
	Sentiment Sentiment

	// Author is the account or handle behind the mention, if known.
	Author string

	// SourceRef is the URL or record id of the mention.
	SourceRef string

	// Authority is the fixed per-source-type weight.
	Authority float64

	// ObservedAt is when the mention was made.
	ObservedAt time.Time
}

// Fingerprint returns the deterministic identity of the signal, used to make
// resolution idempotent across reruns.
func (s *RawSignal) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(s.SourceType))
	h.Write([]byte{0})
	h.Write([]byte(s.RawName))
	h.Write([]byte{0})
	h.Write([]byte(s.CityID))
	h.Write([]byte{0})
	h.Write([]byte(s.ObservedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// Usable reports whether the signal carries enough to be resolved.
// The returned reason is empty when usable.
func (s *RawSignal) Usable() (bool, string) {
	if strings.TrimSpace(s.RawName) == "" {
		return false, "missing venue name"
	}
	if strings.TrimSpace(s.CityID) == "" {
		return false, "missing city"
	}
	return true, ""
}

// QualitySignal is a RawSignal after it has been attached to an ActivityNode.
type QualitySignal struct {
	// Fingerprint is the originating RawSignal's fingerprint and the primary key.
	Fingerprint string

	// NodeID is the owning ActivityNode.
	NodeID string

	// SourceType identifies the connector family.
	SourceType SourceType

	// Author is the account behind the mention, if known.
	Author string

	// Authority is the fixed per-source-type weight.
	Authority float64

	// Sentiment is the polarity hint.
	Sentiment Sentiment

	// Excerpt is nil once the retention job has purged it.
	Excerpt *string

	// ObservedAt is when the mention was made.
	ObservedAt time.Time

	// ResolvedAt is when the signal was attached.
	ResolvedAt time.Time
}

// NewQualitySignal attaches a raw signal to a node.
func NewQualitySignal(raw *RawSignal, nodeID string, now time.Time) QualitySignal {
	qs := QualitySignal{
		Fingerprint: raw.Fingerprint(),
		NodeID:      nodeID,
		SourceType:  raw.SourceType,
		Author:      strings.TrimSpace(raw.Author),
		Authority:   raw.Authority,
		Sentiment:   raw.Sentiment,
		ObservedAt:  raw.ObservedAt.UTC(),
		ResolvedAt:  now.UTC(),
	}
	if qs.Sentiment == "" {
		qs.Sentiment = SentimentUnknown
	}
	if raw.Excerpt != "" {
		excerpt := raw.Excerpt
		qs.Excerpt = &excerpt
	}
	return qs
}

// IndependenceKey identifies the independent source behind a signal.
// Signals from the same source type and author collapse to one source.
// Anonymous signals count individually.
func (q *QualitySignal) IndependenceKey() string {
	if q.Author != "" {
		return string(q.SourceType) + "/" + strings.ToLower(q.Author)
	}
	return string(q.SourceType) + "#" + q.Fingerprint
}
