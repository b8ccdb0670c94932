package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSignal() RawSignal {
	return RawSignal{
		SourceType: SourceForum,
		RawName:    "Blue Door Cafe",
		CityID:     "lisbon",
		Excerpt:    "best pastel de nata",
		Sentiment:  SentimentPositive,
		Author:     "Maria",
		Authority:  SourceForum.Authority(),
		ObservedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRawSignal_FingerprintStable(t *testing.T) {
	a := sampleSignal()
	b := sampleSignal()
	b.Excerpt = "different text"
	b.ObservedAt = a.ObservedAt.In(time.FixedZone("WEST", 3600))

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	c := sampleSignal()
	c.RawName = "Blue Door Café"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestRawSignal_Usable(t *testing.T) {
	s := sampleSignal()
	ok, reason := s.Usable()
	assert.True(t, ok)
	assert.Empty(t, reason)

	s.RawName = "  "
	ok, reason = s.Usable()
	assert.False(t, ok)
	assert.Equal(t, "missing venue name", reason)

	s = sampleSignal()
	s.CityID = ""
	ok, reason = s.Usable()
	assert.False(t, ok)
	assert.Equal(t, "missing city", reason)
}

func TestNewQualitySignal(t *testing.T) {
	raw := sampleSignal()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	qs := NewQualitySignal(&raw, "node-1", now)

	assert.Equal(t, raw.Fingerprint(), qs.Fingerprint)
	assert.Equal(t, "node-1", qs.NodeID)
	require.NotNil(t, qs.Excerpt)
	assert.Equal(t, "best pastel de nata", *qs.Excerpt)
	assert.Equal(t, now, qs.ResolvedAt)

	raw.Excerpt = ""
	raw.Sentiment = ""
	qs = NewQualitySignal(&raw, "node-1", now)
	assert.Nil(t, qs.Excerpt)
	assert.Equal(t, SentimentUnknown, qs.Sentiment)
}

func TestQualitySignal_IndependenceKey(t *testing.T) {
	a := QualitySignal{Fingerprint: "f1", SourceType: SourceForum, Author: "Maria"}
	b := QualitySignal{Fingerprint: "f2", SourceType: SourceForum, Author: "maria"}
	c := QualitySignal{Fingerprint: "f3", SourceType: SourceBlog, Author: "maria"}
	anon1 := QualitySignal{Fingerprint: "f4", SourceType: SourceForum}
	anon2 := QualitySignal{Fingerprint: "f5", SourceType: SourceForum}

	assert.Equal(t, a.IndependenceKey(), b.IndependenceKey())
	assert.NotEqual(t, a.IndependenceKey(), c.IndependenceKey())
	assert.NotEqual(t, anon1.IndependenceKey(), anon2.IndependenceKey())
}

func TestSentiment(t *testing.T) {
	assert.Equal(t, SentimentNegative, ParseSentiment(" NEGATIVE"))
	assert.Equal(t, SentimentUnknown, ParseSentiment("meh"))

	v, ok := SentimentPositive.Value()
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = SentimentUnknown.Value()
	assert.False(t, ok)
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Lat: 38.71, Lon: -9.14}.Valid())
	assert.False(t, Coordinates{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Coordinates{Lat: 0, Lon: -181}.Valid())
}
