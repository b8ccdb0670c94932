package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceType_Profile(t *testing.T) {
	for _, st := range AllSourceTypes() {
		p, ok := st.Profile()
		require.True(t, ok, st)
		assert.True(t, p.Authority > 0 && p.Authority <= 1, st)
		assert.InDelta(t, 1.0, p.LocalWeight+p.TouristWeight, 1e-9, st)
	}

	_, ok := SourceType("gossip").Profile()
	assert.False(t, ok)
	assert.Zero(t, SourceType("gossip").Authority())
}

func TestSourceType_AuthorityOrdering(t *testing.T) {
	assert.Greater(t, SourceBlog.Authority(), SourceForum.Authority())
	assert.Greater(t, SourceForum.Authority(), SourceDirectory.Authority())
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType(" Forum ")
	require.NoError(t, err)
	assert.Equal(t, SourceForum, st)

	_, err = ParseSourceType("newspaper")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestAllSourceTypes_Sorted(t *testing.T) {
	assert.Equal(t, []SourceType{SourceArchive, SourceBlog, SourceDirectory, SourceForum}, AllSourceTypes())
}

func TestEphemeralSourceTypes(t *testing.T) {
	assert.Equal(t, []SourceType{SourceDirectory, SourceForum}, EphemeralSourceTypes())
}

func TestQuery_KeyIsOrderIndependent(t *testing.T) {
	a := Query{CityID: "lisbon", Params: map[string]string{"page": "2", "thread": "9"}}
	b := Query{CityID: "lisbon", Params: map[string]string{"thread": "9", "page": "2"}}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "lisbon&page=2&thread=9", a.Key())
}

func TestSourceSpec_EffectiveQueries(t *testing.T) {
	spec := SourceSpec{ID: "s1", Type: SourceBlog, CityID: "porto"}

	qs := spec.EffectiveQueries()
	require.Len(t, qs, 1)
	assert.Equal(t, "porto", qs[0].CityID)

	spec.Queries = []Query{{Params: map[string]string{"page": "1"}}, {CityID: "braga"}}
	qs = spec.EffectiveQueries()
	require.Len(t, qs, 2)
	assert.Equal(t, "porto", qs[0].CityID)
	assert.Equal(t, "braga", qs[1].CityID)
}

func TestConnectorType_RequiredKeys(t *testing.T) {
	ct := ConnectorType{
		ID: SourceBlog,
		ConfigKeys: []ConfigKey{
			{Key: "url", Required: true},
			{Key: "item_selector"},
			{Key: "name_selector", Required: true},
		},
	}

	assert.Equal(t, []string{"url", "name_selector"}, ct.RequiredKeys())
}

func TestConnectorType_Missing(t *testing.T) {
	ct := ConnectorType{
		ID: SourceBlog,
		ConfigKeys: []ConfigKey{
			{Key: "url", Required: true},
			{Key: "item_selector"},
			{Key: "name_selector", Required: true},
		},
	}

	assert.Equal(t, []string{"name_selector"}, ct.Missing(map[string]string{"url": "https://x", "name_selector": "  "}))
	assert.Empty(t, ct.Missing(map[string]string{"url": "https://x", "name_selector": "h2"}))
}
