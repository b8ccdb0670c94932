package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryCafe, ParseCategory("Coffee Shop"))
	assert.Equal(t, CategoryNightlife, ParseCategory("club"))
	assert.Equal(t, CategoryOther, ParseCategory("laundromat"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestActivityNode_SortedTags(t *testing.T) {
	n := &ActivityNode{Tags: map[string]VibeTag{
		"quiet":     {Tag: "quiet", Confidence: 0.9},
		"cozy":      {Tag: "cozy", Confidence: 1},
		"local-fav": {Tag: "local-fav", Confidence: 0.8},
	}}

	tags := n.SortedTags()
	assert.Equal(t, "cozy", tags[0].Tag)
	assert.Equal(t, "local-fav", tags[1].Tag)
	assert.Equal(t, "quiet", tags[2].Tag)
}

func TestActivityNode_Clone(t *testing.T) {
	n := &ActivityNode{
		ID:          "n1",
		Coordinates: &Coordinates{Lat: 1, Lon: 2},
		Tags:        map[string]VibeTag{"cozy": {Tag: "cozy", Confidence: 1}},
	}

	c := n.Clone()
	c.Coordinates.Lat = 5
	c.Tags["quiet"] = VibeTag{Tag: "quiet"}

	assert.Equal(t, 1.0, n.Coordinates.Lat)
	assert.Len(t, n.Tags, 1)
}

func TestCounters_Add(t *testing.T) {
	c := Counters{SignalsIngested: 1, DeadLetters: 2}
	c.Add(Counters{SignalsIngested: 4, NodesCreated: 3, DriftDetected: 1})

	assert.Equal(t, 5, c.SignalsIngested)
	assert.Equal(t, 2, c.DeadLetters)
	assert.Equal(t, 3, c.NodesCreated)
	assert.Equal(t, 1, c.DriftDetected)
}

func TestRunSummary_Trustworthy(t *testing.T) {
	s := &RunSummary{Status: RunCompleted}
	assert.True(t, s.Trustworthy())

	s.Totals.DeadLetters = 1
	assert.False(t, s.Trustworthy())

	s = &RunSummary{Status: RunCompleted, DriftWarnings: []string{"drift"}}
	assert.False(t, s.Trustworthy())

	s = &RunSummary{Status: RunFailed}
	assert.False(t, s.Trustworthy())
}

func TestVibeTag_Supersedes(t *testing.T) {
	rule := VibeTag{Tag: "cozy", Confidence: 0.8, Source: TagSourceRule}
	classifier := VibeTag{Tag: "cozy", Confidence: 0.8, Source: TagSourceClassifier}
	stronger := VibeTag{Tag: "cozy", Confidence: 0.9, Source: TagSourceClassifier}

	assert.True(t, rule.Supersedes(classifier))
	assert.False(t, classifier.Supersedes(rule))
	assert.True(t, stronger.Supersedes(rule))
	assert.False(t, rule.Supersedes(stronger))
	assert.False(t, rule.Supersedes(rule))
}
