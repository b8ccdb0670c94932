package matching

import (
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Weights are the tunable constants of the match decision.
type Weights struct {
	// NameWeight and GeoWeight combine the two similarities when both sides
	// carry coordinates. They should sum to 1.
	NameWeight float64
	GeoWeight  float64

	// MinNameSimilarity is the name floor when coordinates are available.
	// Two venues in the same building still need similar names.
	MinNameSimilarity float64

	// NameOnlyThreshold is the name similarity required when either side has
	// no coordinates.
	NameOnlyThreshold float64

	// MatchThreshold is the combined score at or above which a mention merges.
	MatchThreshold float64

	// ProximityRadiusKm is the distance at which geo similarity reaches 0.
	ProximityRadiusKm float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		NameWeight:        0.6,
		GeoWeight:         0.4,
		MinNameSimilarity: 0.75,
		NameOnlyThreshold: 0.92,
		MatchThreshold:    0.80,
		ProximityRadiusKm: 0.25,
	}
}

// Mention is the matchable view of an incoming signal.
type Mention struct {
	NormalizedName string
	Coordinates    *domain.Coordinates
}

// MentionFrom builds a Mention from a raw signal.
func MentionFrom(s *domain.RawSignal) Mention {
	m := Mention{NormalizedName: Normalize(s.RawName)}
	if s.Coordinates != nil && s.Coordinates.Valid() {
		c := *s.Coordinates
		m.Coordinates = &c
	}
	return m
}

// ScoreFunc scores a mention against a candidate node in [0, 1].
type ScoreFunc func(m Mention, node *domain.ActivityNode) float64

// Matcher picks the best candidate node for a mention.
type Matcher struct {
	weights Weights
	score   ScoreFunc
}

// NewMatcher creates a matcher using the combined name/geo score.
func NewMatcher(w Weights) *Matcher {
	m := &Matcher{weights: w}
	m.score = m.Combined
	return m
}

// WithScoreFunc replaces the scoring function, keeping the threshold.
func (m *Matcher) WithScoreFunc(f ScoreFunc) *Matcher {
	return &Matcher{weights: m.weights, score: f}
}

// Weights returns the matcher's weights.
func (m *Matcher) Weights() Weights {
	return m.weights
}

// Combined is the default score. Gates that fail return 0 so a single
// threshold comparison decides the match.
func (m *Matcher) Combined(mn Mention, node *domain.ActivityNode) float64 {
	w := m.weights
	name := NameSimilarity(mn.NormalizedName, node.NormalizedName)

	if mn.Coordinates == nil || node.Coordinates == nil {
		if !reaches(name, w.NameOnlyThreshold) {
			return 0
		}
		return name
	}

	if !reaches(name, w.MinNameSimilarity) {
		return 0
	}
	geo := GeoSimilarity(HaversineKm(*mn.Coordinates, *node.Coordinates), w.ProximityRadiusKm)
	return w.NameWeight*name + w.GeoWeight*geo
}

// Best returns the highest-scoring candidate at or above the match threshold.
// Ties go to the older node, then the lower id, so the choice is stable.
// Candidates must already be restricted to active nodes of the mention's city.
func (m *Matcher) Best(mn Mention, candidates []*domain.ActivityNode) (*domain.ActivityNode, float64, bool) {
	var (
		best      *domain.ActivityNode
		bestScore float64
	)
	for _, node := range candidates {
		s := m.score(mn, node)
		if !reaches(s, m.weights.MatchThreshold) {
			continue
		}
		if best == nil || s > bestScore || (s == bestScore && older(node, best)) {
			best, bestScore = node, s
		}
	}
	return best, bestScore, best != nil
}

// tolerance absorbs float rounding in weighted sums, so 0.7*1 + 0.1*1
// still reaches a 0.8 threshold.
const tolerance = 1e-9

// reaches reports whether s is at or above threshold.
func reaches(s, threshold float64) bool {
	return s >= threshold-tolerance
}

func older(a, b *domain.ActivityNode) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
