// Package scoring turns a node's QualitySignals into its convergence and
// divergence scores.
//
// Scores are a cache: they are pure functions of the signal set and are
// recomputed from scratch on every run. Signals are sorted before any
// floating point accumulation so reruns over the same set are bit-identical.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

const (
	// WellAttestedSources is the independent source count at which a venue
	// is considered fully attested.
	WellAttestedSources = 5

	// AuthorityBoost scales how far mean authority lifts convergence
	// toward 1 for venues below the well-attested count.
	AuthorityBoost = 0.5

	// OverratedThreshold is the divergence below which a venue is overrated.
	OverratedThreshold = -0.30
)

// source is one independent contributor after collapsing.
type source struct {
	key       string
	authority float64
	profile   domain.SourceProfile
	sentiment float64
	known     int
}

// Compute scores a node from its signals. Every signal must belong to nodeID,
// come from a known source type and carry a finite authority in [0, 1].
func Compute(nodeID string, signals []domain.QualitySignal) (domain.Scores, error) {
	sorted := make([]domain.QualitySignal, len(signals))
	copy(sorted, signals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Fingerprint < sorted[j].Fingerprint })

	byKey := make(map[string]*source, len(sorted))
	for i := range sorted {
		sig := &sorted[i]
		if err := validate(nodeID, sig); err != nil {
			return domain.Scores{}, err
		}
		profile, _ := sig.SourceType.Profile()

		key := sig.IndependenceKey()
		src, ok := byKey[key]
		if !ok {
			src = &source{key: key, profile: profile}
			byKey[key] = src
		}
		src.authority = math.Max(src.authority, sig.Authority)
		if v, known := sig.Sentiment.Value(); known {
			src.sentiment += v
			src.known++
		}
	}

	sources := make([]*source, 0, len(byKey))
	for _, src := range byKey {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].key < sources[j].key })

	div := divergence(sources)
	return domain.Scores{
		Convergence: convergence(sources),
		Divergence:  div,
		Overrated:   IsOverrated(div),
		SourceCount: len(sources),
	}, nil
}

func validate(nodeID string, sig *domain.QualitySignal) error {
	switch {
	case sig.NodeID != nodeID:
		return &domain.ScoringInconsistencyError{NodeID: nodeID,
			Reason: fmt.Sprintf("signal %s belongs to node %s", sig.Fingerprint, sig.NodeID)}
	case !sig.SourceType.Valid():
		return &domain.ScoringInconsistencyError{NodeID: nodeID,
			Reason: fmt.Sprintf("signal %s has unknown source type %q", sig.Fingerprint, sig.SourceType)}
	case math.IsNaN(sig.Authority) || math.IsInf(sig.Authority, 0) || sig.Authority < 0 || sig.Authority > 1:
		return &domain.ScoringInconsistencyError{NodeID: nodeID,
			Reason: fmt.Sprintf("signal %s has authority %v outside [0,1]", sig.Fingerprint, sig.Authority)}
	}
	return nil
}

// convergence is the independent-source ratio capped at 1, lifted by mean authority.
func convergence(sources []*source) float64 {
	n := len(sources)
	if n == 0 {
		return 0
	}
	base := math.Min(1, float64(n)/WellAttestedSources)

	var sum float64
	for _, s := range sources {
		sum += s.authority
	}
	mean := sum / float64(n)

	return math.Min(1, base+(1-base)*AuthorityBoost*mean)
}

// divergence is local-weighted mean sentiment minus tourist-weighted mean
// sentiment. Sources with only unknown sentiment are ignored. A side with no
// weight contributes 0.
func divergence(sources []*source) float64 {
	var localSum, localWeight, touristSum, touristWeight float64
	for _, s := range sources {
		if s.known == 0 {
			continue
		}
		mean := s.sentiment / float64(s.known)
		localSum += s.profile.LocalWeight * mean
		localWeight += s.profile.LocalWeight
		touristSum += s.profile.TouristWeight * mean
		touristWeight += s.profile.TouristWeight
	}

	var local, tourist float64
	if localWeight > 0 {
		local = localSum / localWeight
	}
	if touristWeight > 0 {
		tourist = touristSum / touristWeight
	}
	return local - tourist
}

// IsOverrated reports whether a divergence marks the venue overrated.
func IsOverrated(d float64) bool {
	return d < OverratedThreshold
}
