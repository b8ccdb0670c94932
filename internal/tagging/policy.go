// Package tagging holds the vibe tag policy shared by rule-based and
// classifier-proposed tags: the controlled vocabulary, the category rule
// table, the acceptance threshold and contradiction resolution.
package tagging

import (
	_ "embed"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

//go:embed rules.yaml
var defaultRules []byte

// ruleFile is the YAML layout of the policy document.
type ruleFile struct {
	MinConfidence  float64             `yaml:"minConfidence"`
	Vocabulary     []string            `yaml:"vocabulary"`
	Categories     map[string][]string `yaml:"categories"`
	Contradictions [][]string          `yaml:"contradictions"`
}

// Policy decides which tags a node ends up with.
type Policy struct {
	minConfidence  float64
	vocabulary     map[string]struct{}
	rules          map[domain.Category][]string
	contradictions map[string]map[string]struct{}
}

// Default returns the embedded policy.
func Default() (*Policy, error) {
	return Parse(defaultRules)
}

// Parse builds a policy from a YAML document and checks it is coherent.
func Parse(data []byte) (*Policy, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tag rules: %w", err)
	}
	if f.MinConfidence <= 0 || f.MinConfidence > 1 {
		return nil, fmt.Errorf("%w: minConfidence %v", domain.ErrInvalidInput, f.MinConfidence)
	}

	p := &Policy{
		minConfidence:  f.MinConfidence,
		vocabulary:     make(map[string]struct{}, len(f.Vocabulary)),
		rules:          make(map[domain.Category][]string, len(f.Categories)),
		contradictions: make(map[string]map[string]struct{}),
	}
	for _, tag := range f.Vocabulary {
		p.vocabulary[tag] = struct{}{}
	}

	for _, pair := range f.Contradictions {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: contradiction %v is not a pair", domain.ErrInvalidInput, pair)
		}
		for _, tag := range pair {
			if !p.InVocabulary(tag) {
				return nil, fmt.Errorf("%w: contradiction tag %q not in vocabulary", domain.ErrInvalidInput, tag)
			}
		}
		p.addContradiction(pair[0], pair[1])
		p.addContradiction(pair[1], pair[0])
	}

	for name, tags := range f.Categories {
		cat := domain.Category(name)
		if domain.ParseCategory(name) != cat {
			return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, name)
		}
		for i, tag := range tags {
			if !p.InVocabulary(tag) {
				return nil, fmt.Errorf("%w: rule tag %q not in vocabulary", domain.ErrInvalidInput, tag)
			}
			for _, other := range tags[:i] {
				if p.Contradicts(tag, other) {
					return nil, fmt.Errorf("%w: category %s has contradictory rule tags %s and %s",
						domain.ErrInvalidInput, name, other, tag)
				}
			}
		}
		p.rules[cat] = append([]string(nil), tags...)
	}
	return p, nil
}

func (p *Policy) addContradiction(a, b string) {
	if p.contradictions[a] == nil {
		p.contradictions[a] = make(map[string]struct{})
	}
	p.contradictions[a][b] = struct{}{}
}

// MinConfidence is the classifier acceptance threshold.
func (p *Policy) MinConfidence() float64 {
	return p.minConfidence
}

// InVocabulary reports whether tag is a controlled vocabulary term.
func (p *Policy) InVocabulary(tag string) bool {
	_, ok := p.vocabulary[tag]
	return ok
}

// Contradicts reports whether two tags cannot coexist.
func (p *Policy) Contradicts(a, b string) bool {
	_, ok := p.contradictions[a][b]
	return ok
}

// Vocabulary returns the controlled vocabulary in lexical order.
func (p *Policy) Vocabulary() []string {
	out := make([]string, 0, len(p.vocabulary))
	for tag := range p.vocabulary {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// RuleTags returns the deterministic tags for a category at confidence 1.
func (p *Policy) RuleTags(c domain.Category) []domain.VibeTag {
	names := p.rules[c]
	out := make([]domain.VibeTag, 0, len(names))
	for _, name := range names {
		out = append(out, domain.VibeTag{Tag: name, Confidence: 1, Source: domain.TagSourceRule})
	}
	return out
}

// Decision is the change set Merge computes for one node.
type Decision struct {
	// Upserts are tags to write: new tags or higher confidences.
	Upserts []domain.VibeTag

	// Removals are existing tags that lost a contradiction.
	Removals []string

	// Discarded counts suggestions rejected by threshold, vocabulary or contradiction.
	Discarded int
}

// Merge combines a node's existing tags with its category rule tags and new
// classifier suggestions. Rule tags win ties against classifier tags, and
// confidences only ever move up.
func (p *Policy) Merge(existing map[string]domain.VibeTag, category domain.Category, suggestions []domain.TagSuggestion) Decision {
	var d Decision

	merged := make(map[string]domain.VibeTag, len(existing)+len(suggestions))
	for name, tag := range existing {
		merged[name] = tag
	}
	for _, tag := range p.RuleTags(category) {
		upsert(merged, tag)
	}

	proposed := make(map[string]struct{})
	for _, s := range suggestions {
		if !p.InVocabulary(s.Tag) || math.IsNaN(s.Confidence) || s.Confidence < p.minConfidence || s.Confidence > 1 {
			d.Discarded++
			continue
		}
		proposed[s.Tag] = struct{}{}
		upsert(merged, domain.VibeTag{Tag: s.Tag, Confidence: s.Confidence, Source: domain.TagSourceClassifier})
	}

	kept := p.resolve(merged)

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tag := merged[name]
		old, had := existing[name]
		if _, ok := kept[name]; !ok {
			if had {
				d.Removals = append(d.Removals, name)
			}
			if _, wasProposed := proposed[name]; wasProposed {
				d.Discarded++
			}
			continue
		}
		if !had || tag.Confidence > old.Confidence || tag.Source != old.Source {
			d.Upserts = append(d.Upserts, tag)
		}
	}
	return d
}

// upsert keeps the higher confidence, preferring rule source on ties.
func upsert(set map[string]domain.VibeTag, tag domain.VibeTag) {
	cur, ok := set[tag.Tag]
	if !ok || tag.Confidence > cur.Confidence ||
		(tag.Confidence == cur.Confidence && tag.Source == domain.TagSourceRule) {
		set[tag.Tag] = tag
	}
}

// resolve drops the losing side of every contradiction. Tags are admitted
// greedily by confidence, then rule before classifier, then name.
func (p *Policy) resolve(tags map[string]domain.VibeTag) map[string]struct{} {
	ordered := make([]domain.VibeTag, 0, len(tags))
	for _, t := range tags {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return wins(ordered[i], ordered[j]) })

	kept := make(map[string]struct{}, len(ordered))
	for _, t := range ordered {
		conflict := false
		for name := range kept {
			if p.Contradicts(t.Tag, name) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept[t.Tag] = struct{}{}
		}
	}
	return kept
}

// wins orders a before b in contradiction resolution.
func wins(a, b domain.VibeTag) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Source != b.Source {
		return a.Source == domain.TagSourceRule
	}
	return a.Tag < b.Tag
}
