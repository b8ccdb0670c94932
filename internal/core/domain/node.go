package domain

import (
	"sort"
	"strings"
	"time"
)

// Category is the fixed venue classification.
type Category string

// Venue categories.
const (
	CategoryCafe       Category = "cafe"
	CategoryRestaurant Category = "restaurant"
	CategoryBar        Category = "bar"
	CategoryNightlife  Category = "nightlife"
	CategoryMuseum     Category = "museum"
	CategoryPark       Category = "park"
	CategoryShop       Category = "shop"
	CategoryLandmark   Category = "landmark"
	CategoryMarket     Category = "market"
	CategoryOther      Category = "other"
)

// categoryAliases maps free-text hints from sources onto categories.
var categoryAliases = map[string]Category{
	"cafe":        CategoryCafe,
	"café":        CategoryCafe,
	"coffee":      CategoryCafe,
	"coffee shop": CategoryCafe,
	"bakery":      CategoryCafe,
	"restaurant":  CategoryRestaurant,
	"food":        CategoryRestaurant,
	"eatery":      CategoryRestaurant,
	"bistro":      CategoryRestaurant,
	"tasca":       CategoryRestaurant,
	"bar":         CategoryBar,
	"pub":         CategoryBar,
	"wine bar":    CategoryBar,
	"club":        CategoryNightlife,
	"nightclub":   CategoryNightlife,
	"nightlife":   CategoryNightlife,
	"museum":      CategoryMuseum,
	"gallery":     CategoryMuseum,
	"park":        CategoryPark,
	"garden":      CategoryPark,
	"viewpoint":   CategoryLandmark,
	"landmark":    CategoryLandmark,
	"monument":    CategoryLandmark,
	"shop":        CategoryShop,
	"store":       CategoryShop,
	"boutique":    CategoryShop,
	"market":      CategoryMarket,
}

// ParseCategory maps a source hint onto a Category, defaulting to other.
func ParseCategory(hint string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return c
	}
	return CategoryOther
}

// TagSource records where a vibe tag came from.
type TagSource string

// Tag sources.
const (
	TagSourceRule       TagSource = "rule"
	TagSourceClassifier TagSource = "classifier"
)

// VibeTag is a (tag, confidence) pair attached to a node.
type VibeTag struct {
	Tag        string
	Confidence float64
	Source     TagSource
}

// Supersedes reports whether t should replace cur on a node: the higher
// confidence wins, and at equal confidence a rule tag replaces a classifier tag.
func (t VibeTag) Supersedes(cur VibeTag) bool {
	if t.Confidence != cur.Confidence {
		return t.Confidence > cur.Confidence
	}
	return t.Source == TagSourceRule && cur.Source != TagSourceRule
}

// ActivityNode is the canonical venue entity. Nodes are never deleted;
// retired venues are flagged inactive.
type ActivityNode struct {
	// ID is the unique identifier for the node.
	ID string

	// Name is the display name (taken from the first signal).
	Name string

	// NormalizedName is the matching key derived from Name.
	NormalizedName string

	// Category is the venue classification.
	Category Category

	// CityID is the city the venue belongs to.
	CityID string

	// Coordinates are nil when no signal supplied them.
	Coordinates *Coordinates

	// Convergence is the confidence the venue is real and well-attested (0-1).
	Convergence float64

	// Divergence is local minus tourist sentiment; positive favours locals.
	Divergence float64

	// Overrated is derived from Divergence on every scoring run.
	Overrated bool

	// Tags maps tag name to the tag.
	Tags map[string]VibeTag

	// SourceCount is the number of independent contributing sources.
	SourceCount int

	// Active is false for retired venues.
	Active bool

	// PublishedHash is the content hash last written to the vector index.
	PublishedHash string

	// PublishedAt is when the node was last written to the vector index.
	PublishedAt time.Time

	// Version increments on every write.
	Version int64

	// CreatedAt is when the node was created.
	CreatedAt time.Time

	// UpdatedAt is when the node was last changed.
	UpdatedAt time.Time
}

// SortedTags returns the node's tags ordered by name.
func (n *ActivityNode) SortedTags() []VibeTag {
	tags := make([]VibeTag, 0, len(n.Tags))
	for _, t := range n.Tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Tag < tags[j].Tag })
	return tags
}

// Clone returns a deep copy of the node.
func (n *ActivityNode) Clone() *ActivityNode {
	c := *n
	if n.Coordinates != nil {
		coords := *n.Coordinates
		c.Coordinates = &coords
	}
	c.Tags = make(map[string]VibeTag, len(n.Tags))
	for k, v := range n.Tags {
		c.Tags[k] = v
	}
	return &c
}

// Scores is the derived scoring output written back to a node.
type Scores struct {
	Convergence float64
	Divergence  float64
	Overrated   bool
	SourceCount int
}

// NodeFilter selects nodes from the store.
type NodeFilter struct {
	// CityID restricts to one city (required by most callers).
	CityID string

	// IDs restricts to explicit node ids.
	IDs []string

	// ActiveOnly excludes retired nodes.
	ActiveOnly bool

	// UpdatedSince restricts to nodes changed at or after this time.
	UpdatedSince time.Time
}
