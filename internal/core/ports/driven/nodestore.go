package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// NodeStore persists the canonical venue graph: ActivityNodes, their
// QualitySignals and vibe tags.
//
// Nodes are never deleted. Signal fingerprints are unique: inserting a
// signal whose fingerprint exists returns domain.ErrAlreadyExists.
type NodeStore interface {
	// CreateNode inserts a node together with its first signal, atomically.
	CreateNode(ctx context.Context, node *domain.ActivityNode, first domain.QualitySignal) error

	// AttachSignal inserts a signal on an existing node and advances the
	// node's updated_at. No other node field changes.
	AttachSignal(ctx context.Context, signal domain.QualitySignal) error

	// HasSignal reports whether a signal with the fingerprint was resolved.
	HasSignal(ctx context.Context, fingerprint string) (bool, error)

	// GetNode retrieves a node (with tags) by ID.
	GetNode(ctx context.Context, id string) (*domain.ActivityNode, error)

	// ListNodes returns nodes (with tags) matching the filter, ordered by id.
	ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.ActivityNode, error)

	// ListNodeIDs returns every node id of a city, ordered.
	ListNodeIDs(ctx context.Context, cityID string) ([]string, error)

	// ListSignals returns a node's signals ordered by fingerprint.
	ListSignals(ctx context.Context, nodeID string) ([]domain.QualitySignal, error)

	// UpsertTags writes tags keyed on (node, tag). An existing tag's
	// confidence is only raised, never lowered.
	UpsertTags(ctx context.Context, nodeID string, tags []domain.VibeTag) error

	// RemoveTags deletes the named tags from a node.
	RemoveTags(ctx context.Context, nodeID string, tags []string) error

	// UpdateScores stores derived scores on a node.
	UpdateScores(ctx context.Context, nodeID string, scores domain.Scores) error

	// MarkPublished records the content hash written to the vector index.
	MarkPublished(ctx context.Context, nodeID, hash string, at time.Time) error

	// SetActive flags a node active or retired.
	SetActive(ctx context.Context, nodeID string, active bool) error

	// PurgeExcerpts nulls excerpts of the given source types observed before
	// the cutoff. Returns the number of signals purged.
	PurgeExcerpts(ctx context.Context, sourceTypes []domain.SourceType, before time.Time) (int, error)
}
