package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// DeadLetterStore persists failed fetch attempts. Entries are upserted on ID:
// a repeat failure raises the attempt count and last-seen time while keeping
// first-seen.
type DeadLetterStore interface {
	// Record stores or updates an entry.
	Record(ctx context.Context, entry domain.DeadLetterEntry) error

	// List returns entries matching the filter, most recent first.
	List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter domain.DeadLetterFilter) (int, error)
}
