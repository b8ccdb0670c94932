package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// QuotaStore persists daily call counts per source type so a quota holds
// across restarts and across processes sharing the store. Days are UTC
// midnights.
type QuotaStore interface {
	// Used returns the calls recorded for a source on a day.
	Used(ctx context.Context, source domain.SourceType, day time.Time) (int, error)

	// Consume records one call if fewer than limit are recorded for the
	// day. It returns the count after the attempt and whether the call was
	// granted.
	Consume(ctx context.Context, source domain.SourceType, day time.Time, limit int) (int, bool, error)
}
