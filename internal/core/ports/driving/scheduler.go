package driving

import "context"

// Scheduler runs city seeding and excerpt retention on their configured
// intervals while `cityseed serve` is up.
type Scheduler interface {
	// Start blocks until ctx ends or Stop is called.
	Start(ctx context.Context) error
	// Stop cancels running jobs and waits for them to record their results.
	Stop() error
}
