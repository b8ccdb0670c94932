package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// SchedulerStore keeps task state and run history so the scheduler resumes
// its timetable after a restart.
type SchedulerStore interface {
	// GetTask returns nil, nil for an unknown task.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask upserts by ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns up to limit results, newest first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps only the newest keep results of each task.
	PruneHistory(ctx context.Context, keep int) error
}
