package domain

import "time"

// Task IDs for the built-in background jobs.
const (
	TaskIDCitySeed         = "city-seed"
	TaskIDExcerptRetention = "excerpt-retention"
)

// ScheduledTask is the persisted state of one recurring job. It survives
// restarts so a job interrupted mid-interval is picked up on the next tick.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string
}

// Due reports whether an enabled task should start at now. A task that has
// never been scheduled is always due.
func (t *ScheduledTask) Due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	return t.NextRun.IsZero() || !t.NextRun.After(now)
}

// Finish records the outcome of a run and schedules the next one one
// interval after it ended.
func (t *ScheduledTask) Finish(r *TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastError = ""
		t.LastSuccess = r.EndedAt
		return
	}
	t.LastError = r.Error
}

// TaskResult is one entry in a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// Processed counts cities seeded or excerpts purged, depending on the task.
	Processed int

	// RunIDs lists the pipeline runs a city-seed task completed, in city order.
	RunIDs []string

	// Skipped lists cities whose seed was skipped because another run held them.
	Skipped []string
}

// SchedulerConfig is built from the scheduler.* settings.
type SchedulerConfig struct {
	Enabled     bool
	TaskConfigs map[string]TaskConfig

	// Cities are seeded in this order by the city-seed task.
	Cities []string
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the zero TaskConfig for unknown tasks.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig seeds daily and purges excerpts every six hours.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDCitySeed:         {Enabled: true, Interval: 24 * time.Hour},
			TaskIDExcerptRetention: {Enabled: true, Interval: 6 * time.Hour},
		},
	}
}
