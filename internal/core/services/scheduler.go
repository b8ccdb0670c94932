package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// historyKeep is the number of results kept per task.
const historyKeep = 100

var _ driving.Scheduler = (*Scheduler)(nil)

// job is the body of a built-in task. It fills in the counters of r and
// returns the error that marks the run failed.
type job struct {
	name string
	run  func(ctx context.Context, r *domain.TaskResult) error
}

// Scheduler runs the city-seed and excerpt-retention jobs on the intervals
// in SchedulerConfig. Task state lives in a SchedulerStore so the timetable
// carries over restarts. Stopping cancels in-flight seeds; their
// checkpoints let the next tick resume them.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	seeder    driving.Seeder
	retention driving.RetentionService
	jobs      map[string]job
	tick      time.Duration
	now       func() time.Time

	mu       sync.Mutex
	cancel   context.CancelCauseFunc
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewScheduler wires the built-in jobs. seeder and retention may be nil;
// their jobs then succeed without doing anything.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	seeder driving.Seeder,
	retention driving.RetentionService,
) *Scheduler {
	s := &Scheduler{
		config:    config,
		store:     store,
		seeder:    seeder,
		retention: retention,
		tick:      time.Minute,
		now:       time.Now,
		inFlight:  make(map[string]bool),
	}
	s.jobs = map[string]job{
		domain.TaskIDCitySeed:         {name: "City Seed", run: s.seedCities},
		domain.TaskIDExcerptRetention: {name: "Excerpt Retention", run: s.purgeExcerpts},
	}
	return s
}

// Start blocks until ctx is cancelled or Stop is called. A second Start
// while running returns nil at once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel(nil)
		s.wg.Wait()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	if err := s.reconcile(ctx); err != nil {
		logger.Error(err, "scheduler: failed to reconcile tasks")
	}

	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if context.Cause(ctx) == errStopped {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

var errStopped = errors.New("scheduler stopped")

// Stop cancels the loop and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel(errStopped)
	s.wg.Wait()
	return nil
}

// reconcile brings stored tasks in line with the configuration. Unknown
// disabled tasks are never created; known ones are disabled in place.
// A changed interval restarts the countdown from now.
func (s *Scheduler) reconcile(ctx context.Context) error {
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	for _, id := range ids {
		cfg := s.config.GetTaskConfig(id)
		enabled := s.config.Enabled && cfg.Enabled && cfg.Interval > 0

		task, err := s.store.GetTask(ctx, id)
		if err != nil {
			return fmt.Errorf("loading task %s: %w", id, err)
		}
		switch {
		case task == nil && !enabled:
			continue
		case task == nil:
			task = &domain.ScheduledTask{ID: id, Name: s.jobs[id].name, NextRun: now.Add(cfg.Interval)}
		case cfg.Interval > 0 && task.Interval != cfg.Interval:
			task.NextRun = now.Add(cfg.Interval)
		}
		if cfg.Interval > 0 {
			task.Interval = cfg.Interval
		}
		task.Enabled = enabled
		if err := s.store.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("saving task %s: %w", id, err)
		}
	}
	return nil
}

// runDue starts every due task that is not already running.
func (s *Scheduler) runDue(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error(err, "scheduler: failed to list tasks")
		return
	}
	now := s.now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.launch(ctx, tasks[i])
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, task domain.ScheduledTask) {
	j, ok := s.jobs[task.ID]
	if !ok {
		logger.Warn("scheduler: no job for task %s", task.ID)
		return
	}
	if !s.claim(task.ID) {
		logger.Debug("scheduler: task %s still running, skipping", task.ID)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(task.ID)
		s.execute(ctx, &task, j)
	}()
}

func (s *Scheduler) claim(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[taskID] {
		return false
	}
	s.inFlight[taskID] = true
	return true
}

func (s *Scheduler) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, taskID)
}

// execute runs j and persists its outcome. Bookkeeping uses a context
// detached from cancellation so a stop still records the interrupted run.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask, j job) {
	result := &domain.TaskResult{TaskID: task.ID, StartedAt: s.now()}
	err := j.run(ctx, result)
	result.EndedAt = s.now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		logger.Error(err, "scheduler: task %s failed", task.ID)
	} else {
		logger.Info("scheduler: task %s done, %d processed", task.ID, result.Processed)
	}
	task.Finish(result)

	bg := context.WithoutCancel(ctx)
	if err := s.store.SaveTask(bg, task); err != nil {
		logger.Error(err, "scheduler: failed to save task %s", task.ID)
	}
	if err := s.store.RecordResult(bg, result); err != nil {
		logger.Error(err, "scheduler: failed to record result for %s", task.ID)
	}
	if err := s.store.PruneHistory(bg, historyKeep); err != nil {
		logger.Error(err, "scheduler: failed to prune history")
	}
}

// seedCities resumes or starts a run for each configured city in order.
// Cities held by another run are recorded as skipped, not failed.
func (s *Scheduler) seedCities(ctx context.Context, r *domain.TaskResult) error {
	if s.seeder == nil {
		return nil
	}
	var errs []error
	for _, city := range s.config.Cities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary, err := s.seeder.SeedCity(ctx, city, domain.SeedResume)
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			r.Skipped = append(r.Skipped, city)
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", city, err))
		default:
			r.Processed++
			r.RunIDs = append(r.RunIDs, summary.RunID)
			if !summary.Trustworthy() {
				logger.Warn("scheduler: run %s for %s completed with dead letters, alerts or drift", summary.RunID, city)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) purgeExcerpts(ctx context.Context, r *domain.TaskResult) error {
	if s.retention == nil {
		return nil
	}
	n, err := s.retention.Purge(ctx)
	r.Processed = n
	return err
}
