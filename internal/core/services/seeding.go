package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// Ensure Seeder implements the interface.
var _ driving.Seeder = (*Seeder)(nil)

// Step is one stage of a city run.
type Step interface {
	// Name identifies the step in the checkpoint.
	Name() domain.StepName

	// Run executes the step. It must be safe to re-run after a partial
	// attempt: the orchestrator re-invokes a failed step on resume.
	Run(ctx context.Context, run *RunContext) (domain.Counters, error)
}

// RunContext is the per-run state shared with steps.
type RunContext struct {
	RunID  string
	CityID string

	// StartedAt is when the run was first created. It is stable across
	// resumes, so steps can select nodes touched by the run.
	StartedAt time.Time

	// Mode is the mode the run was created with; a resumed full run stays
	// full.
	Mode domain.SeedMode

	mu            sync.Mutex
	alerts        []domain.Alert
	driftWarnings []string
}

// AddAlerts records dead-letter alerts raised by a step.
func (r *RunContext) AddAlerts(alerts ...domain.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alerts...)
}

// AddDriftWarning records an index parity problem.
func (r *RunContext) AddDriftWarning(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.driftWarnings = append(r.driftWarnings, fmt.Sprintf(format, args...))
}

// SeederOption configures a Seeder.
type SeederOption func(*Seeder)

// WithClock sets the time source.
func WithClock(now func() time.Time) SeederOption {
	return func(s *Seeder) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(next func() string) SeederOption {
	return func(s *Seeder) {
		if next != nil {
			s.newRunID = next
		}
	}
}

// Seeder runs city runs step by step against a persisted checkpoint.
type Seeder struct {
	checkpoints driven.CheckpointStore
	steps       map[domain.StepName]Step
	now         func() time.Time
	newRunID    func() string

	mu     sync.Mutex
	active map[string]string // city -> run id
}

// NewSeeder creates an orchestrator. steps must provide every pipeline step.
func NewSeeder(checkpoints driven.CheckpointStore, steps []Step, opts ...SeederOption) (*Seeder, error) {
	s := &Seeder{
		checkpoints: checkpoints,
		steps:       make(map[domain.StepName]Step, len(steps)),
		now:         time.Now,
		newRunID:    uuid.NewString,
		active:      make(map[string]string),
	}
	for _, st := range steps {
		s.steps[st.Name()] = st
	}
	for _, name := range domain.PipelineSteps {
		if _, ok := s.steps[name]; !ok {
			return nil, fmt.Errorf("%w: no implementation for step %s", domain.ErrInvalidInput, name)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SeedCity runs a city. In full mode a fresh run starts; in resume mode the
// latest unfinished run continues from its first incomplete step. The
// summary is returned on failure as well.
func (s *Seeder) SeedCity(ctx context.Context, cityID string, mode domain.SeedMode) (*domain.RunSummary, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: city is required", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseSeedMode(string(mode)); err != nil {
		return nil, err
	}

	if err := s.claim(cityID); err != nil {
		return nil, err
	}
	defer s.release(cityID)

	cp, err := s.loadOrCreate(ctx, cityID, mode)
	if err != nil {
		return nil, err
	}
	s.setActive(cityID, cp.RunID)

	run := &RunContext{RunID: cp.RunID, CityID: cityID, StartedAt: cp.CreatedAt, Mode: cp.Mode}
	started := s.now().UTC()

	log := logger.With(map[string]any{"run_id": cp.RunID, "city": cityID})
	log.Info().Str("mode", string(mode)).Int("next_step", cp.NextStep()).Msg("seeding run started")

	runErr := s.execute(ctx, cp, run)

	summary := s.summarise(cp, run, mode, started)
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	metrics.RunsTotal.WithLabelValues(string(cp.Status)).Inc()
	log.Info().
		Str("status", string(cp.Status)).
		Int("dead_letters", summary.Totals.DeadLetters).
		Int("nodes_created", summary.Totals.NodesCreated).
		Int("index_upserts", summary.Totals.IndexUpserts).
		Bool("trustworthy", summary.Trustworthy()).
		Msg("seeding run finished")
	return summary, runErr
}

// loadOrCreate picks the checkpoint to execute.
func (s *Seeder) loadOrCreate(ctx context.Context, cityID string, mode domain.SeedMode) (*domain.PipelineCheckpoint, error) {
	if mode == domain.SeedResume {
		cp, err := s.checkpoints.Latest(ctx, cityID)
		switch {
		case err == nil && cp.Status.Resumable():
			if cp.Status == domain.RunAborted {
				cp.Status = domain.RunPending
				cp.UpdatedAt = s.now().UTC()
				if err := s.checkpoints.Save(ctx, cp); err != nil {
					return nil, fmt.Errorf("reopen checkpoint: %w", err)
				}
			}
			logger.Info("resuming run %s for %s at step %d", cp.RunID, cityID, cp.NextStep())
			return cp, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load latest checkpoint: %w", err)
		}
	}

	cp := domain.NewCheckpoint(s.newRunID(), cityID, mode, s.now().UTC())
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return cp, nil
}

// execute runs the remaining steps. The checkpoint is written before and
// after every step, and reloaded between steps so an abort from another
// process is observed.
func (s *Seeder) execute(ctx context.Context, cp *domain.PipelineCheckpoint, run *RunContext) error {
	for {
		i := cp.NextStep()
		if i < 0 {
			return nil
		}
		if err := s.checkAborted(ctx, cp); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			cp.Status = domain.RunAborted
			cp.UpdatedAt = s.now().UTC()
			if saveErr := s.checkpoints.Save(context.WithoutCancel(ctx), cp); saveErr != nil {
				logger.Error(saveErr, "save aborted checkpoint %s", cp.RunID)
			}
			return fmt.Errorf("%w: %w", domain.ErrRunAborted, err)
		}

		name := cp.Steps[i].Name
		if err := cp.MarkRunning(i, s.now().UTC()); err != nil {
			return err
		}
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint before %s: %w", name, err)
		}

		logger.Section(string(name))
		start := s.now()
		counters, stepErr := s.steps[name].Run(ctx, run)
		elapsed := s.now().Sub(start)
		abortedMeanwhile := s.isAborted(ctx, cp.RunID)

		if stepErr != nil {
			cp.MarkFailed(i, counters, stepErr, s.now().UTC())
			if abortedMeanwhile {
				cp.Status = domain.RunAborted
			}
			metrics.StepDuration.WithLabelValues(string(name), string(domain.StepFailed)).Observe(elapsed.Seconds())
			if err := s.checkpoints.Save(context.WithoutCancel(ctx), cp); err != nil {
				logger.Error(err, "save failed checkpoint %s", cp.RunID)
			}
			logger.Error(stepErr, "step %s failed for run %s", name, cp.RunID)
			return fmt.Errorf("step %s: %w", name, stepErr)
		}

		if err := cp.MarkCompleted(i, counters, s.now().UTC()); err != nil {
			return err
		}
		if abortedMeanwhile && cp.Status != domain.RunCompleted {
			cp.Status = domain.RunAborted
		}
		metrics.StepDuration.WithLabelValues(string(name), string(domain.StepCompleted)).Observe(elapsed.Seconds())
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint after %s: %w", name, err)
		}
		logger.Info("step %s completed in %s", name, elapsed.Round(time.Millisecond))
	}
}

// checkAborted stops the run if its stored checkpoint was marked aborted.
func (s *Seeder) checkAborted(ctx context.Context, cp *domain.PipelineCheckpoint) error {
	stored, err := s.checkpoints.Get(ctx, cp.RunID)
	if err != nil {
		return fmt.Errorf("reload checkpoint: %w", err)
	}
	if stored.Status == domain.RunAborted {
		cp.Status = domain.RunAborted
		logger.Warn("run %s aborted before step %s", cp.RunID, cp.Steps[cp.NextStep()].Name)
		return domain.ErrRunAborted
	}
	return nil
}

// isAborted reports whether the stored checkpoint was aborted while a step ran.
func (s *Seeder) isAborted(ctx context.Context, runID string) bool {
	stored, err := s.checkpoints.Get(context.WithoutCancel(ctx), runID)
	return err == nil && stored.Status == domain.RunAborted
}

func (s *Seeder) summarise(cp *domain.PipelineCheckpoint, run *RunContext, mode domain.SeedMode, started time.Time) *domain.RunSummary {
	summary := &domain.RunSummary{
		RunID:      cp.RunID,
		CityID:     cp.CityID,
		Mode:       mode,
		Status:     cp.Status,
		StartedAt:  started,
		FinishedAt: s.now().UTC(),
	}
	for _, st := range cp.Steps {
		summary.Steps = append(summary.Steps, domain.StepReport{
			Name:     st.Name,
			Status:   st.Status,
			Counters: st.Counters,
			Error:    st.Error,
			Skipped:  st.Status == domain.StepCompleted && st.FinishedAt.Before(started),
			Duration: stepDuration(st),
		})
		summary.Totals.Add(st.Counters)
	}
	run.mu.Lock()
	summary.Alerts = append(summary.Alerts, run.alerts...)
	summary.DriftWarnings = append(summary.DriftWarnings, run.driftWarnings...)
	run.mu.Unlock()
	return summary
}

func stepDuration(st domain.StepState) time.Duration {
	if st.StartedAt.IsZero() || st.FinishedAt.IsZero() {
		return 0
	}
	return st.FinishedAt.Sub(st.StartedAt)
}

// claim reserves the city before any checkpoint is loaded or created.
func (s *Seeder) claim(cityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.active[cityID]; ok {
		return fmt.Errorf("%w: city %s is running %s", domain.ErrRunInProgress, cityID, current)
	}
	s.active[cityID] = "(starting)"
	return nil
}

func (s *Seeder) setActive(cityID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[cityID] = runID
}

func (s *Seeder) release(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, cityID)
}

// Abort marks a run aborted. A run executing in this or another process
// stops before its next step; completed steps keep their data.
func (s *Seeder) Abort(ctx context.Context, runID string) error {
	prev, err := s.checkpoints.MarkAborted(ctx, runID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("abort run %s: %w", runID, err)
	}
	switch prev {
	case domain.RunCompleted:
		return fmt.Errorf("%w: run %s already completed", domain.ErrInvalidInput, runID)
	case domain.RunAborted:
		return nil
	}
	logger.Info("run %s marked aborted", runID)
	return nil
}

// Status returns the checkpoint of a run.
func (s *Seeder) Status(ctx context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	return s.checkpoints.Get(ctx, runID)
}

// History returns a city's recent checkpoints, most recent first.
func (s *Seeder) History(ctx context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error) {
	return s.checkpoints.List(ctx, cityID, limit)
}
