package domain

import (
	"fmt"
	"time"
)

// StepName identifies a pipeline step.
type StepName string

// Pipeline steps in execution order.
const (
	StepIngest  StepName = "ingest"
	StepResolve StepName = "resolve"
	StepTag     StepName = "tag"
	StepScore   StepName = "score"
	StepPublish StepName = "publish"
	StepVerify  StepName = "verify"
)

// PipelineSteps is the fixed step order of a city run.
var PipelineSteps = []StepName{StepIngest, StepResolve, StepTag, StepScore, StepPublish, StepVerify}

// StepStatus is the state of one step.
type StepStatus string

// Step states.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// RunStatus is the state of a whole run.
type RunStatus string

// Run states.
const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunAborted    RunStatus = "aborted"
)

// Resumable reports whether a run in this state can be resumed.
func (s RunStatus) Resumable() bool {
	return s == RunPending || s == RunInProgress || s == RunFailed || s == RunAborted
}

// SeedMode selects how a city run starts.
type SeedMode string

// Seed modes.
const (
	// SeedFull starts a fresh run with every step pending.
	SeedFull SeedMode = "full"

	// SeedResume continues the latest unfinished run, or starts fresh.
	SeedResume SeedMode = "resume"
)

// ParseSeedMode converts a string to a SeedMode.
func ParseSeedMode(s string) (SeedMode, error) {
	switch SeedMode(s) {
	case SeedFull, SeedResume:
		return SeedMode(s), nil
	default:
		return "", fmt.Errorf("%w: seed mode %q", ErrInvalidInput, s)
	}
}

// StepState is one step's persisted state.
type StepState struct {
	Name       StepName
	Status     StepStatus
	Counters   Counters
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// PipelineCheckpoint is the persisted state machine of one (city, run).
type PipelineCheckpoint struct {
	RunID     string
	CityID    string
	Mode      SeedMode
	Status    RunStatus
	Steps     []StepState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCheckpoint creates a checkpoint with all steps pending.
func NewCheckpoint(runID, cityID string, mode SeedMode, now time.Time) *PipelineCheckpoint {
	steps := make([]StepState, len(PipelineSteps))
	for i, name := range PipelineSteps {
		steps[i] = StepState{Name: name, Status: StepPending}
	}
	return &PipelineCheckpoint{
		RunID:     runID,
		CityID:    cityID,
		Mode:      mode,
		Status:    RunPending,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StepIndex returns the position of the named step, or -1.
func (c *PipelineCheckpoint) StepIndex(name StepName) int {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return i
		}
	}
	return -1
}

// NextStep returns the index of the first step not completed, or -1 when done.
func (c *PipelineCheckpoint) NextStep() int {
	for i := range c.Steps {
		if c.Steps[i].Status != StepCompleted {
			return i
		}
	}
	return -1
}

// MarkRunning transitions a step to running. The predecessor must be completed.
func (c *PipelineCheckpoint) MarkRunning(i int, now time.Time) error {
	if i < 0 || i >= len(c.Steps) {
		return fmt.Errorf("%w: step index %d", ErrInvalidInput, i)
	}
	if i > 0 && c.Steps[i-1].Status != StepCompleted {
		return fmt.Errorf("%w: step %s cannot start before %s completes",
			ErrInvalidInput, c.Steps[i].Name, c.Steps[i-1].Name)
	}
	if c.Steps[i].Status == StepCompleted {
		return fmt.Errorf("%w: step %s already completed", ErrInvalidInput, c.Steps[i].Name)
	}
	c.Steps[i].Status = StepRunning
	c.Steps[i].Error = ""
	c.Steps[i].StartedAt = now
	c.Steps[i].FinishedAt = time.Time{}
	c.Status = RunInProgress
	c.UpdatedAt = now
	return nil
}

// MarkCompleted transitions a running step to completed.
func (c *PipelineCheckpoint) MarkCompleted(i int, counters Counters, now time.Time) error {
	if c.Steps[i].Status != StepRunning {
		return fmt.Errorf("%w: step %s is %s, not running", ErrInvalidInput, c.Steps[i].Name, c.Steps[i].Status)
	}
	c.Steps[i].Status = StepCompleted
	c.Steps[i].Counters = counters
	c.Steps[i].FinishedAt = now
	c.UpdatedAt = now
	if c.NextStep() == -1 {
		c.Status = RunCompleted
	}
	return nil
}

// MarkFailed transitions a running step to failed and fails the run.
func (c *PipelineCheckpoint) MarkFailed(i int, counters Counters, stepErr error, now time.Time) {
	c.Steps[i].Status = StepFailed
	c.Steps[i].Counters = counters
	if stepErr != nil {
		c.Steps[i].Error = stepErr.Error()
	}
	c.Steps[i].FinishedAt = now
	c.Status = RunFailed
	c.UpdatedAt = now
}

// Clone returns a deep copy of the checkpoint.
func (c *PipelineCheckpoint) Clone() *PipelineCheckpoint {
	cp := *c
	cp.Steps = make([]StepState, len(c.Steps))
	copy(cp.Steps, c.Steps)
	return &cp
}
