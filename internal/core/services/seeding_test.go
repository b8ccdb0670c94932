package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// fakeStep counts invocations and delegates to an optional hook.
type fakeStep struct {
	name domain.StepName
	mu   sync.Mutex
	runs int
	hook func(ctx context.Context, run *RunContext, invocation int) (domain.Counters, error)
}

func (s *fakeStep) Name() domain.StepName { return s.name }

func (s *fakeStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	s.mu.Lock()
	s.runs++
	n := s.runs
	s.mu.Unlock()
	if s.hook != nil {
		return s.hook(ctx, run, n)
	}
	return domain.Counters{SignalsIngested: 1}, nil
}

func (s *fakeStep) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// tickingClock advances one second on every call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func fakeSteps() (map[domain.StepName]*fakeStep, []Step) {
	byName := make(map[domain.StepName]*fakeStep)
	steps := make([]Step, 0, len(domain.PipelineSteps))
	for _, name := range domain.PipelineSteps {
		s := &fakeStep{name: name}
		byName[name] = s
		steps = append(steps, s)
	}
	return byName, steps
}

func newTestSeeder(t *testing.T, steps []Step) (*Seeder, *memory.CheckpointStore) {
	t.Helper()
	store := memory.NewCheckpointStore()
	clock := &tickingClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	seq := 0
	seeder, err := NewSeeder(store, steps,
		WithClock(clock.Now),
		WithRunIDs(func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		}),
	)
	require.NoError(t, err)
	return seeder, store
}

func TestNewSeeder_RequiresEveryStep(t *testing.T) {
	_, steps := fakeSteps()

	_, err := NewSeeder(memory.NewCheckpointStore(), steps[:4])
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewSeeder(memory.NewCheckpointStore(), steps)
	assert.NoError(t, err)
}

func TestSeedCity_Validation(t *testing.T) {
	_, steps := fakeSteps()
	seeder, _ := newTestSeeder(t, steps)

	_, err := seeder.SeedCity(context.Background(), "", domain.SeedFull)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = seeder.SeedCity(context.Background(), "lisbon", "sometimes")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSeedCity_RunsStepsInOrder(t *testing.T) {
	byName, steps := fakeSteps()
	var order []domain.StepName
	for _, name := range domain.PipelineSteps {
		byName[name].hook = func(context.Context, *RunContext, int) (domain.Counters, error) {
			order = append(order, name)
			return domain.Counters{}, nil
		}
	}
	seeder, store := newTestSeeder(t, steps)

	summary, err := seeder.SeedCity(context.Background(), "lisbon", domain.SeedFull)
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineSteps, order)
	assert.Equal(t, domain.RunCompleted, summary.Status)
	assert.Equal(t, "run-1", summary.RunID)
	assert.True(t, summary.Trustworthy())

	cp, err := store.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, cp.Status)
	for _, st := range cp.Steps {
		assert.Equal(t, domain.StepCompleted, st.Status)
	}
}

func TestSeedCity_ResumeSkipsCompletedSteps(t *testing.T) {
	byName, steps := fakeSteps()
	byName[domain.StepScore].hook = func(_ context.Context, _ *RunContext, n int) (domain.Counters, error) {
		if n == 1 {
			return domain.Counters{}, errors.New("scoring store unavailable")
		}
		return domain.Counters{ScoresUpdated: 2}, nil
	}
	seeder, _ := newTestSeeder(t, steps)
	ctx := context.Background()

	failed, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring store unavailable")
	assert.Equal(t, domain.RunFailed, failed.Status)
	assert.Equal(t, domain.StepFailed, failed.Steps[3].Status)
	assert.Equal(t, domain.StepPending, failed.Steps[4].Status)
	assert.Zero(t, byName[domain.StepPublish].count())

	resumed, err := seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	require.NoError(t, err)

	assert.Equal(t, failed.RunID, resumed.RunID)
	assert.Equal(t, domain.RunCompleted, resumed.Status)
	for _, name := range []domain.StepName{domain.StepIngest, domain.StepResolve, domain.StepTag} {
		assert.Equal(t, 1, byName[name].count(), "step %s re-ran", name)
	}
	assert.Equal(t, 2, byName[domain.StepScore].count())
	assert.True(t, resumed.Steps[0].Skipped)
	assert.True(t, resumed.Steps[2].Skipped)
	assert.False(t, resumed.Steps[3].Skipped)
	assert.Equal(t, 2, resumed.Totals.ScoresUpdated)
	// Counters of skipped steps carry into the resumed summary.
	assert.Equal(t, 5, resumed.Totals.SignalsIngested)
}

func TestSeedCity_ResumeWithoutCheckpointStartsFresh(t *testing.T) {
	_, steps := fakeSteps()
	seeder, _ := newTestSeeder(t, steps)

	summary, err := seeder.SeedCity(context.Background(), "porto", domain.SeedResume)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, summary.Status)
	assert.Equal(t, domain.SeedResume, summary.Mode)
}

func TestSeedCity_CompletedRunIsNotResumed(t *testing.T) {
	_, steps := fakeSteps()
	seeder, _ := newTestSeeder(t, steps)
	ctx := context.Background()

	first, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.NoError(t, err)
	second, err := seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSeedCity_AbortStopsBeforeNextStep(t *testing.T) {
	byName, steps := fakeSteps()
	seeder, store := newTestSeeder(t, steps)
	byName[domain.StepResolve].hook = func(ctx context.Context, run *RunContext, n int) (domain.Counters, error) {
		if n == 1 {
			require.NoError(t, seeder.Abort(ctx, run.RunID))
		}
		return domain.Counters{NodesCreated: 4}, nil
	}
	ctx := context.Background()

	summary, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.ErrorIs(t, err, domain.ErrRunAborted)
	assert.Equal(t, domain.RunAborted, summary.Status)
	assert.Equal(t, domain.StepCompleted, summary.Steps[1].Status)
	assert.Equal(t, 4, summary.Totals.NodesCreated)
	assert.Zero(t, byName[domain.StepTag].count())

	cp, err := store.Get(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunAborted, cp.Status)

	resumed, err := seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, resumed.RunID)
	assert.Equal(t, domain.RunCompleted, resumed.Status)
	assert.Equal(t, 1, byName[domain.StepResolve].count())
	assert.Equal(t, 1, byName[domain.StepTag].count())
}

func TestSeedCity_AbortedRunAcrossStoreIsObserved(t *testing.T) {
	byName, steps := fakeSteps()
	seeder, store := newTestSeeder(t, steps)
	ctx := context.Background()

	// Another process marks the run aborted while ingest is running.
	byName[domain.StepIngest].hook = func(ctx context.Context, run *RunContext, _ int) (domain.Counters, error) {
		cp, err := store.Get(ctx, run.RunID)
		require.NoError(t, err)
		cp.Status = domain.RunAborted
		require.NoError(t, store.Save(ctx, cp))
		return domain.Counters{}, nil
	}

	summary, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.ErrorIs(t, err, domain.ErrRunAborted)
	assert.Equal(t, domain.RunAborted, summary.Status)
	assert.Zero(t, byName[domain.StepResolve].count())
}

func TestSeedCity_CancelledContextAborts(t *testing.T) {
	byName, steps := fakeSteps()
	ctx, cancel := context.WithCancel(context.Background())
	byName[domain.StepTag].hook = func(context.Context, *RunContext, int) (domain.Counters, error) {
		cancel()
		return domain.Counters{}, nil
	}
	seeder, store := newTestSeeder(t, steps)

	summary, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.ErrorIs(t, err, domain.ErrRunAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunAborted, summary.Status)
	assert.Zero(t, byName[domain.StepScore].count())

	cp, err := store.Get(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunAborted, cp.Status)
	assert.Equal(t, 3, cp.NextStep())
}

func TestSeedCity_RejectsConcurrentRunForCity(t *testing.T) {
	byName, steps := fakeSteps()
	entered := make(chan struct{})
	release := make(chan struct{})
	byName[domain.StepIngest].hook = func(_ context.Context, _ *RunContext, n int) (domain.Counters, error) {
		if n == 1 {
			close(entered)
			<-release
		}
		return domain.Counters{}, nil
	}
	seeder, _ := newTestSeeder(t, steps)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
		done <- err
	}()
	<-entered

	_, err := seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	history, err := seeder.History(ctx, "lisbon", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "a rejected run leaves no checkpoint")

	// Other cities are independent.
	_, err = seeder.SeedCity(ctx, "porto", domain.SeedFull)
	assert.NoError(t, err)

	close(release)
	assert.NoError(t, <-done)
}

func TestSeeder_Abort(t *testing.T) {
	_, steps := fakeSteps()
	seeder, store := newTestSeeder(t, steps)
	ctx := context.Background()

	summary, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.NoError(t, err)
	assert.ErrorIs(t, seeder.Abort(ctx, summary.RunID), domain.ErrInvalidInput)
	assert.ErrorIs(t, seeder.Abort(ctx, "nope"), domain.ErrNotFound)

	cp := domain.NewCheckpoint("pending-run", "lisbon", domain.SeedFull, time.Now())
	require.NoError(t, store.Save(ctx, cp))
	require.NoError(t, seeder.Abort(ctx, "pending-run"))
	require.NoError(t, seeder.Abort(ctx, "pending-run"))

	status, err := seeder.Status(ctx, "pending-run")
	require.NoError(t, err)
	assert.Equal(t, domain.RunAborted, status.Status)
}

func TestSeeder_AbortKeepsRecordedSteps(t *testing.T) {
	byName, steps := fakeSteps()
	seeder, store := newTestSeeder(t, steps)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	cp := domain.NewCheckpoint("half-run", "lisbon", domain.SeedFull, now)
	require.NoError(t, cp.MarkRunning(0, now))
	require.NoError(t, cp.MarkCompleted(0, domain.Counters{SignalsIngested: 9}, now))
	require.NoError(t, cp.MarkRunning(1, now))
	require.NoError(t, store.Save(ctx, cp))

	require.NoError(t, seeder.Abort(ctx, "half-run"))

	stored, err := store.Get(ctx, "half-run")
	require.NoError(t, err)
	assert.Equal(t, domain.RunAborted, stored.Status)
	assert.Equal(t, domain.StepCompleted, stored.Steps[0].Status)
	assert.Equal(t, 9, stored.Steps[0].Counters.SignalsIngested)

	resumed, err := seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	require.NoError(t, err)
	assert.Equal(t, "half-run", resumed.RunID)
	assert.Equal(t, domain.RunCompleted, resumed.Status)
	assert.Zero(t, byName[domain.StepIngest].count())
	assert.Equal(t, 1, byName[domain.StepResolve].count())
}

func TestSeedCity_RunContextCarriesCreationMode(t *testing.T) {
	byName, steps := fakeSteps()
	var modes []domain.SeedMode
	byName[domain.StepTag].hook = func(_ context.Context, run *RunContext, n int) (domain.Counters, error) {
		modes = append(modes, run.Mode)
		if n == 1 {
			return domain.Counters{}, errors.New("boom")
		}
		return domain.Counters{}, nil
	}
	seeder, _ := newTestSeeder(t, steps)
	ctx := context.Background()

	_, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
	require.Error(t, err)
	_, err = seeder.SeedCity(ctx, "lisbon", domain.SeedResume)
	require.NoError(t, err)

	// A resumed full run is still a full run.
	assert.Equal(t, []domain.SeedMode{domain.SeedFull, domain.SeedFull}, modes)
}

func TestSeeder_History(t *testing.T) {
	_, steps := fakeSteps()
	seeder, _ := newTestSeeder(t, steps)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := seeder.SeedCity(ctx, "lisbon", domain.SeedFull)
		require.NoError(t, err)
	}
	_, err := seeder.SeedCity(ctx, "porto", domain.SeedFull)
	require.NoError(t, err)

	history, err := seeder.History(ctx, "lisbon", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "run-3", history[0].RunID)
	assert.Equal(t, "run-2", history[1].RunID)
}
