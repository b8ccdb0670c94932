package connectors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// AlertFunc is called once per (run, source type) when the dead-letter
// count for that source reaches the alert threshold.
type AlertFunc func(ctx context.Context, alert domain.Alert)

// Job is one configured source and the connector built for it.
type Job struct {
	Spec      domain.SourceSpec
	Connector driven.Connector
}

// RunnerConfig wires the framework around connector calls.
type RunnerConfig struct {
	Settings    *domain.PipelineSettings
	Limiters    *LimiterSet
	Breakers    *BreakerSet
	Retrier     *Retrier
	DeadLetters driven.DeadLetterStore
	Staging     driven.StagingStore
	Alert       AlertFunc
	Now         func() time.Time
}

// Runner fans connector jobs out under the global concurrency limit and
// routes every failed request to the dead-letter store.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a runner. Missing limiters, breakers or retrier are
// built from the settings.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Settings == nil {
		defaults := domain.DefaultPipelineSettings()
		cfg.Settings = &defaults
	}
	if cfg.Limiters == nil {
		cfg.Limiters = NewLimiterSet(cfg.Settings, cfg.Now)
	}
	if cfg.Breakers == nil {
		cfg.Breakers = NewBreakerSet(DefaultBreakerSettings())
	}
	if cfg.Retrier == nil {
		cfg.Retrier = NewRetrier(cfg.Settings.Retry, 0, nil)
	}
	return &Runner{cfg: cfg}
}

// RunResult aggregates the outcome of one ingest.
type RunResult struct {
	Counters domain.Counters
	Alerts   []domain.Alert
}

// runState is shared by the jobs of one Run call.
type runState struct {
	runID  string
	cityID string

	mu       sync.Mutex
	counters domain.Counters
	perType  map[domain.SourceType]int
	alerted  map[domain.SourceType]bool
	alerts   []domain.Alert
}

// Run executes every query of every job. A failed request never fails the
// run; only context cancellation or a storage error does.
func (r *Runner) Run(ctx context.Context, runID, cityID string, jobs []Job) (*RunResult, error) {
	state := &runState{
		runID:   runID,
		cityID:  cityID,
		perType: make(map[domain.SourceType]int),
		alerted: make(map[domain.SourceType]bool),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Settings.Concurrency))
	for _, job := range jobs {
		g.Go(func() error {
			return r.runJob(gctx, state, job)
		})
	}
	err := g.Wait()

	state.mu.Lock()
	defer state.mu.Unlock()
	return &RunResult{Counters: state.counters, Alerts: state.alerts}, err
}

func (r *Runner) runJob(ctx context.Context, state *runState, job Job) error {
	for _, q := range job.Spec.EffectiveQueries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		signals, attempts, fetchErr := r.fetch(ctx, job, q)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := r.deadLetter(ctx, state, job, q, attempts, fetchErr); err != nil {
				return err
			}
			continue
		}

		staged, err := r.cfg.Staging.Stage(ctx, state.runID, signals)
		if err != nil {
			return fmt.Errorf("stage signals from %s: %w", job.Spec.ID, err)
		}
		state.mu.Lock()
		state.counters.SignalsIngested += staged
		state.counters.SignalsDuplicate += len(signals) - staged
		state.mu.Unlock()
	}
	return nil
}

// fetch performs one query with rate limiting, breaker, timeout and retry.
func (r *Runner) fetch(ctx context.Context, job Job, q domain.Query) ([]domain.RawSignal, int, error) {
	sourceType := job.Connector.Type()
	limiter := r.cfg.Limiters.For(sourceType)
	breaker := r.cfg.Breakers.For(sourceType)
	timeout := r.cfg.Settings.LimitsFor(sourceType).Timeout

	var signals []domain.RawSignal
	attempts, err := r.cfg.Retrier.Do(ctx, func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			metrics.FetchAttempts.WithLabelValues(string(sourceType), string(domain.ClassifyFailure(err))).Inc()
			return err
		}

		start := r.cfg.Now()
		out, err := breaker.Execute(func() ([]domain.RawSignal, error) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			out, err := job.Connector.FetchBatch(callCtx, q)
			if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				err = domain.NewTransientError(string(sourceType)+" fetch", err)
			}
			return out, err
		})
		metrics.FetchDuration.WithLabelValues(string(sourceType)).Observe(r.cfg.Now().Sub(start).Seconds())

		if err != nil {
			err = breakerError(sourceType, err)
			metrics.FetchAttempts.WithLabelValues(string(sourceType), string(domain.ClassifyFailure(err))).Inc()
			logger.Debug("fetch %s %s failed: %v", job.Spec.ID, q.Key(), err)
			return err
		}
		metrics.FetchAttempts.WithLabelValues(string(sourceType), "success").Inc()
		signals = out
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return r.normalise(job, signals), attempts, nil
}

// normalise stamps framework-owned fields onto connector output.
func (r *Runner) normalise(job Job, signals []domain.RawSignal) []domain.RawSignal {
	authority := job.Connector.Type().Authority()
	for i := range signals {
		signals[i].SourceType = job.Connector.Type()
		signals[i].Authority = authority
		if signals[i].SourceID == "" {
			signals[i].SourceID = job.Spec.ID
		}
		if signals[i].Sentiment == "" {
			signals[i].Sentiment = domain.SentimentUnknown
		}
	}
	return signals
}

func (r *Runner) deadLetter(ctx context.Context, state *runState, job Job, q domain.Query, attempts int, cause error) error {
	now := r.cfg.Now().UTC()
	sourceType := job.Connector.Type()
	entry := domain.DeadLetterEntry{
		ID:         domain.DeadLetterID(state.runID, job.Spec.ID, q),
		RunID:      state.runID,
		CityID:     state.cityID,
		SourceID:   job.Spec.ID,
		SourceType: sourceType,
		Params:     q.Params,
		Reason:     domain.ClassifyFailure(cause),
		Attempts:   attempts,
		LastError:  cause.Error(),
		FirstSeen:  now,
		LastSeen:   now,
	}
	if err := r.cfg.DeadLetters.Record(ctx, entry); err != nil {
		return fmt.Errorf("record dead letter for %s: %w", job.Spec.ID, err)
	}
	metrics.DeadLetters.WithLabelValues(string(sourceType), string(entry.Reason)).Inc()
	logger.Warn("dead-lettered %s request %s after %d attempts (%s): %v",
		sourceType, q.Key(), attempts, entry.Reason, cause)

	state.mu.Lock()
	state.counters.DeadLetters++
	state.perType[sourceType]++
	var alert *domain.Alert
	threshold := r.cfg.Settings.DeadLetterAlertThreshold
	if threshold > 0 && state.perType[sourceType] >= threshold && !state.alerted[sourceType] {
		state.alerted[sourceType] = true
		alert = &domain.Alert{
			RunID:       state.runID,
			CityID:      state.cityID,
			SourceType:  sourceType,
			DeadLetters: state.perType[sourceType],
			Threshold:   threshold,
			RaisedAt:    now,
		}
		state.alerts = append(state.alerts, *alert)
	}
	state.mu.Unlock()

	if alert != nil && r.cfg.Alert != nil {
		r.cfg.Alert(ctx, *alert)
	}
	return nil
}
