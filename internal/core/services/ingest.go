package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// IngestStep fetches every configured source of the city into staging.
type IngestStep struct {
	sources driven.SourceStore
	factory driven.ConnectorFactory
	runner  *connectors.Runner
}

// NewIngestStep creates the ingest step.
func NewIngestStep(sources driven.SourceStore, factory driven.ConnectorFactory, runner *connectors.Runner) *IngestStep {
	return &IngestStep{sources: sources, factory: factory, runner: runner}
}

// Name implements Step.
func (s *IngestStep) Name() domain.StepName { return domain.StepIngest }

// Run implements Step. Failed requests are dead-lettered by the runner and
// never fail the step. Staging dedupes, so a re-run after a crash only adds
// what was missing.
func (s *IngestStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	specs, err := s.sources.ListByCity(ctx, run.CityID)
	if err != nil {
		return domain.Counters{}, fmt.Errorf("list sources: %w", err)
	}
	if len(specs) == 0 {
		logger.Warn("no sources configured for %s", run.CityID)
		return domain.Counters{}, nil
	}

	jobs := make([]connectors.Job, 0, len(specs))
	for _, spec := range specs {
		conn, err := s.factory.Create(ctx, spec)
		if err != nil {
			logger.Warn("source %s (%s) cannot be built: %v", spec.ID, spec.Type, err)
			conn = &unbuildableConnector{spec: spec, err: err}
		}
		jobs = append(jobs, connectors.Job{Spec: spec, Connector: conn})
	}
	defer func() {
		for _, job := range jobs {
			if err := job.Connector.Close(); err != nil {
				logger.Warn("close connector %s: %v", job.Spec.ID, err)
			}
		}
	}()

	result, err := s.runner.Run(ctx, run.RunID, run.CityID, jobs)
	if result != nil {
		run.AddAlerts(result.Alerts...)
	}
	if err != nil {
		var counters domain.Counters
		if result != nil {
			counters = result.Counters
		}
		return counters, fmt.Errorf("ingest: %w", err)
	}

	logger.Info("ingested %d signals (%d duplicates, %d dead letters) from %d sources",
		result.Counters.SignalsIngested, result.Counters.SignalsDuplicate, result.Counters.DeadLetters, len(jobs))
	return result.Counters, nil
}

// unbuildableConnector stands in for a source whose configuration is rejected,
// so each of its queries is dead-lettered as a permanent failure.
type unbuildableConnector struct {
	spec domain.SourceSpec
	err  error
}

func (c *unbuildableConnector) Type() domain.SourceType { return c.spec.Type }

func (c *unbuildableConnector) SourceID() string { return c.spec.ID }

func (c *unbuildableConnector) FetchBatch(context.Context, domain.Query) ([]domain.RawSignal, error) {
	return nil, domain.NewPermanentError("build connector", c.err)
}

func (c *unbuildableConnector) Close() error { return nil }
