package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

// mockSeeder is a mock implementation of driving.Seeder.
type mockSeeder struct {
	summary *domain.RunSummary
	runs    []domain.PipelineCheckpoint
	err     error

	city string
	mode domain.SeedMode
}

func (m *mockSeeder) SeedCity(_ context.Context, cityID string, mode domain.SeedMode) (*domain.RunSummary, error) {
	m.city, m.mode = cityID, mode
	return m.summary, m.err
}

func (m *mockSeeder) Abort(context.Context, string) error { return m.err }

func (m *mockSeeder) Status(_ context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	for i := range m.runs {
		if m.runs[i].RunID == runID {
			return &m.runs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSeeder) History(_ context.Context, cityID string, _ int) ([]domain.PipelineCheckpoint, error) {
	var out []domain.PipelineCheckpoint
	for _, cp := range m.runs {
		if cp.CityID == cityID {
			out = append(out, cp)
		}
	}
	return out, m.err
}

// mockPublisher is a mock implementation of driving.Publisher.
type mockPublisher struct {
	report *driving.ParityReport
	err    error
}

func (m *mockPublisher) Publish(context.Context, driving.PublishRequest) (*driving.PublishResult, error) {
	return &driving.PublishResult{}, m.err
}

func (m *mockPublisher) CheckParity(context.Context, string) (*driving.ParityReport, error) {
	return m.report, m.err
}

// mockSourceService is a mock implementation of driving.SourceService.
type mockSourceService struct {
	sources []domain.SourceSpec
	err     error
}

func (m *mockSourceService) Add(context.Context, domain.SourceSpec) error { return m.err }

func (m *mockSourceService) Get(context.Context, string) (*domain.SourceSpec, error) {
	return nil, m.err
}

func (m *mockSourceService) List(_ context.Context, cityID string) ([]domain.SourceSpec, error) {
	var out []domain.SourceSpec
	for _, s := range m.sources {
		if s.CityID == cityID {
			out = append(out, s)
		}
	}
	return out, m.err
}

func (m *mockSourceService) Remove(context.Context, string) error { return m.err }

func (m *mockSourceService) ValidateConfig(context.Context, domain.SourceType, map[string]string) error {
	return m.err
}

// mockDeadLetters is a mock implementation of driving.DeadLetterService.
type mockDeadLetters struct {
	entries []domain.DeadLetterEntry
	filter  domain.DeadLetterFilter
	err     error
}

func (m *mockDeadLetters) List(_ context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	m.filter = filter
	return m.entries, m.err
}

func testCheckpoint() domain.PipelineCheckpoint {
	cp := domain.NewCheckpoint("run-1", "lisbon", domain.SeedFull, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	cp.Status = domain.RunFailed
	cp.Steps[0].Status = domain.StepCompleted
	cp.Steps[0].Counters.SignalsIngested = 40
	cp.Steps[1].Status = domain.StepFailed
	cp.Steps[1].Error = "store unavailable"
	return *cp
}
