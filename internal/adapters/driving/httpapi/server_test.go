package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

type fakeSeeder struct {
	mu      sync.Mutex
	seeded  []string
	seedErr error
	runs    map[string]*domain.PipelineCheckpoint
}

func (f *fakeSeeder) SeedCity(_ context.Context, cityID string, mode domain.SeedMode) (*domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded = append(f.seeded, cityID+"/"+string(mode))
	if errors.Is(f.seedErr, domain.ErrRunInProgress) {
		return nil, f.seedErr
	}
	status := domain.RunCompleted
	if f.seedErr != nil {
		status = domain.RunFailed
	}
	return &domain.RunSummary{
		RunID:  "run-1",
		CityID: cityID,
		Mode:   mode,
		Status: status,
		Totals: domain.Counters{NodesCreated: 3},
	}, f.seedErr
}

func (f *fakeSeeder) Abort(context.Context, string) error { return nil }

func (f *fakeSeeder) Status(_ context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	cp, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return cp, nil
}

func (f *fakeSeeder) History(_ context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error) {
	var out []domain.PipelineCheckpoint
	for _, cp := range f.runs {
		if cp.CityID == cityID && len(out) < limit {
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (f *fakeSeeder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seeded...)
}

type fakePublisher struct {
	report *driving.ParityReport
	err    error
}

func (f *fakePublisher) Publish(context.Context, driving.PublishRequest) (*driving.PublishResult, error) {
	return &driving.PublishResult{}, nil
}

func (f *fakePublisher) CheckParity(context.Context, string) (*driving.ParityReport, error) {
	return f.report, f.err
}

func newTestSeeder() *fakeSeeder {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cp := domain.NewCheckpoint("run-1", "lisbon", domain.SeedFull, now)
	_ = cp.MarkRunning(0, now)
	return &fakeSeeder{runs: map[string]*domain.PipelineCheckpoint{"run-1": cp}}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewServer(newTestSeeder(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h := NewServer(newTestSeeder(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetRun(t *testing.T) {
	h := NewServer(newTestSeeder(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "lisbon", view.CityID)
	assert.Equal(t, string(domain.RunInProgress), view.Status)
	require.Len(t, view.Steps, len(domain.PipelineSteps))
	assert.Equal(t, "running", view.Steps[0].Status)
	assert.NotNil(t, view.Steps[0].StartedAt)
	assert.Nil(t, view.Steps[1].StartedAt)

	rec = do(t, h, http.MethodGet, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	h := NewServer(newTestSeeder(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/cities/lisbon/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 1)

	rec = do(t, h, http.MethodGet, "/cities/lisbon/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetParity(t *testing.T) {
	pub := &fakePublisher{report: &driving.ParityReport{
		CityID:           "lisbon",
		StoreCount:       3,
		IndexCount:       2,
		MissingFromIndex: []string{"n3"},
	}}
	h := NewServer(newTestSeeder(), pub).Handler()

	rec := do(t, h, http.MethodGet, "/cities/lisbon/parity")
	require.Equal(t, http.StatusOK, rec.Code)

	var view ParityView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.InParity)
	assert.Equal(t, []string{"n3"}, view.MissingFromIndex)
	assert.Equal(t, []string{}, view.OrphanedInIndex)
}

func TestGetParity_Unavailable(t *testing.T) {
	rec := do(t, NewServer(newTestSeeder(), nil).Handler(), http.MethodGet, "/cities/lisbon/parity")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pub := &fakePublisher{err: domain.ErrVectorIndexUnavailable}
	rec = do(t, NewServer(newTestSeeder(), pub).Handler(), http.MethodGet, "/cities/lisbon/parity")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostSeed_Async(t *testing.T) {
	seeder := newTestSeeder()
	srv := NewServer(seeder, nil)

	rec := do(t, srv.Handler(), http.MethodPost, "/cities/porto/seed?mode=full")
	srv.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"city_id":"porto","mode":"full"}`, rec.Body.String())
	assert.Equal(t, []string{"porto/full"}, seeder.calls())
}

func TestPostSeed_DefaultsToResume(t *testing.T) {
	seeder := newTestSeeder()
	srv := NewServer(seeder, nil)

	do(t, srv.Handler(), http.MethodPost, "/cities/porto/seed")
	srv.Wait()

	assert.Equal(t, []string{"porto/resume"}, seeder.calls())
}

func TestPostSeed_Wait(t *testing.T) {
	seeder := newTestSeeder()
	h := NewServer(seeder, nil).Handler()

	rec := do(t, h, http.MethodPost, "/cities/porto/seed?wait=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var view SummaryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "completed", view.Status)
	assert.True(t, view.Trustworthy)
	assert.Equal(t, 3, view.Totals.NodesCreated)
}

func TestPostSeed_WaitFailures(t *testing.T) {
	seeder := newTestSeeder()
	seeder.seedErr = errors.New("ingest exploded")
	h := NewServer(seeder, nil).Handler()

	rec := do(t, h, http.MethodPost, "/cities/porto/seed?wait=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)

	seeder.seedErr = fmt.Errorf("city porto: %w", domain.ErrRunInProgress)
	rec = do(t, h, http.MethodPost, "/cities/porto/seed?wait=1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostSeed_BadMode(t *testing.T) {
	seeder := newTestSeeder()
	rec := do(t, NewServer(seeder, nil).Handler(), http.MethodPost, "/cities/porto/seed?mode=sideways")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, seeder.calls())
}

func TestPostSeed_RateLimited(t *testing.T) {
	seeder := newTestSeeder()
	srv := NewServer(seeder, nil)
	h := srv.Handler()

	for i := 0; i < seedRequestsPerMinute; i++ {
		require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/cities/porto/seed").Code)
	}
	rec := do(t, h, http.MethodPost, "/cities/porto/seed")
	srv.Wait()

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, seeder.calls(), seedRequestsPerMinute)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	rec := do(t, NewServer(newTestSeeder(), nil).Handler(), http.MethodGet, "/cities/porto/seed")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(newTestSeeder(), nil)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", domain.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidInput))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrEmbeddingUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New(strings.Repeat("x", 3))))
}
