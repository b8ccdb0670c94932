package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// execute runs the root command with args and returns everything written.
// Flag values are reset afterwards so tests do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	seedMode = string(domain.SeedResume)
	statusCity, statusLimit = "", 10
	publishMode, publishNodes = string(driving.PublishIncremental), nil
	deadLetterRun, deadLetterCity, deadLetterSource = "", "", ""
	deadLetterLimit, deadLetterJSON = 50, false
	sourceAddID, sourceAddType, sourceAddCity, sourceAddName = "", "", "", ""
	sourceAddConfig, sourceAddQueries, sourceListCity = map[string]string{}, nil, ""
	serveAddr = defaultServeAddr
	mcpHTTPAddr = ""
	versionJSON = false
	verbose, logFormat = false, string(logger.FormatAuto)

	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(cmd)
}

// withServices installs s for the duration of the test.
func withServices(t *testing.T, s Services) {
	t.Helper()
	Configure(s)
	t.Cleanup(func() { Configure(Services{}) })
}

type fakeSeeder struct {
	summary *domain.RunSummary
	err     error
	runs    []domain.PipelineCheckpoint
	aborted []string
	lastArg string
}

func (f *fakeSeeder) SeedCity(_ context.Context, cityID string, mode domain.SeedMode) (*domain.RunSummary, error) {
	f.lastArg = cityID + "/" + string(mode)
	return f.summary, f.err
}

func (f *fakeSeeder) Abort(_ context.Context, runID string) error {
	if f.err != nil {
		return f.err
	}
	f.aborted = append(f.aborted, runID)
	return nil
}

func (f *fakeSeeder) Status(_ context.Context, runID string) (*domain.PipelineCheckpoint, error) {
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSeeder) History(_ context.Context, cityID string, limit int) ([]domain.PipelineCheckpoint, error) {
	var out []domain.PipelineCheckpoint
	for _, cp := range f.runs {
		if cp.CityID == cityID && len(out) < limit {
			out = append(out, cp)
		}
	}
	return out, nil
}

type fakePublisher struct {
	req    driving.PublishRequest
	result *driving.PublishResult
	report *driving.ParityReport
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, req driving.PublishRequest) (*driving.PublishResult, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakePublisher) CheckParity(context.Context, string) (*driving.ParityReport, error) {
	return f.report, f.err
}

type fakeRetention struct {
	purged int
	err    error
}

func (f *fakeRetention) Purge(context.Context) (int, error) { return f.purged, f.err }

type fakeOpsServer struct {
	addr    string
	started chan struct{}
	err     error
}

func (f *fakeOpsServer) ListenAndServe(ctx context.Context, addr string) error {
	f.addr = addr
	if f.err != nil {
		return f.err
	}
	close(f.started)
	<-ctx.Done()
	return nil
}

type fakeScheduler struct {
	started, stopped bool
}

func (f *fakeScheduler) Start(ctx context.Context) error {
	f.started = true
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeScheduler) Stop() error {
	f.stopped = true
	return nil
}

type fakeWatcher struct {
	ran bool
}

func (f *fakeWatcher) Run(ctx context.Context) error {
	f.ran = true
	<-ctx.Done()
	return nil
}

type fakeMCPServer struct {
	mode, addr string
}

func (f *fakeMCPServer) Run(context.Context) error {
	f.mode = "stdio"
	return nil
}

func (f *fakeMCPServer) RunHTTP(_ context.Context, addr string) error {
	f.mode, f.addr = "http", addr
	return nil
}

func testSummary(status domain.RunStatus) *domain.RunSummary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &domain.RunSummary{
		RunID:      "run-7",
		CityID:     "lisbon",
		Mode:       domain.SeedFull,
		Status:     status,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Steps: []domain.StepReport{
			{Name: domain.StepIngest, Status: domain.StepCompleted, Counters: domain.Counters{SignalsIngested: 12}, Skipped: true},
			{Name: domain.StepResolve, Status: domain.StepCompleted, Counters: domain.Counters{NodesCreated: 4, NodesMerged: 8}},
		},
		Totals: domain.Counters{SignalsIngested: 12, NodesCreated: 4, NodesMerged: 8},
	}
	if status == domain.RunFailed {
		s.Error = "tag: classifier unavailable"
	}
	return s
}

var errBoom = errors.New("boom")
