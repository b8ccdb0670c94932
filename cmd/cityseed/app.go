package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/ai"
	"github.com/custodia-labs/cityseed/internal/adapters/driven/config/file"
	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/badgerstore"
	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/cityseed/internal/adapters/driving/cli"
	"github.com/custodia-labs/cityseed/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/cityseed/internal/adapters/driving/mcp"
	"github.com/custodia-labs/cityseed/internal/adapters/driving/watcher"
	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/connectors/builtin"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/services"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/matching"
	"github.com/custodia-labs/cityseed/internal/tagging"
)

// app owns every long-lived resource of one process.
type app struct {
	store    *sqlite.Store
	staging  *badgerstore.StagingStore
	ai       *ai.Services
	services cli.Services
}

func newApp(home string) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	configStore, err := file.NewConfigStore(home)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := loadSettings(settingsService)
	if err != nil {
		return nil, err
	}

	a.store, err = sqlite.NewStore(filepath.Join(home, "data"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.staging, err = badgerstore.Open(filepath.Join(home, "staging"))
	if err != nil {
		return nil, fmt.Errorf("opening staging store: %w", err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(home, "prompts"))
	if err != nil {
		return nil, fmt.Errorf("opening prompts: %w", err)
	}
	a.ai, err = ai.Build(settings, prompts)
	if err != nil {
		return nil, fmt.Errorf("building AI services: %w", err)
	}

	policy, err := tagging.Default()
	if err != nil {
		return nil, fmt.Errorf("loading tag policy: %w", err)
	}

	factory := connectors.NewFactory()
	builtin.RegisterDefaults(factory, connectors.NewHTTPClient(nil))
	registry := services.NewConnectorRegistryFrom(builtin.ConnectorTypes())

	limiters := connectors.NewLimiterSet(settings, nil, connectors.WithQuotaStore(a.store.QuotaStore()))
	if err := limiters.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("loading quota usage: %w", err)
	}

	retrier := connectors.NewRetrier(settings.Retry, 0, nil)
	runner := connectors.NewRunner(connectors.RunnerConfig{
		Settings:    settings,
		Limiters:    limiters,
		Retrier:     retrier,
		DeadLetters: a.store.DeadLetterStore(),
		Staging:     a.staging,
		Alert: func(_ context.Context, alert domain.Alert) {
			logger.Warn("run %s: %s reached %d dead letters (threshold %d)",
				alert.RunID, alert.SourceType, alert.DeadLetters, alert.Threshold)
		},
	})

	nodes := a.store.NodeStore()
	publisher := services.NewPublisher(nodes, a.ai.Embedding, a.store.VectorIndex(), settings, retrier)
	if !publisher.Enabled() {
		logger.Debug("publication disabled: no embedding provider configured")
	}

	steps := services.NewPipelineSteps(services.PipelineDeps{
		Settings:   settings,
		Sources:    a.store.SourceStore(),
		Factory:    factory,
		Runner:     runner,
		Staging:    a.staging,
		Nodes:      nodes,
		Matcher:    matching.NewMatcher(matching.DefaultWeights()),
		Policy:     policy,
		Retrier:    retrier,
		Publisher:  publisher,
		Classifier: a.ai.Classifier,
	})
	seeder, err := services.NewSeeder(a.store.CheckpointStore(), steps)
	if err != nil {
		return nil, fmt.Errorf("building seeder: %w", err)
	}

	retention := services.NewRetentionService(nodes, settings.ExcerptRetention)

	sources := services.NewSourceService(a.store.SourceStore(), registry)
	deadLetters := services.NewDeadLetterService(a.store.DeadLetterStore())
	mcpServer, err := mcp.NewServer(&mcp.Ports{
		Seeder:      seeder,
		Publisher:   publisher,
		Sources:     sources,
		DeadLetters: deadLetters,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("building mcp server: %w", err)
	}

	a.services = cli.Services{
		Seeder:            seeder,
		Publisher:         publisher,
		Retention:         retention,
		DeadLetters:       deadLetters,
		Sources:           sources,
		ConnectorRegistry: registry,
		Settings:          settingsService,
		OpsServer:         httpapi.NewServer(seeder, publisher),
		Watcher:           watcher.New(a.store.SourceStore(), seeder, watcher.DefaultDebounce),
		MCP:               mcpServer,
	}
	if cfg := settingsService.GetSchedulerConfig(); cfg.Enabled {
		a.services.Scheduler = services.NewScheduler(cfg, a.store.SchedulerStore(), seeder, retention)
	}
	return a, nil
}

// loadSettings reads settings, falling back to defaults when the config
// file holds invalid values so that `cityseed settings` still works.
func loadSettings(s *services.SettingsService) (*domain.PipelineSettings, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := s.ValidateSettings(settings); err != nil {
		logger.Warn("invalid settings, using defaults: %v", err)
		defaults := s.GetDefaults()
		return &defaults, nil
	}
	return settings, nil
}

// Services returns the ports the CLI drives.
func (a *app) Services() cli.Services {
	return a.services
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.ai != nil {
		a.ai.Close()
	}
	if a.staging != nil {
		if err := a.staging.Close(); err != nil {
			logger.Warn("closing staging store: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("closing store: %v", err)
		}
	}
}
