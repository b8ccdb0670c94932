// Package watcher re-seeds a city when one of its local archive dumps
// changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// DefaultDebounce is how long a dump must stay quiet before its city is
// seeded. Dumps are usually written in many chunks.
const DefaultDebounce = 5 * time.Second

// Watcher watches the local paths of archive sources.
type Watcher struct {
	sources  driven.SourceStore
	seeder   driving.Seeder
	debounce time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(sources driven.SourceStore, seeder driving.Seeder, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		sources:  sources,
		seeder:   seeder,
		debounce: debounce,
		now:      time.Now,
	}
}

// Targets maps each absolute dump path to the cities whose archive sources
// read it. Sources added after Run starts are picked up on the next Run.
func (w *Watcher) Targets(ctx context.Context) (map[string][]string, error) {
	specs, err := w.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	targets := make(map[string][]string)
	for _, spec := range specs {
		path := spec.Config["path"]
		if spec.Type != domain.SourceArchive || path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			logger.Warn("watcher: source %s: %v", spec.ID, err)
			continue
		}
		if !slices.Contains(targets[abs], spec.CityID) {
			targets[abs] = append(targets[abs], spec.CityID)
		}
	}
	return targets, nil
}

// Run watches until ctx is cancelled, then waits for triggered seeds.
// It returns immediately when no archive source has a local path.
func (w *Watcher) Run(ctx context.Context) error {
	targets, err := w.Targets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		logger.Debug("watcher: no local archive dumps to watch")
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	// Watch directories so editors that replace files by rename still
	// produce events for the dump path.
	dirs := make(map[string]struct{})
	for path := range targets {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	logger.Info("watcher: watching %d archive dumps", len(targets))

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			for _, city := range targets[filepath.Clean(ev.Name)] {
				pending[city] = w.now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			logger.Warn("watcher: %v", err)

		case <-ticker.C:
			now := w.now()
			for city, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, city)
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					w.seed(ctx, city)
				}()
			}
		}
	}
}

func (w *Watcher) seed(ctx context.Context, city string) {
	logger.Info("watcher: archive changed, seeding %s", city)
	summary, err := w.seeder.SeedCity(ctx, city, domain.SeedResume)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		logger.Info("watcher: %s already running, skipped", city)
	case errors.Is(err, context.Canceled):
	case err != nil:
		logger.Error(err, "watcher: seeding %s", city)
	case !summary.Trustworthy():
		logger.Warn("watcher: run %s for %s completed with dead letters, alerts or drift", summary.RunID, city)
	}
}
