package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/excerpt"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
	"github.com/custodia-labs/cityseed/internal/tagging"
)

var errNoEnvelope = errors.New("classifier returned no result")

// snippetLimit bounds the text sent to the classifier per node.
const snippetLimit = 2000

// TagStep applies category rule tags and classifier suggestions. A full run
// tags every active node of the city; other runs tag the nodes they touched.
type TagStep struct {
	nodes      driven.NodeStore
	policy     *tagging.Policy
	classifier driven.Classifier
	retrier    *connectors.Retrier
	settings   *domain.PipelineSettings
	locks      *nodeLocks
}

// Name implements Step.
func (s *TagStep) Name() domain.StepName { return domain.StepTag }

// tagTally accumulates counters from concurrent batches.
type tagTally struct {
	mu       sync.Mutex
	counters domain.Counters
}

func (t *tagTally) add(applied, discarded, batches int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TagsApplied += applied
	t.counters.TagsDiscarded += discarded
	t.counters.ClassifierBatches += batches
}

func (t *tagTally) snapshot() domain.Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Run implements Step. A classifier batch that still fails after retries
// fails the step; tags already written stay, and re-running re-merges them
// without lowering any confidence.
func (s *TagStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	if s.policy == nil {
		return domain.Counters{}, fmt.Errorf("%w: no tag policy configured", domain.ErrInvalidInput)
	}
	filter := domain.NodeFilter{CityID: run.CityID, ActiveOnly: true}
	if run.Mode != domain.SeedFull {
		filter.UpdatedSince = run.StartedAt
	}
	nodes, err := s.nodes.ListNodes(ctx, filter)
	if err != nil {
		return domain.Counters{}, fmt.Errorf("list nodes: %w", err)
	}

	tally := &tagTally{}
	for i := range nodes {
		applied, discarded, err := s.apply(ctx, nodes[i].ID, nil)
		if err != nil {
			return tally.snapshot(), err
		}
		tally.add(applied, discarded, 0)
	}

	if s.classifier == nil {
		logger.Debug("no classifier configured, applied rule tags to %d nodes", len(nodes))
		return tally.snapshot(), nil
	}

	snippets, err := s.snippets(ctx, nodes)
	if err != nil {
		return tally.snapshot(), err
	}
	if err := s.classify(ctx, run, snippets, tally); err != nil {
		return tally.snapshot(), err
	}

	c := tally.snapshot()
	logger.Info("tagged %d nodes: %d tags applied, %d discarded, %d classifier batches",
		len(nodes), c.TagsApplied, c.TagsDiscarded, c.ClassifierBatches)
	return c, nil
}

// snippets builds one classifier input per node from its name, category
// and retained excerpts.
func (s *TagStep) snippets(ctx context.Context, nodes []domain.ActivityNode) ([]domain.TextSnippet, error) {
	out := make([]domain.TextSnippet, 0, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		signals, err := s.nodes.ListSignals(ctx, node.ID)
		if err != nil {
			return nil, fmt.Errorf("list signals of %s: %w", node.ID, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s).", node.Name, node.Category)
		for _, sig := range signals {
			if sig.Excerpt != nil && *sig.Excerpt != "" {
				b.WriteString(" ")
				b.WriteString(*sig.Excerpt)
			}
		}
		out = append(out, domain.TextSnippet{NodeID: node.ID, Text: excerpt.Truncate(b.String(), snippetLimit)})
	}
	return out, nil
}

// classify sends snippets in bounded concurrent batches.
func (s *TagStep) classify(ctx context.Context, run *RunContext, snippets []domain.TextSnippet, tally *tagTally) error {
	cfg := s.settings.Classifier
	size := max(1, cfg.BatchSize)
	vocabulary := s.policy.Vocabulary()
	audit := logger.With(map[string]any{"run_id": run.RunID, "city": run.CityID, "model": s.classifier.ModelName()})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Concurrency))
	for start := 0; start < len(snippets); start += size {
		batch := snippets[start:min(start+size, len(snippets))]
		g.Go(func() error {
			var env *domain.ClassificationEnvelope
			_, err := s.retrier.Do(gctx, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
				defer cancel()
				var err error
				env, err = s.classifier.Classify(callCtx, batch, vocabulary)
				if err == nil && env == nil {
					return domain.NewTransientError("classify", errNoEnvelope)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("classify batch of %d: %w", len(batch), err)
			}

			metrics.ClassifierBatchDuration.Observe(env.Latency.Seconds())
			metrics.ClassifierCost.Add(env.Cost)
			audit.Info().
				Int("snippets", len(batch)).
				Float64("cost", env.Cost).
				Dur("latency", env.Latency).
				Str("model_version", env.ModelVersion).
				Msg("classifier batch")

			applied, discarded := 0, 0
			for _, snip := range batch {
				a, d, err := s.apply(gctx, snip.NodeID, env.Tags[snip.NodeID])
				if err != nil {
					return err
				}
				applied += a
				discarded += d
			}
			tally.add(applied, discarded, 1)
			return nil
		})
	}
	return g.Wait()
}

// apply merges suggestions into one node's tags under the node lock.
func (s *TagStep) apply(ctx context.Context, nodeID string, suggestions []domain.TagSuggestion) (int, int, error) {
	unlock := s.locks.acquire(nodeID)
	defer unlock()

	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return 0, 0, fmt.Errorf("get node %s: %w", nodeID, err)
	}
	d := s.policy.Merge(node.Tags, node.Category, suggestions)
	if len(d.Removals) > 0 {
		if err := s.nodes.RemoveTags(ctx, nodeID, d.Removals); err != nil {
			return 0, 0, fmt.Errorf("remove tags of %s: %w", nodeID, err)
		}
	}
	if len(d.Upserts) > 0 {
		if err := s.nodes.UpsertTags(ctx, nodeID, d.Upserts); err != nil {
			return 0, 0, fmt.Errorf("upsert tags of %s: %w", nodeID, err)
		}
		for _, t := range d.Upserts {
			metrics.TagsApplied.WithLabelValues(string(t.Source)).Inc()
		}
	}
	return len(d.Upserts), d.Discarded, nil
}
