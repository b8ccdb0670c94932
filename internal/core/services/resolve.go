package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/matching"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// ResolveStep attaches staged signals to activity nodes, creating nodes for
// venues not seen before.
//
// Resolution is sequential within a city: every decision sees the nodes
// created by earlier decisions, so two mentions of a new venue in one run
// end up on one node.
type ResolveStep struct {
	staging driven.StagingStore
	nodes   driven.NodeStore
	matcher *matching.Matcher
	now     func() time.Time
	newID   func() string
}

// NewResolveStep creates the resolve step.
func NewResolveStep(staging driven.StagingStore, nodes driven.NodeStore, matcher *matching.Matcher, now func() time.Time) *ResolveStep {
	if now == nil {
		now = time.Now
	}
	return &ResolveStep{staging: staging, nodes: nodes, matcher: matcher, now: now}
}

// Name implements Step.
func (s *ResolveStep) Name() domain.StepName { return domain.StepResolve }

// Run implements Step. Signals whose fingerprint is already stored are
// counted as duplicates, which makes the step safe to re-run.
func (s *ResolveStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	var counters domain.Counters

	staged, err := s.staging.List(ctx, run.RunID)
	if err != nil {
		return counters, fmt.Errorf("list staged signals: %w", err)
	}

	existing, err := s.nodes.ListNodes(ctx, domain.NodeFilter{CityID: run.CityID, ActiveOnly: true})
	if err != nil {
		return counters, fmt.Errorf("load candidate nodes: %w", err)
	}
	candidates := make([]*domain.ActivityNode, len(existing))
	for i := range existing {
		candidates[i] = &existing[i]
	}

	for i := range staged {
		if err := ctx.Err(); err != nil {
			return counters, err
		}
		raw := &staged[i]

		node, outcome, err := s.resolve(ctx, run.CityID, raw, candidates)
		if err != nil {
			var inputErr *domain.ResolutionInputError
			if errors.As(err, &inputErr) {
				counters.SkippedInputs++
				metrics.SignalsResolved.WithLabelValues("skipped").Inc()
				logger.Debug("skip signal: %v", inputErr)
				continue
			}
			return counters, err
		}

		metrics.SignalsResolved.WithLabelValues(outcome).Inc()
		switch outcome {
		case "created":
			counters.NodesCreated++
			candidates = append(candidates, node)
		case "merged":
			counters.NodesMerged++
		case "duplicate":
			counters.SignalsDuplicate++
		}
	}

	// Every staged signal now has a node, so the staging area is spent.
	if err := s.staging.Clear(ctx, run.RunID); err != nil {
		logger.Warn("clear staging for run %s: %v", run.RunID, err)
	}

	logger.Info("resolved %d signals: %d new nodes, %d merged, %d duplicates, %d skipped",
		len(staged), counters.NodesCreated, counters.NodesMerged, counters.SignalsDuplicate, counters.SkippedInputs)
	return counters, nil
}

// resolve decides one signal. It returns the created node for "created".
func (s *ResolveStep) resolve(ctx context.Context, cityID string, raw *domain.RawSignal, candidates []*domain.ActivityNode) (*domain.ActivityNode, string, error) {
	fp := raw.Fingerprint()
	if ok, reason := raw.Usable(); !ok {
		return nil, "", &domain.ResolutionInputError{Fingerprint: fp, Reason: reason}
	}
	if raw.CityID != cityID {
		return nil, "", &domain.ResolutionInputError{Fingerprint: fp, Reason: "signal belongs to city " + raw.CityID}
	}
	mention := matching.MentionFrom(raw)
	if mention.NormalizedName == "" {
		return nil, "", &domain.ResolutionInputError{Fingerprint: fp, Reason: "name normalises to nothing"}
	}

	seen, err := s.nodes.HasSignal(ctx, fp)
	if err != nil {
		return nil, "", fmt.Errorf("check signal %s: %w", fp, err)
	}
	if seen {
		return nil, "duplicate", nil
	}

	now := s.now().UTC()
	if match, score, ok := s.matcher.Best(mention, candidates); ok {
		if err := s.nodes.AttachSignal(ctx, domain.NewQualitySignal(raw, match.ID, now)); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return nil, "duplicate", nil
			}
			return nil, "", fmt.Errorf("attach signal to %s: %w", match.ID, err)
		}
		logger.Debug("matched %q to node %s (%.3f)", raw.RawName, match.ID, score)
		return nil, "merged", nil
	}

	node := &domain.ActivityNode{
		ID:             s.nextID(),
		Name:           raw.RawName,
		NormalizedName: mention.NormalizedName,
		Category:       domain.ParseCategory(raw.CategoryHint),
		CityID:         cityID,
		Coordinates:    mention.Coordinates,
		Tags:           map[string]domain.VibeTag{},
		SourceCount:    1,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.nodes.CreateNode(ctx, node, domain.NewQualitySignal(raw, node.ID, now)); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, "duplicate", nil
		}
		return nil, "", fmt.Errorf("create node for %q: %w", raw.RawName, err)
	}
	return node, "created", nil
}

func (s *ResolveStep) nextID() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}
