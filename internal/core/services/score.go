package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/scoring"
)

// ScoreStep recomputes convergence and divergence for every node of the
// city from its full signal set.
type ScoreStep struct {
	nodes   driven.NodeStore
	workers int
	locks   *nodeLocks
}

// NewScoreStep creates the score step.
func NewScoreStep(nodes driven.NodeStore, workers int) *ScoreStep {
	return &ScoreStep{nodes: nodes, workers: workers, locks: &nodeLocks{}}
}

// Name implements Step.
func (s *ScoreStep) Name() domain.StepName { return domain.StepScore }

// Run implements Step. Scores are recomputed from scratch, so a re-run over
// an unchanged signal set writes nothing. An inconsistent signal set fails
// the step.
func (s *ScoreStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	ids, err := s.nodes.ListNodeIDs(ctx, run.CityID)
	if err != nil {
		return domain.Counters{}, fmt.Errorf("list node ids: %w", err)
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.workers))
	for _, id := range ids {
		g.Go(func() error {
			changed, err := s.score(gctx, id)
			if err != nil {
				return err
			}
			if changed {
				updated.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	counters := domain.Counters{ScoresUpdated: int(updated.Load())}
	if err != nil {
		return counters, err
	}
	logger.Info("scored %d nodes, %d changed", len(ids), counters.ScoresUpdated)
	return counters, nil
}

// score recomputes one node under its lock and reports whether it changed.
func (s *ScoreStep) score(ctx context.Context, nodeID string) (bool, error) {
	unlock := s.locks.acquire(nodeID)
	defer unlock()

	signals, err := s.nodes.ListSignals(ctx, nodeID)
	if err != nil {
		return false, fmt.Errorf("list signals of %s: %w", nodeID, err)
	}
	scores, err := scoring.Compute(nodeID, signals)
	if err != nil {
		return false, err
	}

	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return false, fmt.Errorf("get node %s: %w", nodeID, err)
	}
	if node.Convergence == scores.Convergence && node.Divergence == scores.Divergence &&
		node.Overrated == scores.Overrated && node.SourceCount == scores.SourceCount {
		return false, nil
	}
	if err := s.nodes.UpdateScores(ctx, nodeID, scores); err != nil {
		return false, fmt.Errorf("update scores of %s: %w", nodeID, err)
	}
	return true, nil
}
