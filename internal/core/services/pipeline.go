package services

import (
	"time"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/matching"
	"github.com/custodia-labs/cityseed/internal/tagging"
)

// PipelineDeps wires the six pipeline steps.
type PipelineDeps struct {
	Settings *domain.PipelineSettings

	Sources   driven.SourceStore
	Factory   driven.ConnectorFactory
	Runner    *connectors.Runner
	Staging   driven.StagingStore
	Nodes     driven.NodeStore
	Matcher   *matching.Matcher
	Policy    *tagging.Policy
	Retrier   *connectors.Retrier
	Publisher *Publisher

	// Classifier is optional. When nil only rule tags are applied.
	Classifier driven.Classifier

	Now func() time.Time
}

// NewPipelineSteps builds the steps in pipeline order.
func NewPipelineSteps(deps PipelineDeps) []Step {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings == nil {
		defaults := domain.DefaultPipelineSettings()
		deps.Settings = &defaults
	}
	if deps.Matcher == nil {
		deps.Matcher = matching.NewMatcher(matching.DefaultWeights())
	}
	if deps.Retrier == nil {
		deps.Retrier = connectors.NewRetrier(deps.Settings.Retry, 0, nil)
	}
	locks := &nodeLocks{}

	return []Step{
		&IngestStep{sources: deps.Sources, factory: deps.Factory, runner: deps.Runner},
		&ResolveStep{staging: deps.Staging, nodes: deps.Nodes, matcher: deps.Matcher, now: deps.Now},
		&TagStep{
			nodes:      deps.Nodes,
			policy:     deps.Policy,
			classifier: deps.Classifier,
			retrier:    deps.Retrier,
			settings:   deps.Settings,
			locks:      locks,
		},
		&ScoreStep{nodes: deps.Nodes, workers: deps.Settings.Workers, locks: locks},
		&PublishStep{publisher: deps.Publisher},
		&VerifyStep{publisher: deps.Publisher},
	}
}
