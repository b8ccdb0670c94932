package driven

import (
	"context"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Classifier is the external semantic tag classifier.
// It is pure request/response: given snippets and a controlled vocabulary it
// returns scored tags per node, with cost and latency in the envelope.
type Classifier interface {
	// Classify scores one batch of snippets against the vocabulary.
	Classify(ctx context.Context, batch []domain.TextSnippet, vocabulary []string) (*domain.ClassificationEnvelope, error)

	// ModelName returns the name of the classification model.
	ModelName() string

	// Close releases resources.
	Close() error
}
