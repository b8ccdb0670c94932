// Package ai builds the embedding service and tag classifier from pipeline
// settings.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaclassifier "github.com/custodia-labs/cityseed/internal/adapters/driven/classifier/ollama"
	openaiclassifier "github.com/custodia-labs/cityseed/internal/adapters/driven/classifier/openai"
	"github.com/custodia-labs/cityseed/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/cityseed/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/cityseed/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// pinger is implemented by every remote service built here.
type pinger interface {
	Ping(ctx context.Context) error
}

// Services holds the optional AI services of a run.
type Services struct {
	Embedding  driven.EmbeddingService
	Classifier driven.Classifier
}

// Close releases all resources held by the services.
func (s *Services) Close() {
	if s.Embedding != nil {
		s.Embedding.Close()
	}
	if s.Classifier != nil {
		s.Classifier.Close()
	}
}

// Build creates both services from settings. A service whose provider is
// unset or none is left nil: no embedder disables publication and no
// classifier means rule tags only.
func Build(settings *domain.PipelineSettings, prompts driven.PromptStore) (*Services, error) {
	embedding, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, err
	}
	classifier, err := CreateClassifier(&settings.Classifier, prompts)
	if err != nil {
		if embedding != nil {
			embedding.Close()
		}
		return nil, err
	}
	return &Services{Embedding: embedding, Classifier: classifier}, nil
}

// Validate pings every configured remote service.
func (s *Services) Validate(ctx context.Context) error {
	if s.Embedding != nil {
		if err := ping(ctx, s.Embedding); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}
	if p, ok := s.Classifier.(pinger); ok {
		if err := ping(ctx, p); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
		}
	}
	return nil
}

func ping(ctx context.Context, p pinger) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// CreateEmbeddingService creates the embedding service named by settings.
// Returns nil if no provider is configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case "", domain.AIProviderNone:
		return nil, nil

	case domain.AIProviderHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateClassifier creates the tag classifier named by settings.
// Returns nil if no provider is configured.
func CreateClassifier(settings *domain.ClassifierSettings, prompts driven.PromptStore) (driven.Classifier, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case "", domain.AIProviderNone:
		return nil, nil

	case domain.AIProviderOllama:
		return ollamaclassifier.NewClassifier(ollamaclassifier.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
			Prompts: prompts,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiclassifier.NewClassifier(openaiclassifier.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Prompts: prompts,
		})

	default:
		return nil, fmt.Errorf("%w: classifier provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}
