// Package ollama embeds node descriptions with a local Ollama server.
package ollama

import (
	"cmp"
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/embedding"
	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "nomic-embed-text"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4

	// chunkSize bounds the inputs of one /api/embed call so a slow model
	// does not hit the client timeout.
	chunkSize = 32
	op        = "ollama embeddings"
)

// knownSizes lets Dimensions answer before the first request.
var knownSizes = map[string]int{
	"nomic-embed-text":  768,
	"all-minilm":        384,
	"mxbai-embed-large": 1024,
}

// Config configures the embedder. Dimensions is taken from knownSizes
// when unset; for other models it is learned from the first response.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Dimensions  int
	Concurrency int
}

// EmbeddingService implements driven.EmbeddingService against /api/embed.
type EmbeddingService struct {
	client      *http.Client
	baseURL     string
	model       string
	concurrency int
	size        atomic.Int64
}

type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type response struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func NewEmbeddingService(cfg Config) *EmbeddingService {
	s := &EmbeddingService{
		client:      &http.Client{Timeout: cmp.Or(cfg.Timeout, DefaultTimeout)},
		baseURL:     cmp.Or(cfg.BaseURL, DefaultBaseURL),
		model:       cmp.Or(cfg.Model, DefaultModel),
		concurrency: cfg.Concurrency,
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	s.size.Store(int64(cmp.Or(cfg.Dimensions, knownSizes[s.model])))
	return s
}

// Embed sends chunks of texts concurrently and keeps input order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	chunks := embedding.Chunks(texts, chunkSize)
	results := make([][][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			var resp response
			if err := connectors.PostJSON(gctx, s.client, op, s.baseURL+"/api/embed", nil,
				request{Model: s.model, Input: chunk}, &resp); err != nil {
				return err
			}
			vecs, err := embedding.Vectors(op, resp.Embeddings, len(chunk), s.Dimensions())
			if err != nil {
				return err
			}
			s.size.CompareAndSwap(0, int64(len(vecs[0])))
			results[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Dimensions is 0 for an unknown model until the first vector arrives.
func (s *EmbeddingService) Dimensions() int { return int(s.size.Load()) }

func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists local models.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	_, err := connectors.Get(ctx, s.client, "ollama ping", s.baseURL+"/api/tags", nil)
	return err
}

func (s *EmbeddingService) Close() error { return nil }
