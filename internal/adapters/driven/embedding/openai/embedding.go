// Package openai embeds node descriptions with the OpenAI embeddings API or
// any endpoint that speaks it.
package openai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/embedding"
	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// maxInputs is the largest batch sent in one request.
	maxInputs = 256
	op        = "openai embeddings"
)

// nativeSizes are the output sizes of the known models. Only the v3 models
// accept a smaller size in the request.
var nativeSizes = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

var shortenable = []string{"text-embedding-3-small", "text-embedding-3-large"}

// Config configures the embedder. APIKey is required.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
	HTTPClient *http.Client
}

// EmbeddingService implements driven.EmbeddingService over HTTP.
type EmbeddingService struct {
	client   *http.Client
	baseURL  string
	header   http.Header
	model    string
	size     int
	truncate bool
}

type request struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type response struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingService fills defaults. An unknown model keeps the
// configured size, or 1536 when none is set.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	s := &EmbeddingService{
		baseURL: cmp.Or(cfg.BaseURL, DefaultBaseURL),
		header:  connectors.Bearer(cfg.APIKey),
		model:   cmp.Or(cfg.Model, DefaultModel),
		size:    cfg.Dimensions,
	}
	s.truncate = slices.Contains(shortenable, s.model)
	if s.size == 0 {
		s.size = nativeSizes[s.model]
	}
	if s.size == 0 {
		s.size = 1536
	}
	s.client = cfg.HTTPClient
	if s.client == nil {
		s.client = &http.Client{Timeout: cmp.Or(cfg.Timeout, DefaultTimeout)}
	}
	return s, nil
}

// Embed sends texts in requests of at most maxInputs and reassembles the
// vectors by their response index.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, chunk := range embedding.Chunks(texts, maxInputs) {
		req := request{Model: s.model, Input: chunk}
		if s.truncate {
			req.Dimensions = s.size
		}
		var resp response
		if err := connectors.PostJSON(ctx, s.client, op, s.baseURL+"/embeddings", s.header, req, &resp); err != nil {
			return nil, err
		}

		raw := make([][]float64, len(chunk))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(chunk) {
				return nil, domain.NewPermanentError(op, fmt.Errorf("index %d out of range", d.Index))
			}
			raw[d.Index] = d.Embedding
		}
		vecs, err := embedding.Vectors(op, raw, len(chunk), s.size)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.size }
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists models, which checks the key without spending tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	_, err := connectors.Get(ctx, s.client, "openai ping", s.baseURL+"/models", s.header)
	return err
}

func (s *EmbeddingService) Close() error { return nil }
