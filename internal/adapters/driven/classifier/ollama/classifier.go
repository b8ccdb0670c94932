// Package ollama provides a vibe tag classifier backed by a local Ollama chat
// model.
package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure Classifier implements the interface.
var _ driven.Classifier = (*Classifier)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama classifier.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model to use (default: llama3.2).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Prompts supplies the system prompt; nil uses the built-in prompt.
	Prompts driven.PromptStore
}

// Classifier scores snippets against a vocabulary with an Ollama model.
type Classifier struct {
	client  *http.Client
	baseURL string
	model   string
	prompts driven.PromptStore
	now     func() time.Time
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
	Options  *options      `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the Ollama /api/chat response format.
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type venueInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type modelOutput struct {
	Results []struct {
		ID   string `json:"id"`
		Tags []struct {
			Tag        string  `json:"tag"`
			Confidence float64 `json:"confidence"`
		} `json:"tags"`
	} `json:"results"`
}

const fallbackPrompt = `You label city venues with atmosphere tags. Allowed tags: %s.
For each venue in the input JSON array return the supported allowed tags with a
confidence between 0 and 1, as JSON only:
{"results":[{"id":"<venue id>","tags":[{"tag":"<tag>","confidence":0.9}]}]}`

// NewClassifier creates a new Ollama classifier.
func NewClassifier(cfg Config) *Classifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Classifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		prompts: cfg.Prompts,
		now:     time.Now,
	}
}

// Classify scores one batch of snippets. Ollama runs locally, so the
// envelope cost is the token count rather than a price.
func (c *Classifier) Classify(
	ctx context.Context,
	batch []domain.TextSnippet,
	vocabulary []string,
) (*domain.ClassificationEnvelope, error) {
	const op = "ollama classify"
	start := c.now()

	inputs := make([]venueInput, len(batch))
	inBatch := make(map[string]struct{}, len(batch))
	for i, snip := range batch {
		inputs[i] = venueInput{ID: snip.NodeID, Text: snip.Text}
		inBatch[snip.NodeID] = struct{}{}
	}
	userContent, err := json.Marshal(inputs)
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("marshal snippets: %w", err))
	}

	resp, err := c.chat(ctx, op, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(c.systemPrompt(), strings.Join(vocabulary, ", "))},
			{Role: "user", Content: string(userContent)},
		},
		Format:  "json",
		Options: &options{Temperature: 0},
	})
	if err != nil {
		return nil, err
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Message.Content)), &out); err != nil {
		return nil, domain.NewTransientError(op, fmt.Errorf("decode model output: %w", err))
	}

	env := &domain.ClassificationEnvelope{
		Tags:         make(map[string][]domain.TagSuggestion, len(batch)),
		ModelVersion: resp.Model,
		Cost:         float64(resp.PromptEvalCount + resp.EvalCount),
		Latency:      c.now().Sub(start),
	}
	if env.ModelVersion == "" {
		env.ModelVersion = c.model
	}
	for _, r := range out.Results {
		if _, ok := inBatch[r.ID]; !ok {
			continue
		}
		for _, t := range r.Tags {
			tag := strings.ToLower(strings.TrimSpace(t.Tag))
			if tag == "" || math.IsNaN(t.Confidence) {
				continue
			}
			env.Tags[r.ID] = append(env.Tags[r.ID], domain.TagSuggestion{
				Tag:        tag,
				Confidence: math.Max(0, math.Min(1, t.Confidence)),
			})
		}
	}
	return env, nil
}

func (c *Classifier) chat(ctx context.Context, op string, reqBody chatRequest) (*chatResponse, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, connectors.ClassifyStatus(op, resp, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("decode response: %w", err))
	}
	return &chatResp, nil
}

func (c *Classifier) systemPrompt() string {
	if c.prompts == nil {
		return fallbackPrompt
	}
	prompt, err := c.prompts.Load(driven.PromptClassify)
	if err != nil {
		return fallbackPrompt
	}
	return prompt
}

// ModelName returns the configured chat model.
func (c *Classifier) ModelName() string {
	return c.model
}

// Ping checks the /api/tags endpoint without running inference.
func (c *Classifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (c *Classifier) Close() error {
	return nil
}
