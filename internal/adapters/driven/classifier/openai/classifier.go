// Package openai provides an LLM-backed vibe tag classifier using the OpenAI
// chat completions API (or any compatible endpoint).
package openai

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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the classifier.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the HTTP client timeout (default: 120s). The tag step's
	// per-batch timeout usually fires first.
	Timeout time.Duration

	// Prompts supplies the system prompt; nil uses the built-in prompt.
	Prompts driven.PromptStore
}

// Classifier scores snippets against a vocabulary with a chat model.
type Classifier struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	prompts driven.PromptStore
	now     func() time.Time
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// venueInput is one snippet as sent to the model.
type venueInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// modelOutput is the JSON document the prompt asks for.
type modelOutput struct {
	Results []struct {
		ID   string `json:"id"`
		Tags []struct {
			Tag        string  `json:"tag"`
			Confidence float64 `json:"confidence"`
		} `json:"tags"`
	} `json:"results"`
}

// fallbackPrompt is used when no prompt store is configured.
const fallbackPrompt = `You label city venues with atmosphere tags. Allowed tags: %s.
For each venue in the input JSON array return the supported allowed tags with a
confidence between 0 and 1, as JSON only:
{"results":[{"id":"<venue id>","tags":[{"tag":"<tag>","confidence":0.9}]}]}`

// NewClassifier creates a new classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
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
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		prompts: cfg.Prompts,
		now:     time.Now,
	}, nil
}

// Classify scores one batch of snippets. Suggestions for ids outside the
// batch are dropped; vocabulary filtering is left to the tag policy so
// off-vocabulary answers are counted as discarded.
func (c *Classifier) Classify(
	ctx context.Context,
	batch []domain.TextSnippet,
	vocabulary []string,
) (*domain.ClassificationEnvelope, error) {
	const op = "openai classify"
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

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(c.systemPrompt(), strings.Join(vocabulary, ", "))},
			{Role: "user", Content: string(userContent)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	resp, err := c.complete(ctx, op, reqBody)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewTransientError(op, errors.New("no response choices returned"))
	}

	var out modelOutput
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Malformed model output is worth another attempt.
		return nil, domain.NewTransientError(op, fmt.Errorf("decode model output: %w", err))
	}

	env := &domain.ClassificationEnvelope{
		Tags:         make(map[string][]domain.TagSuggestion, len(batch)),
		ModelVersion: resp.Model,
		Cost:         float64(resp.Usage.TotalTokens),
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

func (c *Classifier) complete(ctx context.Context, op string, reqBody chatRequest) (*chatResponse, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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

// Ping validates the API key against the /models endpoint.
func (c *Classifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (c *Classifier) Close() error {
	return nil
}
