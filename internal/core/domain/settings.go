package domain

import "time"

// AIProvider identifies an AI service provider for embeddings or classification.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API (or a compatible endpoint).
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderHashing is the offline deterministic embedder.
	AIProviderHashing AIProvider = "hashing"

	// AIProviderNone disables the service.
	AIProviderNone AIProvider = "none"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderHashing, AIProviderNone:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// RetrySettings configures the connector retry policy.
type RetrySettings struct {
	MaxAttempts    int           `validate:"min=1,max=20"`
	BaseDelay      time.Duration `validate:"gt=0"`
	MaxDelay       time.Duration `validate:"gtefield=BaseDelay"`
	Multiplier     float64       `validate:"gte=1"`
	JitterFraction float64       `validate:"gte=0,lte=1"`
}

// SourceLimits bounds external API usage for one source type.
type SourceLimits struct {
	// PerMinute is the token-bucket refill rate.
	PerMinute int `validate:"min=1"`

	// Burst is the token-bucket size.
	Burst int `validate:"min=1"`

	// DailyQuota caps calls per UTC day; 0 disables the cap.
	DailyQuota int `validate:"min=0"`

	// Timeout bounds one fetch call.
	Timeout time.Duration `validate:"gt=0"`
}

// EmbeddingSettings configures the embedding service used for publication.
type EmbeddingSettings struct {
	Provider   AIProvider
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int `validate:"min=0,max=8192"`
}

// ClassifierSettings configures the semantic tag classifier.
type ClassifierSettings struct {
	Provider    AIProvider
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration `validate:"gt=0"`
	BatchSize   int           `validate:"min=1,max=256"`
	Concurrency int           `validate:"min=1,max=32"`
}

// PipelineSettings is the typed configuration of the seeding pipeline.
type PipelineSettings struct {
	// Concurrency bounds connectors running at once during ingest.
	Concurrency int `validate:"min=1,max=64"`

	// Workers bounds parallel node processing in tag and score steps.
	Workers int `validate:"min=1,max=256"`

	// DeadLetterAlertThreshold is the per-source dead-letter count that fires an alert.
	DeadLetterAlertThreshold int `validate:"min=1"`

	// ExcerptRetention is how long community excerpts are kept.
	ExcerptRetention time.Duration `validate:"gt=0"`

	// PublishTimeout bounds one embedding + index upsert.
	PublishTimeout time.Duration `validate:"gt=0"`

	Retry      RetrySettings
	Sources    map[SourceType]SourceLimits `validate:"dive"`
	Embedding  EmbeddingSettings
	Classifier ClassifierSettings
}

// LimitsFor returns the limits for a source type, falling back to defaults.
func (s *PipelineSettings) LimitsFor(t SourceType) SourceLimits {
	if l, ok := s.Sources[t]; ok {
		return l
	}
	return DefaultSourceLimits()
}

// DefaultSourceLimits returns conservative per-source limits.
func DefaultSourceLimits() SourceLimits {
	return SourceLimits{PerMinute: 30, Burst: 5, DailyQuota: 0, Timeout: 20 * time.Second}
}

// DefaultPipelineSettings returns sensible defaults.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		Concurrency:              4,
		Workers:                  8,
		DeadLetterAlertThreshold: 5,
		ExcerptRetention:         90 * 24 * time.Hour,
		PublishTimeout:           30 * time.Second,
		Retry: RetrySettings{
			MaxAttempts:    4,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       30 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
		Sources: map[SourceType]SourceLimits{
			SourceForum:     {PerMinute: 60, Burst: 10, DailyQuota: 0, Timeout: 15 * time.Second},
			SourceArchive:   {PerMinute: 600, Burst: 50, DailyQuota: 0, Timeout: 60 * time.Second},
			SourceBlog:      {PerMinute: 30, Burst: 5, DailyQuota: 0, Timeout: 20 * time.Second},
			SourceDirectory: {PerMinute: 20, Burst: 2, DailyQuota: 2000, Timeout: 10 * time.Second},
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Dimensions: 256,
		},
		Classifier: ClassifierSettings{
			Provider:    AIProviderNone,
			Timeout:     60 * time.Second,
			BatchSize:   16,
			Concurrency: 2,
		},
	}
}
