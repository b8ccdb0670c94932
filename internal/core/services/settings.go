package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyConcurrency      = "pipeline.concurrency"
	keyWorkers          = "pipeline.workers"
	keyAlertThreshold   = "pipeline.dead_letter_alert_threshold"
	keyExcerptRetention = "pipeline.excerpt_retention"
	keyPublishTimeout   = "pipeline.publish_timeout"

	keyRetryMaxAttempts = "retry.max_attempts"
	keyRetryBaseDelay   = "retry.base_delay"
	keyRetryMaxDelay    = "retry.max_delay"
	keyRetryMultiplier  = "retry.multiplier"
	keyRetryJitter      = "retry.jitter"

	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDimensions = "embedding.dimensions"

	keyClassifierProvider    = "classifier.provider"
	keyClassifierModel       = "classifier.model"
	keyClassifierBaseURL     = "classifier.base_url"
	keyClassifierAPIKey      = "classifier.api_key"
	keyClassifierTimeout     = "classifier.timeout"
	keyClassifierBatchSize   = "classifier.batch_size"
	keyClassifierConcurrency = "classifier.concurrency"

	keySchedulerEnabled = "scheduler.enabled"
	keySchedulerCities  = "scheduler.cities"
)

// Environment variables consulted when an API key is not in the config file.
const (
	EnvEmbeddingAPIKey  = "CITYSEED_EMBEDDING_API_KEY"
	EnvClassifierAPIKey = "CITYSEED_CLASSIFIER_API_KEY"
)

// SettingsService materialises typed pipeline settings from the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	validate    *validator.Validate
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Get retrieves current settings. Unset or unparsable keys take defaults.
func (s *SettingsService) Get() (*domain.PipelineSettings, error) {
	defaults := domain.DefaultPipelineSettings()

	settings := &domain.PipelineSettings{
		Concurrency:              s.getInt(keyConcurrency, defaults.Concurrency),
		Workers:                  s.getInt(keyWorkers, defaults.Workers),
		DeadLetterAlertThreshold: s.getInt(keyAlertThreshold, defaults.DeadLetterAlertThreshold),
		ExcerptRetention:         s.getDuration(keyExcerptRetention, defaults.ExcerptRetention),
		PublishTimeout:           s.getDuration(keyPublishTimeout, defaults.PublishTimeout),
		Retry: domain.RetrySettings{
			MaxAttempts:    s.getInt(keyRetryMaxAttempts, defaults.Retry.MaxAttempts),
			BaseDelay:      s.getDuration(keyRetryBaseDelay, defaults.Retry.BaseDelay),
			MaxDelay:       s.getDuration(keyRetryMaxDelay, defaults.Retry.MaxDelay),
			Multiplier:     s.getFloat(keyRetryMultiplier, defaults.Retry.Multiplier),
			JitterFraction: s.getFloat(keyRetryJitter, defaults.Retry.JitterFraction),
		},
		Sources: make(map[domain.SourceType]domain.SourceLimits, len(defaults.Sources)),
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:      s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL),
			APIKey:     s.secret(keyEmbedAPIKey, EnvEmbeddingAPIKey),
			Dimensions: s.getInt(keyEmbedDimensions, defaults.Embedding.Dimensions),
		},
		Classifier: domain.ClassifierSettings{
			Provider:    s.getProvider(keyClassifierProvider, defaults.Classifier.Provider),
			Model:       s.getString(keyClassifierModel, defaults.Classifier.Model),
			BaseURL:     s.configStore.GetString(keyClassifierBaseURL),
			APIKey:      s.secret(keyClassifierAPIKey, EnvClassifierAPIKey),
			Timeout:     s.getDuration(keyClassifierTimeout, defaults.Classifier.Timeout),
			BatchSize:   s.getInt(keyClassifierBatchSize, defaults.Classifier.BatchSize),
			Concurrency: s.getInt(keyClassifierConcurrency, defaults.Classifier.Concurrency),
		},
	}

	for _, t := range domain.AllSourceTypes() {
		def := defaults.LimitsFor(t)
		prefix := sourcePrefix(t)
		settings.Sources[t] = domain.SourceLimits{
			PerMinute:  s.getInt(prefix+"per_minute", def.PerMinute),
			Burst:      s.getInt(prefix+"burst", def.Burst),
			DailyQuota: s.getInt(prefix+"daily_quota", def.DailyQuota),
			Timeout:    s.getDuration(prefix+"timeout", def.Timeout),
		}
	}

	return settings, nil
}

func sourcePrefix(t domain.SourceType) string {
	return "sources." + string(t) + "."
}

// Save persists settings. API keys are only written when set, so keys
// supplied through the environment never land in the config file.
func (s *SettingsService) Save(settings *domain.PipelineSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyConcurrency, settings.Concurrency},
		{keyWorkers, settings.Workers},
		{keyAlertThreshold, settings.DeadLetterAlertThreshold},
		{keyExcerptRetention, settings.ExcerptRetention.String()},
		{keyPublishTimeout, settings.PublishTimeout.String()},
		{keyRetryMaxAttempts, settings.Retry.MaxAttempts},
		{keyRetryBaseDelay, settings.Retry.BaseDelay.String()},
		{keyRetryMaxDelay, settings.Retry.MaxDelay.String()},
		{keyRetryMultiplier, settings.Retry.Multiplier},
		{keyRetryJitter, settings.Retry.JitterFraction},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDimensions, settings.Embedding.Dimensions},
		{keyClassifierProvider, settings.Classifier.Provider.String()},
		{keyClassifierModel, settings.Classifier.Model},
		{keyClassifierBaseURL, settings.Classifier.BaseURL},
		{keyClassifierTimeout, settings.Classifier.Timeout.String()},
		{keyClassifierBatchSize, settings.Classifier.BatchSize},
		{keyClassifierConcurrency, settings.Classifier.Concurrency},
	}
	if settings.Embedding.APIKey != "" && settings.Embedding.APIKey != os.Getenv(EnvEmbeddingAPIKey) {
		values = append(values, struct {
			key   string
			value any
		}{keyEmbedAPIKey, settings.Embedding.APIKey})
	}
	if settings.Classifier.APIKey != "" && settings.Classifier.APIKey != os.Getenv(EnvClassifierAPIKey) {
		values = append(values, struct {
			key   string
			value any
		}{keyClassifierAPIKey, settings.Classifier.APIKey})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	for t, limits := range settings.Sources {
		prefix := sourcePrefix(t)
		if err := s.configStore.Set(prefix+"per_minute", limits.PerMinute); err != nil {
			return fmt.Errorf("save %s limits: %w", t, err)
		}
		if err := s.configStore.Set(prefix+"burst", limits.Burst); err != nil {
			return fmt.Errorf("save %s limits: %w", t, err)
		}
		if err := s.configStore.Set(prefix+"daily_quota", limits.DailyQuota); err != nil {
			return fmt.Errorf("save %s limits: %w", t, err)
		}
		if err := s.configStore.Set(prefix+"timeout", limits.Timeout.String()); err != nil {
			return fmt.Errorf("save %s limits: %w", t, err)
		}
	}
	return nil
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.ValidateSettings(settings)
}

// ValidateSettings checks struct constraints and provider configuration.
func (s *SettingsService) ValidateSettings(settings *domain.PipelineSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s fails %q", domain.ErrInvalidInput, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	if !settings.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrInvalidInput, settings.Embedding.Provider)
	}
	if settings.Embedding.Provider.RequiresAPIKey() && settings.Embedding.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s embeddings (set %s)",
			domain.ErrInvalidInput, settings.Embedding.Provider, EnvEmbeddingAPIKey)
	}
	if p := settings.Classifier.Provider; !p.IsValid() || p == domain.AIProviderHashing {
		return fmt.Errorf("%w: classifier provider %q", domain.ErrInvalidInput, p)
	}
	if settings.Classifier.Provider.RequiresAPIKey() && settings.Classifier.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s classifier (set %s)",
			domain.ErrInvalidInput, settings.Classifier.Provider, EnvClassifierAPIKey)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.PipelineSettings {
	return domain.DefaultPipelineSettings()
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	if _, exists := s.configStore.Get(keySchedulerEnabled); exists {
		defaults.Enabled = s.configStore.GetBool(keySchedulerEnabled)
	}
	defaults.Cities = s.configStore.GetStringSlice(keySchedulerCities)

	// Map from task ID to config key (underscore version for TOML)
	taskKeys := map[string]string{
		domain.TaskIDCitySeed:         "city_seed",
		domain.TaskIDExcerptRetention: "excerpt_retention",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "."
		taskCfg := defaults.TaskConfigs[taskID]

		if _, exists := s.configStore.Get(prefix + "enabled"); exists {
			taskCfg.Enabled = s.configStore.GetBool(prefix + "enabled")
		}
		taskCfg.Interval = s.getDuration(prefix+"interval", taskCfg.Interval)

		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if f, ok := s.configStore.GetFloat(key); ok {
		return f
	}
	return defaultVal
}

// getDuration reads a duration string like "45m" or "2160h".
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, ok := s.configStore.GetDuration(key); ok {
		return d
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

// secret reads an API key from the config file, falling back to the environment.
func (s *SettingsService) secret(key, env string) string {
	if v := s.configStore.GetString(key); v != "" {
		return v
	}
	return os.Getenv(env)
}
