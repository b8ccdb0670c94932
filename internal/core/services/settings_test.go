package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

func TestNewSettingsService(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())
	require.NotNil(t, service)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	t.Setenv(EnvEmbeddingAPIKey, "")
	t.Setenv(EnvClassifierAPIKey, "")
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultPipelineSettings()
	assert.Equal(t, defaults.Concurrency, settings.Concurrency)
	assert.Equal(t, defaults.Workers, settings.Workers)
	assert.Equal(t, defaults.ExcerptRetention, settings.ExcerptRetention)
	assert.Equal(t, defaults.Retry, settings.Retry)
	assert.Equal(t, defaults.Sources, settings.Sources)
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.Classifier.BatchSize, settings.Classifier.BatchSize)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("pipeline.concurrency", 2)
	_ = store.Set("pipeline.excerpt_retention", "720h")
	_ = store.Set("retry.multiplier", 3.0)
	_ = store.Set("sources.directory.daily_quota", 500)
	_ = store.Set("sources.forum.timeout", "5s")
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("embedding.api_key", "sk-file")
	_ = store.Set("classifier.batch_size", 32)

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Equal(t, 2, settings.Concurrency)
	assert.Equal(t, 720*time.Hour, settings.ExcerptRetention)
	assert.InDelta(t, 3.0, settings.Retry.Multiplier, 1e-9)
	assert.Equal(t, 500, settings.Sources[domain.SourceDirectory].DailyQuota)
	assert.Equal(t, 5*time.Second, settings.Sources[domain.SourceForum].Timeout)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "sk-file", settings.Embedding.APIKey)
	assert.Equal(t, 32, settings.Classifier.BatchSize)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "invalid_provider")
	_ = store.Set("pipeline.publish_timeout", "soon")

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	defaults := domain.DefaultPipelineSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.PublishTimeout, settings.PublishTimeout)
}

func TestSettingsService_Get_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv(EnvClassifierAPIKey, "sk-env")

	settings, err := NewSettingsService(memory.NewConfigStore()).Get()

	require.NoError(t, err)
	assert.Equal(t, "sk-env", settings.Classifier.APIKey)
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	t.Setenv(EnvEmbeddingAPIKey, "")
	t.Setenv(EnvClassifierAPIKey, "sk-env")
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	settings := domain.DefaultPipelineSettings()
	settings.Workers = 3
	settings.Retry.BaseDelay = time.Second
	settings.Sources[domain.SourceBlog] = domain.SourceLimits{PerMinute: 5, Burst: 1, Timeout: time.Minute}
	settings.Embedding.APIKey = "sk-embed"
	settings.Classifier.APIKey = "sk-env"
	require.NoError(t, service.Save(&settings))

	got, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 3, got.Workers)
	assert.Equal(t, time.Second, got.Retry.BaseDelay)
	assert.Equal(t, settings.Sources[domain.SourceBlog], got.Sources[domain.SourceBlog])
	assert.Equal(t, "sk-embed", got.Embedding.APIKey)

	_, stored := store.Get("classifier.api_key")
	assert.False(t, stored, "environment keys are not written to the config file")
}

func TestSettingsService_Validate(t *testing.T) {
	t.Setenv(EnvEmbeddingAPIKey, "")
	t.Setenv(EnvClassifierAPIKey, "")

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, NewSettingsService(memory.NewConfigStore()).Validate())
	})

	t.Run("struct constraint", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("pipeline.workers", 0)
		err := NewSettingsService(store).Validate()
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Contains(t, err.Error(), "Workers")
	})

	t.Run("max delay below base delay", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("retry.base_delay", "10s")
		_ = store.Set("retry.max_delay", "1s")
		require.ErrorIs(t, NewSettingsService(store).Validate(), domain.ErrInvalidInput)
	})

	t.Run("openai needs a key", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("classifier.provider", "openai")
		err := NewSettingsService(store).Validate()
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Contains(t, err.Error(), EnvClassifierAPIKey)
	})

	t.Run("hashing is not a classifier", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("classifier.provider", "hashing")
		require.ErrorIs(t, NewSettingsService(store).Validate(), domain.ErrInvalidInput)
	})
}

func TestSettingsService_GetDefaults(t *testing.T) {
	assert.Equal(t, domain.DefaultPipelineSettings(), NewSettingsService(memory.NewConfigStore()).GetDefaults())
}

func TestSettingsService_GetSchedulerConfig(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("scheduler.enabled", false)
	_ = store.Set("scheduler.cities", []any{"lisbon", "porto"})
	_ = store.Set("scheduler.city_seed.interval", "12h")
	_ = store.Set("scheduler.excerpt_retention.enabled", false)

	cfg := NewSettingsService(store).GetSchedulerConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{"lisbon", "porto"}, cfg.Cities)
	assert.Equal(t, 12*time.Hour, cfg.GetTaskConfig(domain.TaskIDCitySeed).Interval)
	assert.True(t, cfg.GetTaskConfig(domain.TaskIDCitySeed).Enabled)
	assert.False(t, cfg.GetTaskConfig(domain.TaskIDExcerptRetention).Enabled)
}
