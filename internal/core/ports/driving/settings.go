package driving

import "github.com/custodia-labs/cityseed/internal/core/domain"

// SettingsService manages pipeline settings.
type SettingsService interface {
	// Get retrieves current settings, filling defaults for unset keys.
	Get() (*domain.PipelineSettings, error)

	// Save persists settings.
	Save(settings *domain.PipelineSettings) error

	// Validate checks the current settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.PipelineSettings
}
