package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show effective pipeline settings",
	Long: `Shows the settings read from ~/.cityseed/config.toml and CITYSEED_*
environment variables, with defaults filled in. API keys are masked.`,
	RunE: runSettingsShow,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsValidate,
}

func init() {
	settingsCmd.AddCommand(settingsValidateCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	st := newStyles(cmd.OutOrStdout())

	cmd.Println(st.Title.Render("[Pipeline]"))
	cmd.Printf("  Concurrency: %d\n", settings.Concurrency)
	cmd.Printf("  Workers: %d\n", settings.Workers)
	cmd.Printf("  Dead-letter alert threshold: %d\n", settings.DeadLetterAlertThreshold)
	cmd.Printf("  Excerpt retention: %s\n", settings.ExcerptRetention)
	cmd.Printf("  Publish timeout: %s\n", settings.PublishTimeout)
	cmd.Println()

	cmd.Println(st.Title.Render("[Retry]"))
	cmd.Printf("  Max attempts: %d\n", settings.Retry.MaxAttempts)
	cmd.Printf("  Delay: %s to %s, x%.1f, jitter %.0f%%\n", settings.Retry.BaseDelay, settings.Retry.MaxDelay,
		settings.Retry.Multiplier, settings.Retry.JitterFraction*100)
	cmd.Println()

	cmd.Println(st.Title.Render("[Sources]"))
	types := make([]string, 0, len(settings.Sources))
	for t := range settings.Sources {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		l := settings.Sources[domain.SourceType(t)]
		quota := "none"
		if l.DailyQuota > 0 {
			quota = fmt.Sprint(l.DailyQuota)
		}
		cmd.Printf("  %s: %d/min, burst %d, daily quota %s, timeout %s\n", t, l.PerMinute, l.Burst, quota, l.Timeout)
	}
	cmd.Println()

	cmd.Println(st.Title.Render("[Embedding]"))
	printProvider(cmd, settings.Embedding.Provider, settings.Embedding.Model,
		settings.Embedding.BaseURL, settings.Embedding.APIKey)
	if settings.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	}
	cmd.Println()

	cmd.Println(st.Title.Render("[Classifier]"))
	printProvider(cmd, settings.Classifier.Provider, settings.Classifier.Model,
		settings.Classifier.BaseURL, settings.Classifier.APIKey)
	cmd.Printf("  Batches: %d snippets, %d concurrent, timeout %s\n",
		settings.Classifier.BatchSize, settings.Classifier.Concurrency, settings.Classifier.Timeout)
	return nil
}

func printProvider(cmd *cobra.Command, provider domain.AIProvider, model, baseURL, apiKey string) {
	if provider == "" {
		provider = domain.AIProviderNone
	}
	cmd.Printf("  Provider: %s\n", provider)
	if model != "" {
		cmd.Printf("  Model: %s\n", model)
	}
	if baseURL != "" {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
}

func runSettingsValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	cmd.Println("Settings are valid.")
	return nil
}
