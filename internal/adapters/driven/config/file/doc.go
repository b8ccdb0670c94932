// Package file keeps user-editable state under the cityseed home directory:
// config.toml (ConfigStore, with CITYSEED_* environment overrides) and the
// classifier prompt templates (PromptStore).
package file
