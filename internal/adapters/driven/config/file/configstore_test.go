package file

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0600))
}

func TestNewConfigStore_EmptyDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "home")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
	_, ok := store.Get("pipeline.workers")
	assert.False(t, ok)
	assert.NoFileExists(t, store.Path(), "nothing is written until a value is set")
}

func TestNewConfigStore_ReadsHandWrittenConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[pipeline]
workers = 6
excerpt_retention = "720h"

[retry]
multiplier = 1.5
jitter = 0

[sources.directory]
daily_quota = 2000
timeout = "15s"

[scheduler]
enabled = false
cities = ["lisbon", "porto"]
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, 6, store.GetInt("pipeline.workers"))
	assert.Equal(t, 2000, store.GetInt("sources.directory.daily_quota"))
	assert.Equal(t, []string{"lisbon", "porto"}, store.GetStringSlice("scheduler.cities"))

	enabled, ok := store.Get("scheduler.enabled")
	assert.True(t, ok)
	assert.Equal(t, false, enabled)

	retention, ok := store.GetDuration("pipeline.excerpt_retention")
	assert.True(t, ok)
	assert.Equal(t, 720*time.Hour, retention)

	timeout, ok := store.GetDuration("sources.directory.timeout")
	assert.True(t, ok)
	assert.Equal(t, 15*time.Second, timeout)

	multiplier, ok := store.GetFloat("retry.multiplier")
	assert.True(t, ok)
	assert.InDelta(t, 1.5, multiplier, 1e-12)

	jitter, ok := store.GetFloat("retry.jitter")
	assert.True(t, ok, "an integer zero is a valid float setting")
	assert.Zero(t, jitter)
}

func TestNewConfigStore_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[pipeline\nworkers = ")

	_, err := NewConfigStore(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.toml")
}

func TestNewConfigStore_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.Empty(t, store.GetString("embedding.provider"))
}

func TestConfigStore_SetWritesPrivateFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("classifier.api_key", "sk-secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), ".config-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files are renamed or removed")
}

func TestConfigStore_SetFailureKeepsPreviousValue(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("needs an unwritable directory")
	}
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("embedding.model", "nomic-embed-text"))

	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0700) })

	assert.Error(t, store.Set("embedding.model", "mxbai-embed-large"))
	assert.Equal(t, "nomic-embed-text", store.GetString("embedding.model"))
}

func TestConfigStore_WritesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("pipeline.workers", 12))
	require.NoError(t, store.Set("retry.base_delay", "2s"))
	require.NoError(t, store.Set("sources.forum.per_minute", 20))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[pipeline]")
	assert.Contains(t, text, "[sources.forum]")
	assert.NotContains(t, text, `"pipeline.workers"`)

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.GetInt("pipeline.workers"))
	assert.Equal(t, "2s", reloaded.GetString("retry.base_delay"))
	assert.Equal(t, 20, reloaded.GetInt("sources.forum.per_minute"))
}

func TestConfigStore_ConflictingKeysAreRejected(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("scheduler.cities", []string{"lisbon"}))
	err = store.Set("scheduler.cities.extra", "porto")
	assert.Error(t, err)

	// The failed write leaves the previous state in place.
	_, ok := store.Get("scheduler.cities.extra")
	assert.False(t, ok)
	assert.Equal(t, []string{"lisbon"}, store.GetStringSlice("scheduler.cities"))
}

func TestConfigStore_EnvironmentOverrides(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("pipeline.workers", 4))

	env := map[string]string{
		"CITYSEED_PIPELINE_WORKERS":  "16",
		"CITYSEED_SCHEDULER_ENABLED": "true",
		"CITYSEED_SCHEDULER_CITIES":  "lisbon, porto,,",
	}
	store.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	assert.Equal(t, 16, store.GetInt("pipeline.workers"))
	assert.True(t, store.GetBool("scheduler.enabled"))
	assert.Equal(t, []string{"lisbon", "porto"}, store.GetStringSlice("scheduler.cities"))

	// Overrides are never persisted.
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "16"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "CITYSEED_EMBEDDING_API_KEY", EnvKey("embedding.api_key"))
	assert.Equal(t, "CITYSEED_SOURCES_FORUM_PER_MINUTE", EnvKey("sources.forum.per-minute"))
}
