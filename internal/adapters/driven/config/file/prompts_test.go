package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

func classifyDefault(t *testing.T) string {
	t.Helper()
	def, ok := defaultPrompt(driven.PromptClassify)
	require.True(t, ok)
	return def
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cityseed", "prompts"), store.Dir())
}

func TestDefaultPrompt(t *testing.T) {
	def := classifyDefault(t)
	assert.Contains(t, def, "Allowed tags: %s")
	assert.Contains(t, def, `"results"`)

	_, ok := defaultPrompt("summarise")
	assert.False(t, ok)
}

func TestPromptStore_Load_SeedsDirectoryLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "constructor must not write files")

	prompt, err := store.Load(driven.PromptClassify)
	require.NoError(t, err)
	assert.Equal(t, classifyDefault(t), prompt)

	data, err := os.ReadFile(filepath.Join(dir, "classify.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Allowed tags: %s")
}

func TestPromptStore_Load_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	custom := "Tag these venues using only: %s"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classify.txt"), []byte(custom+"\n\n"), 0o600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptClassify)
	require.NoError(t, err)
	assert.Equal(t, custom, prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	tests := map[string]func(dir string){
		"placeholder removed": func(dir string) {
			_ = os.WriteFile(filepath.Join(dir, "classify.txt"), []byte("Tag these venues."), 0o600)
		},
		"extra placeholder": func(dir string) {
			_ = os.WriteFile(filepath.Join(dir, "classify.txt"), []byte("Tags %s for %s"), 0o600)
		},
		"file deleted": func(dir string) {
			_ = os.Remove(filepath.Join(dir, "classify.txt"))
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			store, err := NewPromptStore(dir)
			require.NoError(t, err)
			_, err = store.Load(driven.PromptClassify)
			require.NoError(t, err)

			mutate(dir)

			prompt, err := store.Load(driven.PromptClassify)
			require.NoError(t, err)
			assert.Equal(t, classifyDefault(t), prompt)
		})
	}
}

func TestPromptStore_Load_PicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	first, err := store.Load(driven.PromptClassify)
	require.NoError(t, err)
	assert.Equal(t, classifyDefault(t), first)

	edited := "Edited prompt: %s"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classify.txt"), []byte(edited), 0o600))

	fresh, err := store.Load(driven.PromptClassify)
	require.NoError(t, err)
	assert.Equal(t, edited, fresh)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load("nonexistent_prompt")
	assert.ErrorContains(t, err, "nonexistent_prompt")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("custom %s"), 0o600))
	prompt, err := store.Load("extra")
	require.NoError(t, err)
	assert.Equal(t, "custom %s", prompt)
}

func TestPromptStore_Load_UnwritableDirUsesDefaults(t *testing.T) {
	store, err := NewPromptStore("/dev/null/prompts")
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptClassify)
	require.NoError(t, err)
	assert.Equal(t, classifyDefault(t), prompt)

	_, err = store.Load("other")
	assert.Error(t, err)
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prompt, err := store.Load(driven.PromptClassify)
			assert.NoError(t, err)
			assert.NotEmpty(t, prompt)
		}()
	}
	wg.Wait()
}
