package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// defaults holds one <name>.txt per built-in prompt. They seed the prompt
// directory and stand in for files that are missing or broken.
//
//go:embed defaults/*.txt
var defaults embed.FS

// PromptStore serves prompt templates from <dir>/<name>.txt. Edits are
// picked up on the next Load: a file is re-read whenever its mtime or size
// changes.
type PromptStore struct {
	dir  string
	seed sync.Once

	mu    sync.Mutex
	cache map[string]promptFile
}

type promptFile struct {
	modTime time.Time
	size    int64
	text    string
}

// NewPromptStore uses ~/.cityseed/prompts when dir is empty. Nothing is
// written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".cityseed", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]promptFile)}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string { return s.dir }

// Load returns the template for name. A built-in prompt whose file is
// unreadable, or whose placeholders no longer match the default, falls back
// to the default so a bad edit cannot break classification.
func (s *PromptStore) Load(name string) (string, error) {
	s.seed.Do(s.writeDefaults)

	def, builtin := defaultPrompt(name)
	text, err := s.read(name)
	switch {
	case err != nil && !builtin:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil:
		logger.Debug("prompt %s: using default (%v)", name, err)
		return def, nil
	case builtin && strings.Count(text, "%s") != strings.Count(def, "%s"):
		logger.Warn("prompt %s: placeholders changed, using default", name)
		return def, nil
	}
	return text, nil
}

func (s *PromptStore) read(name string) (string, error) {
	path := filepath.Join(s.dir, name+".txt")
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[name]; ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	s.cache[name] = promptFile{modTime: info.ModTime(), size: info.Size(), text: text}
	return text, nil
}

// writeDefaults creates the directory and any missing default files. Failures
// only cost customisation, so they are logged rather than returned.
func (s *PromptStore) writeDefaults() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		logger.Warn("prompt directory %s: %v", s.dir, err)
		return
	}
	entries, _ := fs.ReadDir(defaults, "defaults")
	for _, e := range entries {
		path := filepath.Join(s.dir, e.Name())
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		data, _ := defaults.ReadFile("defaults/" + e.Name())
		if err := os.WriteFile(path, data, 0o600); err != nil {
			logger.Warn("writing default prompt %s: %v", path, err)
		}
	}
}

func defaultPrompt(name string) (string, bool) {
	data, err := defaults.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
