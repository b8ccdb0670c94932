package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/config"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// EnvPrefix prefixes environment overrides: pipeline.workers is overridden
// by CITYSEED_PIPELINE_WORKERS.
const EnvPrefix = "CITYSEED_"

const configFile = "config.toml"

// ConfigStore keeps dotted keys in memory and persists them to
// <dir>/config.toml as nested tables, so pipeline.workers lands in a
// [pipeline] section. Environment overrides win on read and are never
// written back.
type ConfigStore struct {
	path   string
	lookup func(string) (string, bool)

	mu   sync.RWMutex
	vals map[string]any
}

// NewConfigStore opens dir/config.toml, creating dir if needed. An empty
// dir means ~/.cityseed. A missing file is an empty configuration.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".cityseed")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	s := &ConfigStore{path: filepath.Join(dir, configFile), lookup: os.LookupEnv}
	vals, err := readTOML(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	s.vals = vals
	return s, nil
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Path is the backing file, whether or not it exists yet.
func (s *ConfigStore) Path() string { return s.path }

// Get returns an environment override as a string, else the file value.
func (s *ConfigStore) Get(key string) (any, bool) {
	if s.lookup != nil {
		if v, ok := s.lookup(EnvKey(key)); ok {
			return v, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[key]
	return v, ok
}

func (s *ConfigStore) GetString(key string) string {
	v, _ := s.Get(key)
	return config.String(v)
}

func (s *ConfigStore) GetInt(key string) int {
	v, _ := s.Get(key)
	n, _ := config.Int(v)
	return n
}

func (s *ConfigStore) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := config.Bool(v)
	return b
}

func (s *ConfigStore) GetFloat(key string) (float64, bool) {
	if v, ok := s.Get(key); ok {
		return config.Float(v)
	}
	return 0, false
}

func (s *ConfigStore) GetDuration(key string) (time.Duration, bool) {
	if v, ok := s.Get(key); ok {
		return config.Duration(v)
	}
	return 0, false
}

// GetStringSlice splits an environment override on commas.
func (s *ConfigStore) GetStringSlice(key string) []string {
	v, _ := s.Get(key)
	return config.Strings(v)
}

// Set writes the whole file with key updated. On a write error the
// in-memory value is left unchanged.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(s.vals)+1)
	for k, v := range s.vals {
		next[k] = v
	}
	next[key] = value
	if err := writeTOML(s.path, next); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	s.vals = next
	return nil
}

func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return flatten(tree), nil
}

// writeTOML replaces path through a temporary file in the same directory.
func writeTOML(path string, vals map[string]any) error {
	tree, err := nest(vals)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0o600)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
