package driven

import "time"

// ConfigStore reads and writes dotted configuration keys such as
// "retry.max_attempts" or "sources.forum.per_minute". Getters return the
// zero value when a key is missing or cannot be coerced; use Get to tell
// the two apart.
type ConfigStore interface {
	// Get returns the raw value and whether the key is set.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// GetFloat and GetDuration report ok=false when the key is missing or
	// its value cannot be coerced, since zero is a meaningful setting.
	GetFloat(key string) (f float64, ok bool)
	GetDuration(key string) (d time.Duration, ok bool)

	GetStringSlice(key string) []string

	// Set stores a value. Persistent stores write through immediately.
	Set(key string, value any) error
}
