// Package config holds the value coercion shared by the config stores.
//
// Values come from three places: TOML decoding (int64, float64, bool,
// []any), environment overrides (always strings) and Set calls from the
// settings service (Go values). Every getter accepts all three.
package config

import (
	"strconv"
	"strings"
	"time"
)

// String returns v if it is a string.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Int coerces v to an int.
func Int(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Float coerces v to a float64.
func Float(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool coerces v to a bool.
func Bool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

// Duration parses v as a Go duration string ("45m", "2160h"). Bare
// integers are read as seconds.
func Duration(v any) (time.Duration, bool) {
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		return d, err == nil
	}
	if n, ok := Int(v); ok {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// Strings coerces v to a string slice. A string is split on commas, which
// is how list overrides arrive from the environment.
func Strings(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}
