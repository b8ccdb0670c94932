package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{4, 4, true},
		{int64(500), 500, true},
		{float64(8), 8, true},
		{1.5, 0, false},
		{" 12 ", 12, true},
		{"twelve", 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := Int(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestFloat(t *testing.T) {
	f, ok := Float("0.25")
	assert.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-12)

	f, ok = Float(int64(2))
	assert.True(t, ok)
	assert.InDelta(t, 2.0, f, 1e-12)

	_, ok = Float([]any{1})
	assert.False(t, ok)
}

func TestBool(t *testing.T) {
	b, ok := Bool("false")
	assert.True(t, ok)
	assert.False(t, b)

	b, ok = Bool(true)
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = Bool("sometimes")
	assert.False(t, ok)
}

func TestDuration(t *testing.T) {
	d, ok := Duration("2160h")
	assert.True(t, ok)
	assert.Equal(t, 90*24*time.Hour, d)

	d, ok = Duration(int64(30))
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	_, ok = Duration("soon")
	assert.False(t, ok)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, []string{"lisbon", "porto"}, Strings([]any{"lisbon", 3, "porto"}))
	assert.Equal(t, []string{"lisbon", "porto"}, Strings("lisbon, porto,,"))
	assert.Equal(t, []string{"faro"}, Strings([]string{"faro"}))
	assert.Nil(t, Strings(42))
}

func TestString(t *testing.T) {
	assert.Equal(t, "hashing", String("hashing"))
	assert.Empty(t, String(7))
}
