package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrNotImplemented", ErrNotImplemented},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrRunInProgress", ErrRunInProgress},
		{"ErrRunAborted", ErrRunAborted},
		{"ErrClassifierUnavailable", ErrClassifierUnavailable},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrVectorIndexUnavailable", ErrVectorIndexUnavailable},
		{"ErrQuotaExhausted", ErrQuotaExhausted},
		{"ErrRateLimited", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_WithWrapping(t *testing.T) {
	wrapped := fmt.Errorf("get node n1: %w", ErrNotFound)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrAlreadyExists))
}

func TestTransientError(t *testing.T) {
	cause := errors.New("503 service unavailable")
	err := fmt.Errorf("fetch: %w", NewTransientError("directory.search", cause))

	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
	assert.False(t, IsQuota(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "directory.search")
}

func TestPermanentError(t *testing.T) {
	err := NewPermanentError("blog.parse", errors.New("no venue list"))

	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, "permanent: blog.parse: no venue list", err.Error())
}

func TestQuotaError(t *testing.T) {
	reset := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	err := fmt.Errorf("wrap: %w", &QuotaError{Source: SourceDirectory, ResetAt: reset})

	assert.True(t, IsQuota(err))
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Contains(t, err.Error(), "2026-03-02T00:00:00Z")
}

func TestResolutionInputError(t *testing.T) {
	err := &ResolutionInputError{Fingerprint: "abc", Reason: "missing city"}

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "unusable signal abc: missing city", err.Error())
}

func TestScoringInconsistencyError(t *testing.T) {
	var target *ScoringInconsistencyError
	err := fmt.Errorf("score: %w", &ScoringInconsistencyError{NodeID: "n1", Reason: "authority NaN"})

	require.True(t, errors.As(err, &target))
	assert.Equal(t, "n1", target.NodeID)
}

func TestParityDriftError(t *testing.T) {
	err := &ParityDriftError{CityID: "lisbon", MissingFromIndex: []string{"a", "b"}, OrphanedInIndex: []string{"c"}}

	assert.Equal(t, "index parity drift for lisbon: 2 missing from index, 1 orphaned in index", err.Error())
}
