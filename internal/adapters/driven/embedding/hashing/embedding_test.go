package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbed_DeterministicAndNormalised(t *testing.T) {
	svc := NewEmbeddingService(64)

	got, err := svc.Embed(context.Background(), []string{
		"Blue Door Cafe. cafe. cozy, quiet",
		"Blue Door Cafe. cafe. cozy, quiet",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
	assert.Len(t, got[0], 64)

	var norm float64
	for _, v := range got[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbed_AccentsFoldTogether(t *testing.T) {
	svc := NewEmbeddingService(0)

	got, err := svc.Embed(context.Background(), []string{"Blue Door Café", "blue door cafe", "Tasca do Zé, restaurant"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cosine(got[0], got[1]), 1e-5)
	assert.Less(t, cosine(got[0], got[2]), 0.5)
	assert.Equal(t, DefaultDimensions, svc.Dimensions())
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	got, err := NewEmbeddingService(8).Embed(context.Background(), []string{"  ...  "})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{make([]float32, 8)}, got)
}

func TestEmbed_Cancelled(t *testing.T) {
	svc := NewEmbeddingService(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, svc.Ping(context.Background()))
	assert.Equal(t, ModelName, svc.ModelName())
}
