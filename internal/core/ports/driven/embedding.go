package driven

import "context"

// EmbeddingService turns node descriptions into vectors for the index.
// Optional: without one, publish and verify have nothing to do.
type EmbeddingService interface {
	// Embed returns one vector per text in input order. Each vector has
	// Dimensions() entries; a provider returning another size is a
	// permanent error, since the index cannot mix sizes.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string

	// Ping checks connectivity without running inference.
	Ping(ctx context.Context) error
	Close() error
}
