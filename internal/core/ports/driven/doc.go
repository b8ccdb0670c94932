// Package driven lists what the core needs from the outside world:
// connectors, stores for every persisted type, configuration and the AI
// collaborators.
//
// Classifier, EmbeddingService and VectorIndex may be nil. Without a
// classifier nodes get rule tags only; without the embedder or the index
// the publish and verify steps finish with nothing to do.
//
// Implementations live under internal/adapters/driven and
// internal/connectors; this package imports only domain.
package driven
