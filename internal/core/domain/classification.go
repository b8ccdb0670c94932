package domain

import "time"

// TextSnippet is the text sent to the classifier for one node.
type TextSnippet struct {
	NodeID string
	Text   string
}

// TagSuggestion is one classifier-proposed tag.
type TagSuggestion struct {
	Tag        string
	Confidence float64
}

// ClassificationEnvelope is the classifier's response for one batch.
type ClassificationEnvelope struct {
	// Tags maps node id to suggested tags.
	Tags map[string][]TagSuggestion

	// ModelVersion identifies the classifier model.
	ModelVersion string

	// Cost is the provider-reported cost of the call (currency units or tokens).
	Cost float64

	// Latency is the wall-clock duration of the call.
	Latency time.Duration
}
