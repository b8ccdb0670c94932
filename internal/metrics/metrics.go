// Package metrics exposes prometheus instrumentation for the seeding pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connector Metrics
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_fetch_attempts_total",
			Help: "Connector fetch attempts by source type and outcome",
		},
		[]string{"source_type", "outcome"}, // "success", "transient", "permanent", "quota"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cityseed_fetch_duration_seconds",
			Help:    "Duration of one connector fetch call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source_type"},
	)

	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_dead_letters_total",
			Help: "Requests routed to the dead-letter store",
		},
		[]string{"source_type", "reason"},
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_rate_limit_waits_total",
			Help: "Fetches that had to wait for a rate limit token",
		},
		[]string{"source_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cityseed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Resolution Metrics
	SignalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_signals_resolved_total",
			Help: "Signals processed by entity resolution",
		},
		[]string{"outcome"}, // "created", "merged", "duplicate", "skipped"
	)

	// Tagging Metrics
	TagsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_tags_applied_total",
			Help: "Vibe tags written by source",
		},
		[]string{"source"},
	)

	ClassifierBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cityseed_classifier_batch_duration_seconds",
			Help:    "Latency of classifier batch calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ClassifierCost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cityseed_classifier_cost_total",
			Help: "Cumulative provider-reported classifier cost",
		},
	)

	// Publication Metrics
	IndexUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_index_upserts_total",
			Help: "Vector index upserts by outcome",
		},
		[]string{"outcome"}, // "upserted", "unchanged", "failed"
	)

	ParityDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cityseed_parity_drift_nodes",
			Help: "Nodes out of parity between store and index at last check",
		},
		[]string{"city", "direction"}, // "missing", "orphaned"
	)

	// Orchestrator Metrics
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cityseed_step_duration_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"step", "status"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityseed_runs_total",
			Help: "City runs by final status",
		},
		[]string{"status"},
	)

	ExcerptsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cityseed_excerpts_purged_total",
			Help: "Community excerpts nulled by the retention job",
		},
	)
)
