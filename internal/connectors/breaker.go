package connectors

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// BreakerSettings tunes the per-source circuit breakers.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenRequests are allowed through while probing.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings returns the production breaker tuning.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// BreakerSet holds one circuit breaker per source type. Only transient
// failures count against a breaker; a 404 says nothing about the source's health.
type BreakerSet struct {
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[domain.SourceType]*gobreaker.CircuitBreaker[[]domain.RawSignal]
}

// NewBreakerSet creates an empty set.
func NewBreakerSet(settings BreakerSettings) *BreakerSet {
	return &BreakerSet{
		settings: settings,
		breakers: make(map[domain.SourceType]*gobreaker.CircuitBreaker[[]domain.RawSignal]),
	}
}

// For returns the breaker for a source type.
func (s *BreakerSet) For(t domain.SourceType) *gobreaker.CircuitBreaker[[]domain.RawSignal] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[t]; ok {
		return cb
	}

	name := "connector-" + string(t)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	threshold := s.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[[]domain.RawSignal](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.settings.HalfOpenRequests,
		Timeout:     s.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || domain.ClassifyFailure(err) != domain.FailureTransient
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	s.breakers[t] = cb
	return cb
}

// breakerError turns breaker rejections into transient errors so the retry
// policy backs off instead of dead-lettering at once.
func breakerError(t domain.SourceType, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewTransientError(string(t)+" circuit", err)
	}
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
