package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

// Limiter throttles calls to one source type. A token bucket smooths the
// request rate and a fixed UTC-day window enforces the daily quota. With a
// QuotaStore the window's count is persisted, so the quota holds across
// restarts and processes.
type Limiter struct {
	source domain.SourceType
	bucket *rate.Limiter
	quota  int
	now    func() time.Time
	quotas driven.QuotaStore

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// NewLimiter creates a limiter from the source's limits.
func NewLimiter(source domain.SourceType, limits domain.SourceLimits, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	perMinute := limits.PerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		source: source,
		bucket: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		quota:  limits.DailyQuota,
		now:    now,
	}
}

// Wait blocks until a call may proceed. When the daily quota is spent it
// returns a *domain.QuotaError immediately instead of blocking until tomorrow.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.take(ctx); err != nil {
		return err
	}
	if l.bucket.Tokens() < 1 {
		metrics.RateLimitWaits.WithLabelValues(string(l.source)).Inc()
	}
	return l.bucket.Wait(ctx)
}

// take consumes one unit of the daily quota.
func (l *Limiter) take(ctx context.Context) error {
	if l.quota <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(l.windowStart) {
		l.windowStart = day
		l.used = 0
	}
	spent := &domain.QuotaError{Source: l.source, ResetAt: day.Add(24 * time.Hour)}
	if l.quotas == nil {
		if l.used >= l.quota {
			return spent
		}
		l.used++
		return nil
	}

	used, granted, err := l.quotas.Consume(ctx, l.source, day, l.quota)
	if err != nil {
		return domain.NewTransientError("quota", err)
	}
	l.used = used
	if !granted {
		return spent
	}
	return nil
}

// load reads the persisted count of the current window.
func (l *Limiter) load(ctx context.Context) error {
	if l.quota <= 0 || l.quotas == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day := l.now().UTC().Truncate(24 * time.Hour)
	used, err := l.quotas.Used(ctx, l.source, day)
	if err != nil {
		return err
	}
	l.windowStart = day
	l.used = used
	return nil
}

// Remaining returns the calls left in the current daily window as last seen
// by this limiter, or -1 when the source has no quota.
func (l *Limiter) Remaining() int {
	if l.quota <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.now().UTC().Truncate(24 * time.Hour).Equal(l.windowStart) {
		return l.quota
	}
	return l.quota - l.used
}

// LimiterSet holds one limiter per source type, shared by every connector
// of that type.
type LimiterSet struct {
	settings *domain.PipelineSettings
	now      func() time.Time
	quotas   driven.QuotaStore

	mu       sync.Mutex
	limiters map[domain.SourceType]*Limiter
}

// LimiterOption configures a LimiterSet.
type LimiterOption func(*LimiterSet)

// WithQuotaStore persists daily quota usage in store.
func WithQuotaStore(store driven.QuotaStore) LimiterOption {
	return func(s *LimiterSet) { s.quotas = store }
}

// NewLimiterSet creates limiters lazily from the pipeline settings.
func NewLimiterSet(settings *domain.PipelineSettings, now func() time.Time, opts ...LimiterOption) *LimiterSet {
	s := &LimiterSet{
		settings: settings,
		now:      now,
		limiters: make(map[domain.SourceType]*Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// For returns the limiter for a source type.
func (s *LimiterSet) For(t domain.SourceType) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limiter(t)
}

func (s *LimiterSet) limiter(t domain.SourceType) *Limiter {
	l, ok := s.limiters[t]
	if !ok {
		l = NewLimiter(t, s.settings.LimitsFor(t), s.now)
		l.quotas = s.quotas
		s.limiters[t] = l
	}
	return l
}

// Load builds the limiter of every source type and reads back today's
// persisted usage. Without a quota store it only builds the limiters.
func (s *LimiterSet) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range domain.AllSourceTypes() {
		if err := s.limiter(t).load(ctx); err != nil {
			return fmt.Errorf("load quota usage of %s: %w", t, err)
		}
	}
	return nil
}
