package connectors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier applies the retry policy to an operation. Transient errors are
// retried with exponential backoff and jitter; permanent and quota errors
// return immediately.
type Retrier struct {
	policy domain.RetrySettings
	sleep  SleepFunc

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewRetrier creates a retrier. A zero seed uses the clock; a fixed seed
// makes the jitter reproducible. A nil sleep uses Sleep.
func NewRetrier(policy domain.RetrySettings, seed int64, sleep SleepFunc) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2.0
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{
		policy: policy,
		sleep:  sleep,
		//nolint:gosec // G404: jitter does not need a cryptographic source
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Backoff returns the delay before retry number attempt (0-based):
// BaseDelay * Multiplier^attempt, capped at MaxDelay, plus or minus jitter.
func (r *Retrier) Backoff(attempt int) time.Duration {
	backoff := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(attempt))
	if r.policy.MaxDelay > 0 && backoff > float64(r.policy.MaxDelay) {
		backoff = float64(r.policy.MaxDelay)
	}

	r.randMu.Lock()
	jitter := backoff * r.policy.JitterFraction * (r.rng.Float64()*2 - 1)
	r.randMu.Unlock()

	return time.Duration(backoff + jitter)
}

// Do runs op until it succeeds, fails permanently or the attempt budget is
// spent. It returns the number of attempts made and the last error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !retryable(err) || attempt >= r.policy.MaxAttempts {
			return attempt, err
		}
		if sleepErr := r.sleep(ctx, r.delay(attempt-1, err)); sleepErr != nil {
			return attempt, sleepErr
		}
	}
}

// delay is the backoff for attempt, stretched to honour a source's
// Retry-After but never beyond MaxDelay.
func (r *Retrier) delay(attempt int, err error) time.Duration {
	d := r.Backoff(attempt)
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.Delay > d {
		d = ra.Delay
		if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
			d = r.policy.MaxDelay
		}
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return domain.ClassifyFailure(err) == domain.FailureTransient
}
