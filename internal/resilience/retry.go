package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retries with exponential backoff and jitter. The zero
// value retries nothing useful; start from DefaultPolicy.
type Policy struct {
	// Attempts is the total number of tries including the first.
	Attempts int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every computed backoff, including Retry-After hints.
	MaxDelay time.Duration

	// Growth scales the backoff after each failed attempt.
	Growth float64

	// Jitter randomizes each delay by ±Jitter fraction.
	Jitter float64

	// Classify decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Classify func(error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy suits polling JSON APIs: three tries, half-second base,
// doubling, quarter jitter.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Growth:    2.0,
		Jitter:    0.25,
	}
}

// PolicyFrom builds a Policy from raw config values, falling back to
// defaults for anything unset.
func PolicyFrom(attempts, baseDelayMS, maxDelayMS int) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if baseDelayMS > 0 {
		p.BaseDelay = time.Duration(baseDelayMS) * time.Millisecond
	}
	if maxDelayMS > 0 {
		p.MaxDelay = time.Duration(maxDelayMS) * time.Millisecond
	}
	return p
}

// Do runs fn under the policy, retrying only errors the policy classifies
// as retryable. Context cancellation stops retrying immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !classify(lastErr) {
			return zero, lastErr
		}
		if attempt >= p.Attempts-1 {
			break
		}

		delay := p.delay(attempt)
		// A provider-requested backoff overrides ours, still capped.
		if hint, ok := RetryAfterHint(lastErr); ok && hint > delay {
			delay = min(hint, p.MaxDelay)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Growth <= 0 {
		p.Growth = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Growth, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// LogRetries returns an OnRetry hook that logs each attempt for a provider
// operation.
func LogRetries(provider, op string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("retrying provider call",
			zap.String("provider", provider),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}
}
