// Package resilience retries database operations that fail for transient
// reasons.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls retries with exponential backoff and jitter.
type Backoff struct {
	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int
	// Initial is the delay before the first retry. Default: 500ms.
	Initial time.Duration
	// Max caps a single delay. Default: 30s.
	Max time.Duration
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
	// Retryable decides whether an error is worth another try. Default: IsTransient.
	Retryable func(error) bool
}

// DefaultBackoff suits connecting to a database that may still be starting.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.25}
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// delay returns the wait before retry number attempt (zero based).
func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(2, float64(attempt))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, b Backoff, op string, fn func(context.Context) (T, error)) (T, error) {
	b = b.withDefaults()
	log := zap.L().With(zap.String("component", "resilience"), zap.String("operation", op))

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt >= b.Attempts-1 {
			return zero, err
		}

		wait := b.delay(attempt)
		log.Warn("retrying operation", zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
