// Package retry provides a retry policy with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy configures retry behavior for flaky operations.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles for
	// every attempt after that. Default: 2 seconds
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 1 minute
	MaxDelay time.Duration

	// Jitter adds up to 10% random variation to each wait.
	Jitter bool
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	defaults := DefaultPolicy()

	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = defaults.MaxDelay
	}
}

// Do runs op until it succeeds or attempts are exhausted, waiting
// BaseDelay * 2^(attempt-1) between attempts. There is no wait after
// the final attempt. The last error is returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p.ApplyDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(p.delay(attempt)):
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// delay returns the wait after the given 1-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/10 + 1))
	}
	return d
}
