// Package resilience provides the retry primitive used around persistence
// operations. The policy is a plain value — attempts, backoff, and the
// retryability classifier are explicit rather than buried in call sites.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// Policy describes a bounded retry loop.
type Policy struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxAttempts is the total number of attempts, first try included.
	// Values below 1 behave as 1.
	MaxAttempts int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// IsRetryable decides whether an error is worth another attempt.
	// When nil, every error is retryable.
	IsRetryable func(error) bool
}

// Do runs op under the policy. It returns nil on the first success, the last
// error once attempts are exhausted or the error is classified
// non-retryable, and ctx.Err() if the context ends during a backoff sleep.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		slog.Warn("retrying after failure",
			"policy", p.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", p.Backoff,
			"err", lastErr,
		)

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}
