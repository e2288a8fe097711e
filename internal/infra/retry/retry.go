// File: internal/infra/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"slideshow-batch/internal/domain"
)

// Policy retries transient failures with exponential backoff. Classification
// is explicit through domain.IsRetryable: rate-limit and timeout signals are
// re-attempted, everything else propagates immediately.
type Policy struct {
	MaxAttempts int           // total tries, including the first
	BaseDelay   time.Duration // delay before the second try; doubles each attempt
	MaxDelay    time.Duration
	Jitter      bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    2 * time.Minute,
		Jitter:      true,
	}
}

type Operation func(ctx context.Context) error

// Execute runs op up to MaxAttempts times. onFailure, when non-nil, fires
// after every failed attempt (retryable or not) before any backoff sleep;
// this is how a variation's retry counter is kept current. The returned error
// is nil on success, the original error for terminal failures, and wraps
// domain.ErrRetriesExhausted once the budget is spent.
func (p Policy) Execute(ctx context.Context, op Operation, onFailure func(attempt int, err error)) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if !domain.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, maxAttempts, lastErr)
}

// backoff computes base_delay × 2^n, capped, with up to 25% jitter on top.
func (p Policy) backoff(n int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(n)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
