package main

import (
	"context"
	"time"
)

// RetryPolicy describes a bounded polling/retry loop. One value type is shared
// by captcha polling, inbox polling, IMAP attempts and the manual-solve wait
// instead of each site hardcoding its own sleep-and-recheck loop.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Backoff     bool // double the interval after each attempt
}

// Delay returns the wait before attempt n (0-based). Attempt 0 has no wait.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if !p.Backoff {
		return p.Interval
	}
	d := p.Interval
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Run invokes fn up to MaxAttempts times, sleeping per policy between
// attempts. fn returning done=true stops the loop; the last error is
// returned when the budget is exhausted.
func (p RetryPolicy) Run(ctx context.Context, fn func(attempt int) (done bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		done, err := fn(attempt)
		if done {
			return err
		}
		if err != nil {
			lastErr = err
			if IsFatalError(err) {
				return err
			}
		}
	}
	return lastErr
}
