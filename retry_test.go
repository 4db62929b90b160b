package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	fixed := RetryPolicy{MaxAttempts: 5, Interval: 2 * time.Second}
	if d := fixed.Delay(0); d != 0 {
		t.Errorf("Delay(0) = %v, want 0", d)
	}
	if d := fixed.Delay(3); d != 2*time.Second {
		t.Errorf("fixed Delay(3) = %v, want 2s", d)
	}

	backoff := RetryPolicy{MaxAttempts: 5, Interval: 2 * time.Second, Backoff: true}
	wants := []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, want := range wants {
		if d := backoff.Delay(attempt); d != want {
			t.Errorf("backoff Delay(%d) = %v, want %v", attempt, d, want)
		}
	}
}

func TestRetryPolicyRunStopsOnDone(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}
	calls := 0
	err := p.Run(context.Background(), func(attempt int) (bool, error) {
		calls++
		return attempt == 2, nil
	})
	if err != nil {
		t.Errorf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryPolicyRunExhaustionReturnsLastError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond}
	boom := errors.New("still broken")
	calls := 0
	err := p.Run(context.Background(), func(int) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryPolicyRunStopsOnFatal(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}
	calls := 0
	err := p.Run(context.Background(), func(int) (bool, error) {
		calls++
		return false, NewFatalError(errors.New("key revoked"))
	})
	if !IsFatalError(err) {
		t.Errorf("err = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times after fatal error, want 1", calls)
	}
}

func TestRetryPolicyRunCanceledContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Interval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Run(ctx, func(int) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 before the hour-long wait", calls)
	}
}
