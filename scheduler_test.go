package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newIdleScheduler(t *testing.T, cfg RunnerConfig, creators, verifiers int) *Scheduler {
	t.Helper()
	store := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"))
	return NewScheduler(cfg, creators, verifiers, 0, NewProxyManager(), store, &testLogger{t: t})
}

func TestSchedulerCloseWithoutWork(t *testing.T) {
	s := newIdleScheduler(t, RunnerConfig{Verify: true}, 2, 2)
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not drain idle workers")
	}

	// Results channel must be closed after Close
	if _, ok := <-s.Results(); ok {
		t.Error("results channel still open after Close")
	}
}

// Mirrors the concurrent-mode consumer: select on Results and Done, then
// Close. An interrupt must terminate the loop, not strand it.
func TestSchedulerShutdownUnblocksResultsLoop(t *testing.T) {
	s := newIdleScheduler(t, RunnerConfig{Verify: true}, 2, 1)
	s.Start(context.Background())

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for {
			select {
			case <-s.Results():
			case <-s.Done():
				return
			}
		}
	}()

	s.Shutdown()

	select {
	case <-loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("results loop still blocked after Shutdown")
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not drain workers after Shutdown")
	}
}

// A fatal error with a backed-up queue must still reach the consumer and
// release a producer blocked in Submit.
func TestSchedulerFatalUnblocksProducerAndResults(t *testing.T) {
	s := newIdleScheduler(t, RunnerConfig{}, 1, 0)

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < 50; i++ {
			if !s.Submit(UserProfile{Email: "queued@example.com"}) {
				return
			}
		}
	}()

	fatal := NewFatalError(errors.New("ERROR_ZERO_BALANCE"))
	s.handleFatalError(fatal)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not signalled after fatal error")
	}
	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked in Submit after fatal error")
	}

	if err := s.FatalErr(); !errors.Is(err, fatal) {
		t.Errorf("FatalErr() = %v, want %v", err, fatal)
	}
	if s.Submit(UserProfile{Email: "late@example.com"}) {
		t.Error("Submit accepted work after the scheduler stopped")
	}
}

func TestSchedulerWorkerClamping(t *testing.T) {
	s := newIdleScheduler(t, RunnerConfig{Verify: true}, 0, 0)
	if s.creationWorkers != 1 {
		t.Errorf("creationWorkers = %d, want clamped to 1", s.creationWorkers)
	}
	if s.verifyWorkers != 1 {
		t.Errorf("verifyWorkers = %d, want clamped to 1 when verification is on", s.verifyWorkers)
	}

	s2 := newIdleScheduler(t, RunnerConfig{Verify: false}, 3, 0)
	if s2.verifyWorkers != 0 {
		t.Errorf("verifyWorkers = %d, want 0 when verification is off", s2.verifyWorkers)
	}
}

func TestGenerateWorkerID(t *testing.T) {
	a, b := generateWorkerID(), generateWorkerID()
	if len(a) != 8 {
		t.Errorf("worker id %q should be 8 chars", a)
	}
	if a == b {
		t.Errorf("worker ids should be unique, got %q twice", a)
	}
}
