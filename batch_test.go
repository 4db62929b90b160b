package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func readResultsFile(path string) (BatchResults, error) {
	var results BatchResults
	data, err := os.ReadFile(path)
	if err != nil {
		return results, err
	}
	err = json.Unmarshal(data, &results)
	return results, err
}

// stubMaker counts calls and returns canned outcomes.
type stubMaker struct {
	calls atomic.Int32
	fn    func(profile UserProfile) (AccountRecord, error)
}

func (m *stubMaker) MakeAccount(_ context.Context, profile UserProfile) (AccountRecord, error) {
	m.calls.Add(1)
	return m.fn(profile)
}

func newTestBatch(t *testing.T, maker accountMaker) (*BatchRunner, *AccountStore) {
	t.Helper()
	store := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"))
	runner := NewBatchRunner(maker, NewProfileGenerator(), store, 0, 0, "", &testLogger{t: t})
	return runner, store
}

func TestBatchRunnerAllFail(t *testing.T) {
	maker := &stubMaker{fn: func(UserProfile) (AccountRecord, error) {
		return AccountRecord{}, errors.New("signup exploded")
	}}
	runner, store := newTestBatch(t, maker)

	stats := runner.Run(context.Background(), 3)

	if stats.Success != 0 || stats.Failed != 3 || stats.Total != 3 {
		t.Errorf("stats = %+v, want 0 success / 3 failed", stats)
	}
	if got := maker.calls.Load(); got != 3 {
		t.Errorf("maker called %d times, want 3", got)
	}
	accounts, _ := store.All()
	if len(accounts) != 0 {
		t.Errorf("failed accounts were persisted: %+v", accounts)
	}
}

func TestBatchRunnerAllSucceed(t *testing.T) {
	maker := &stubMaker{fn: func(p UserProfile) (AccountRecord, error) {
		return recordFromProfile(p), nil
	}}
	runner, store := newTestBatch(t, maker)

	stats := runner.Run(context.Background(), 2)

	if stats.Success != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 2 success", stats)
	}
	accounts, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("got %d persisted accounts, want 2", len(accounts))
	}
	if accounts[0].Email == accounts[1].Email {
		t.Errorf("accounts share an email: %s", accounts[0].Email)
	}
}

func TestBatchRunnerCountsVerified(t *testing.T) {
	maker := &stubMaker{fn: func(p UserProfile) (AccountRecord, error) {
		rec := recordFromProfile(p)
		rec.Verified = true
		return rec, nil
	}}
	runner, _ := newTestBatch(t, maker)

	stats := runner.Run(context.Background(), 2)
	if stats.Verified != 2 {
		t.Errorf("verified = %d, want 2", stats.Verified)
	}
}

func TestBatchRunnerFatalAborts(t *testing.T) {
	maker := &stubMaker{fn: func(UserProfile) (AccountRecord, error) {
		return AccountRecord{}, NewFatalError(errors.New("ERROR_ZERO_BALANCE"))
	}}
	runner, _ := newTestBatch(t, maker)

	stats := runner.Run(context.Background(), 5)

	if got := maker.calls.Load(); got != 1 {
		t.Errorf("maker called %d times after fatal error, want 1", got)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}
}

func TestBatchRunnerCanceledContext(t *testing.T) {
	maker := &stubMaker{fn: func(p UserProfile) (AccountRecord, error) {
		return recordFromProfile(p), nil
	}}
	runner, _ := newTestBatch(t, maker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := runner.Run(ctx, 5)

	if got := maker.calls.Load(); got != 0 {
		t.Errorf("maker called %d times on canceled context, want 0", got)
	}
	if stats.Success != 0 {
		t.Errorf("stats = %+v, want nothing done", stats)
	}
}

func TestBatchRunnerDelayNotAfterLast(t *testing.T) {
	maker := &stubMaker{fn: func(p UserProfile) (AccountRecord, error) {
		return recordFromProfile(p), nil
	}}
	store := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"))
	// 150ms fixed delay between accounts
	runner := NewBatchRunner(maker, NewProfileGenerator(), store, 150*time.Millisecond, 150*time.Millisecond, "", &testLogger{t: t})

	start := time.Now()
	runner.Run(context.Background(), 2)
	elapsed := time.Since(start)

	// One pause between two accounts, none after the last
	if elapsed < 150*time.Millisecond {
		t.Errorf("no inter-account delay observed (elapsed %v)", elapsed)
	}
	if elapsed > 280*time.Millisecond {
		t.Errorf("delay after the last account (elapsed %v)", elapsed)
	}
}

func TestBatchRunnerWritesResults(t *testing.T) {
	maker := &stubMaker{fn: func(p UserProfile) (AccountRecord, error) {
		return recordFromProfile(p), nil
	}}
	dir := t.TempDir()
	store := NewAccountStore(filepath.Join(dir, "accounts.json"))
	resultPath := filepath.Join(dir, "results.json")
	runner := NewBatchRunner(maker, NewProfileGenerator(), store, 0, 0, resultPath, &testLogger{t: t})

	runner.Run(context.Background(), 1)

	results, err := readResultsFile(resultPath)
	if err != nil {
		t.Fatalf("results file: %v", err)
	}
	if results.Stats.Success != 1 || len(results.Accounts) != 1 {
		t.Errorf("results = %+v", results)
	}
}
