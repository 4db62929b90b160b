package main

import (
	"context"
	"math/rand"
	"time"
)

// BatchStats summarizes one batch run.
type BatchStats struct {
	Total     int       `json:"total"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Verified  int       `json:"verified"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration_minutes"`
}

// accountMaker produces one finished account per call. Satisfied by
// accountRunner; tests substitute stubs.
type accountMaker interface {
	MakeAccount(ctx context.Context, profile UserProfile) (AccountRecord, error)
}

// BatchRunner creates accounts one after another with a randomized pause
// between them.
type BatchRunner struct {
	maker     accountMaker
	profiles  *ProfileGenerator
	store     *AccountStore
	logger    Logger
	minDelay  time.Duration
	maxDelay  time.Duration
	rng       *rand.Rand
	resultOut string
}

// NewBatchRunner wires a sequential runner. resultPath may be empty to skip
// the summary file.
func NewBatchRunner(maker accountMaker, profiles *ProfileGenerator, store *AccountStore, minDelay, maxDelay time.Duration, resultPath string, logger Logger) *BatchRunner {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &BatchRunner{
		maker:     maker,
		profiles:  profiles,
		store:     store,
		logger:    logger,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		resultOut: resultPath,
	}
}

// Run creates count accounts sequentially. The pause is drawn uniformly from
// [minDelay, maxDelay] and never happens after the last account. A canceled
// context stops the batch between accounts.
func (r *BatchRunner) Run(ctx context.Context, count int) BatchStats {
	stats := BatchStats{Total: count, StartTime: time.Now()}
	var accounts []AccountRecord
	var failures []FailedAttempt

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			r.logger.Log("batch canceled after %d/%d accounts", i, count)
			break
		}

		r.logger.Log("creating account %d/%d", i+1, count)
		profile := r.profiles.Generate()

		rec, err := r.maker.MakeAccount(ctx, profile)
		if err != nil {
			stats.Failed++
			failures = append(failures, FailedAttempt{
				Email:   profile.Email,
				Error:   err.Error(),
				Attempt: i + 1,
			})
			r.logger.Log("account %d/%d failed: %v", i+1, count, err)
			if IsFatalError(err) {
				r.logger.Log("fatal error, aborting batch")
				break
			}
		} else {
			stats.Success++
			if rec.Verified {
				stats.Verified++
			}
			accounts = append(accounts, rec)
			if err := r.store.Save(rec); err != nil {
				r.logger.Log("failed to persist account %s: %v", rec.Email, err)
			}
		}

		if i < count-1 {
			r.pause(ctx)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime).Minutes()

	if r.resultOut != "" {
		results := BatchResults{Stats: stats, Accounts: accounts, FailedAttempts: failures}
		if err := WriteResults(r.resultOut, results); err != nil {
			r.logger.Log("failed to write results file: %v", err)
		}
	}

	return stats
}

func (r *BatchRunner) pause(ctx context.Context) {
	delay := r.minDelay
	if span := r.maxDelay - r.minDelay; span > 0 {
		delay += time.Duration(r.rng.Int63n(int64(span)))
	}
	if delay <= 0 {
		return
	}
	r.logger.Log("waiting %v before next account", delay.Round(time.Second))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
