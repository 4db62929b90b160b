package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskResult is the outcome of one account task.
type TaskResult struct {
	Email    string
	Success  bool
	Verified bool
	Error    error
}

// pendingVerification hands a created account from a creation worker to a
// verification worker. The browser and mailbox session travel with it.
type pendingVerification struct {
	record   AccountRecord
	browser  *Browser
	tempMail *TempMail
}

// Scheduler runs a creation worker pool feeding a verification worker pool.
// Creation workers own browser startup; the browser is handed off alive so
// the verification session keeps the signup cookies.
type Scheduler struct {
	cfg          RunnerConfig
	proxyManager *ProxyManager
	store        *AccountStore
	logger       Logger

	workChan    chan UserProfile
	verifyChan  chan *pendingVerification
	resultsChan chan TaskResult

	creationWorkers int
	verifyWorkers   int
	staggerDelay    time.Duration

	wg        sync.WaitGroup
	verifyWG  sync.WaitGroup
	cancel    context.CancelFunc
	fatalOnce sync.Once
	stopped   atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once

	fatalMu  sync.Mutex
	fatalErr error

	sessionMu sync.Mutex
	sessions  map[string]*Browser
}

// NewScheduler builds the two worker pools. verifyWorkers is clamped to at
// least one when verification is enabled.
func NewScheduler(cfg RunnerConfig, creationWorkers, verifyWorkers int, staggerDelay time.Duration, proxyManager *ProxyManager, store *AccountStore, logger Logger) *Scheduler {
	if creationWorkers <= 0 {
		creationWorkers = 1
	}
	if cfg.Verify && verifyWorkers <= 0 {
		verifyWorkers = 1
	}

	return &Scheduler{
		cfg:             cfg,
		proxyManager:    proxyManager,
		store:           store,
		logger:          logger,
		workChan:        make(chan UserProfile, creationWorkers*2),
		verifyChan:      make(chan *pendingVerification, creationWorkers*2),
		resultsChan:     make(chan TaskResult, creationWorkers*4),
		creationWorkers: creationWorkers,
		verifyWorkers:   verifyWorkers,
		staggerDelay:    staggerDelay,
		stopChan:        make(chan struct{}),
		sessions:        make(map[string]*Browser),
	}
}

func generateWorkerID() string {
	return uuid.New().String()[:8]
}

// Start launches both pools. Creation workers are staggered so Chrome
// processes do not all spawn at once.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.verifyWorkers; i++ {
		s.verifyWG.Add(1)
		go s.runVerifyWorker(ctx, generateWorkerID())
	}

	for i := 0; i < s.creationWorkers; i++ {
		s.wg.Add(1)
		go s.runCreationWorker(ctx, generateWorkerID())

		if s.staggerDelay > 0 && i < s.creationWorkers-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.staggerDelay):
			}
		}
	}
}

// Submit queues one profile for creation. It returns false once the
// scheduler has stopped, so a producer never wedges on a dead pool.
func (s *Scheduler) Submit(profile UserProfile) bool {
	select {
	case s.workChan <- profile:
		return true
	case <-s.stopChan:
		return false
	}
}

// Results returns the channel task outcomes arrive on.
func (s *Scheduler) Results() <-chan TaskResult {
	return s.resultsChan
}

// Done is closed when the scheduler stops early, either by Shutdown or a
// fatal error. Consumers select on it alongside Results so a stopped run
// never leaves them ranging a channel nobody feeds.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopChan
}

// FatalErr returns the error that stopped the run, or nil.
func (s *Scheduler) FatalErr() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatalErr
}

func (s *Scheduler) stop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close drains both pools in order: no more work, wait for creators, then no
// more verifications, wait for verifiers.
func (s *Scheduler) Close() {
	close(s.workChan)
	s.wg.Wait()
	close(s.verifyChan)
	s.verifyWG.Wait()
	close(s.resultsChan)
}

// Shutdown force-stops everything and closes any live browser sessions.
// Used on SIGINT where waiting for a full funnel is not acceptable.
func (s *Scheduler) Shutdown() {
	s.stop()
	if s.cancel != nil {
		s.cancel()
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	for id, b := range s.sessions {
		s.logger.Log("closing browser session for worker %s", id)
		b.Close()
	}
	s.sessions = make(map[string]*Browser)
}

func (s *Scheduler) registerSession(id string, b *Browser) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.sessions[id] = b
}

func (s *Scheduler) unregisterSession(id string) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	delete(s.sessions, id)
}

func (s *Scheduler) isFatal(err error) bool {
	return IsFatalError(err) || ContainsFatalErrorString(err)
}

// handleFatalError records the error and stops the run. The stop signal
// travels over Done rather than resultsChan, which may be full.
func (s *Scheduler) handleFatalError(err error) {
	s.fatalOnce.Do(func() {
		s.fatalMu.Lock()
		s.fatalErr = err
		s.fatalMu.Unlock()

		s.logger.Log("FATAL ERROR: %v - stopping all workers", err)
		s.stop()

		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Scheduler) emit(ctx context.Context, res TaskResult) {
	select {
	case s.resultsChan <- res:
	case <-ctx.Done():
	}
}

func (s *Scheduler) runCreationWorker(ctx context.Context, id string) {
	defer s.wg.Done()
	logger := &workerLogger{id: id, base: s.logger}

	for {
		select {
		case <-ctx.Done():
			return
		case profile, ok := <-s.workChan:
			if !ok {
				return
			}
			if s.stopped.Load() {
				return
			}
			s.processCreation(ctx, id, logger, profile)
		}
	}
}

func (s *Scheduler) processCreation(ctx context.Context, id string, logger Logger, profile UserProfile) {
	proxyURL, hasProxy := s.proxyManager.Next()
	if hasProxy {
		logger.Log("using proxy %s", s.proxyManager.Display(proxyURL))
	}

	browser, err := NewBrowser(s.cfg.Headless, proxyURL, logger)
	if err != nil {
		s.emit(ctx, TaskResult{Email: profile.Email, Error: err})
		return
	}
	s.registerSession(id, browser)

	closeSession := func() {
		s.unregisterSession(id)
		browser.Close()
	}

	var tempMail *TempMail
	if s.cfg.UseTempMail {
		httpClient, err := NewHTTPClient(nil, proxyURL, true)
		if err != nil {
			closeSession()
			s.emit(ctx, TaskResult{Email: profile.Email, Error: err})
			return
		}
		tempMail = NewTempMail(s.cfg.TempMailURL, httpClient, logger)
	}

	var solver *CaptchaSolver
	if s.cfg.CaptchaKey != "" {
		solver = NewCaptchaSolver(s.cfg.CaptchaService, s.cfg.CaptchaKey, logger)
	}

	creator := NewAccountCreator(browser, tempMail, solver, s.cfg.MaxRetries, logger)
	profile, err = creator.CreateAccount(ctx, profile)
	if err != nil {
		closeSession()
		if s.isFatal(err) {
			s.handleFatalError(err)
			return
		}
		s.emit(ctx, TaskResult{Email: profile.Email, Error: err})
		return
	}

	rec := recordFromProfile(profile)
	if hasProxy {
		rec.Proxy = s.proxyManager.Display(proxyURL)
	}
	if err := s.store.Save(rec); err != nil {
		logger.Log("failed to persist account %s: %v", rec.Email, err)
	}

	if !s.cfg.Verify {
		if tempMail != nil {
			if err := tempMail.KillSession(ctx); err != nil {
				logger.Log("failed to release mailbox session: %v", err)
			}
		}
		closeSession()
		s.emit(ctx, TaskResult{Email: rec.Email, Success: true})
		return
	}

	// Hand off to the verification pool. The verify worker re-registers the
	// browser under its own ID.
	s.unregisterSession(id)
	pending := &pendingVerification{record: rec, browser: browser, tempMail: tempMail}
	select {
	case s.verifyChan <- pending:
	case <-ctx.Done():
		browser.Close()
	}
}

func (s *Scheduler) runVerifyWorker(ctx context.Context, id string) {
	defer s.verifyWG.Done()
	logger := &workerLogger{id: id, base: s.logger}

	for {
		// Short-timeout poll so a stop flag set between deliveries is
		// observed promptly.
		select {
		case <-ctx.Done():
			s.drainVerifyQueue()
			return
		case pending, ok := <-s.verifyChan:
			if !ok {
				return
			}
			if s.stopped.Load() {
				pending.browser.Close()
				return
			}
			s.processVerification(ctx, id, logger, pending)
		case <-time.After(500 * time.Millisecond):
			if s.stopped.Load() {
				return
			}
		}
	}
}

func (s *Scheduler) processVerification(ctx context.Context, id string, logger Logger, pending *pendingVerification) {
	s.registerSession(id, pending.browser)
	defer func() {
		s.unregisterSession(id)
		pending.browser.Close()
	}()

	verifier := NewEmailVerifier(pending.browser, pending.tempMail, logger)
	defer verifier.Cleanup(ctx)

	var err error
	if s.cfg.UseTempMail {
		err = verifier.VerifyWithTempMail(ctx, s.cfg.VerifyTimeout, s.cfg.CheckInterval)
	} else {
		err = verifier.VerifyIMAP(ctx, pending.record.Email, s.cfg.MailPassword, s.cfg.IMAPServer)
	}

	if err != nil {
		logger.Log("verification failed for %s: %v", pending.record.Email, err)
		if s.isFatal(err) {
			s.handleFatalError(err)
		}
		s.emit(ctx, TaskResult{Email: pending.record.Email, Success: true, Verified: false, Error: err})
		return
	}

	if err := s.store.MarkVerified(pending.record.Email); err != nil {
		logger.Log("failed to record verification for %s: %v", pending.record.Email, err)
	}
	s.emit(ctx, TaskResult{Email: pending.record.Email, Success: true, Verified: true})
}

// drainVerifyQueue closes browsers for work that will never be processed.
func (s *Scheduler) drainVerifyQueue() {
	for {
		select {
		case pending, ok := <-s.verifyChan:
			if !ok {
				return
			}
			pending.browser.Close()
		default:
			return
		}
	}
}
