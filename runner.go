package main

import (
	"context"
	"fmt"
	"time"
)

// RunnerConfig carries the per-account settings shared by the sequential
// batch and the concurrent scheduler.
type RunnerConfig struct {
	Headless       bool
	UseTempMail    bool
	TempMailURL    string
	MailPassword   string // IMAP password when not using disposable mail
	IMAPServer     string // optional host:port override
	Verify         bool
	VerifyTimeout  time.Duration
	CheckInterval  time.Duration
	MaxRetries     int
	CaptchaService string
	CaptchaKey     string
}

// accountRunner owns the full lifecycle of one account attempt: browser,
// mailbox session, signup funnel and optional verification.
type accountRunner struct {
	cfg     RunnerConfig
	proxies *ProxyManager
	logger  Logger
}

func newAccountRunner(cfg RunnerConfig, proxies *ProxyManager, logger Logger) *accountRunner {
	return &accountRunner{cfg: cfg, proxies: proxies, logger: logger}
}

// MakeAccount creates and optionally verifies one account. The browser is
// closed on every exit path.
func (r *accountRunner) MakeAccount(ctx context.Context, profile UserProfile) (AccountRecord, error) {
	proxyURL, hasProxy := r.proxies.Next()
	if hasProxy {
		r.logger.Log("using proxy %s", r.proxies.Display(proxyURL))
	}

	browser, err := NewBrowser(r.cfg.Headless, proxyURL, r.logger)
	if err != nil {
		return AccountRecord{}, fmt.Errorf("browser launch failed: %w", err)
	}
	defer browser.Close()

	var tempMail *TempMail
	if r.cfg.UseTempMail {
		httpClient, err := NewHTTPClient(nil, proxyURL, true)
		if err != nil {
			return AccountRecord{}, err
		}
		tempMail = NewTempMail(r.cfg.TempMailURL, httpClient, r.logger)
	}

	var solver *CaptchaSolver
	if r.cfg.CaptchaKey != "" {
		solver = NewCaptchaSolver(r.cfg.CaptchaService, r.cfg.CaptchaKey, r.logger)
	}

	creator := NewAccountCreator(browser, tempMail, solver, r.cfg.MaxRetries, r.logger)
	profile, err = creator.CreateAccount(ctx, profile)
	if err != nil {
		return AccountRecord{}, err
	}

	rec := recordFromProfile(profile)
	if hasProxy {
		rec.Proxy = r.proxies.Display(proxyURL)
	}

	if r.cfg.Verify {
		verifier := NewEmailVerifier(browser, tempMail, r.logger)
		defer verifier.Cleanup(ctx)

		if r.cfg.UseTempMail {
			err = verifier.VerifyWithTempMail(ctx, r.cfg.VerifyTimeout, r.cfg.CheckInterval)
		} else {
			err = verifier.VerifyIMAP(ctx, profile.Email, r.cfg.MailPassword, r.cfg.IMAPServer)
		}
		if err != nil {
			// The account exists, it just is not verified yet.
			r.logger.Log("verification failed for %s: %v", profile.Email, err)
		} else {
			rec.Verified = true
		}
	} else if tempMail != nil {
		if err := tempMail.KillSession(ctx); err != nil {
			r.logger.Log("failed to release mailbox session: %v", err)
		}
	}

	return rec, nil
}

func recordFromProfile(profile UserProfile) AccountRecord {
	return AccountRecord{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Email:     profile.Email,
		Password:  profile.Password,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Gender:    profile.Gender,
	}
}
