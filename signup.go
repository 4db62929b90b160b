package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// SignupState tracks progress through the signup funnel. States only move
// forward; a failed attempt restarts from StateStart.
type SignupState int

const (
	StateStart SignupState = iota
	StateFormFilled
	StateGenderSelected
	StateLocationConfirmed
	StateInterestsSelected
	StateVerificationPending
	StateVerified
	StateAbandoned
)

func (s SignupState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFormFilled:
		return "form_filled"
	case StateGenderSelected:
		return "gender_selected"
	case StateLocationConfirmed:
		return "location_confirmed"
	case StateInterestsSelected:
		return "interests_selected"
	case StateVerificationPending:
		return "verification_pending"
	case StateVerified:
		return "verified"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

const signupURL = "https://www.pinterest.com/signup/"

// successIndicators are URL fragments that confirm the account landed in an
// authenticated surface after signup.
var successIndicators = []string{
	"pinterest.com/homefeed",
	"pinterest.com/settings",
	"pinterest.com/following",
}

// failureIndicators are surfaces that mean signup did not complete even
// though the host matches.
var failureIndicators = []string{
	"/signup",
	"/login",
	"/password",
}

// setValueScript drives a controlled input through the native value setter so
// the page's framework sees the change as user typing.
const setValueScript = `
(() => {
	const el = document.getElementById(%q);
	if (!el) { return false; }
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value').set;
	setter.call(el, %q);
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()
`

// AccountCreator runs the signup funnel for one account at a time. The
// browser is recreated only after an unrecoverable failure; ordinary retries
// reuse the session.
type AccountCreator struct {
	browser    *Browser
	tempMail   *TempMail
	solver     *CaptchaSolver
	logger     Logger
	state      SignupState
	maxRetries int
	rng        *rand.Rand
}

// NewAccountCreator wires a creator over an existing browser session.
// tempMail may be nil when verification uses IMAP or is skipped.
func NewAccountCreator(browser *Browser, tempMail *TempMail, solver *CaptchaSolver, maxRetries int, logger Logger) *AccountCreator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AccountCreator{
		browser:    browser,
		tempMail:   tempMail,
		solver:     solver,
		logger:     logger,
		maxRetries: maxRetries,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the funnel position of the last (or current) attempt.
func (c *AccountCreator) State() SignupState { return c.state }

// CreateAccount runs the full funnel with retries. On success the returned
// profile carries the final email address (the disposable one when tempMail
// is set).
func (c *AccountCreator) CreateAccount(ctx context.Context, profile UserProfile) (UserProfile, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 2 * time.Second
			c.logger.Log("retrying account creation in %v (attempt %d/%d)", backoff, attempt+1, c.maxRetries)
			select {
			case <-ctx.Done():
				return profile, ctx.Err()
			case <-time.After(backoff):
			}
		}

		c.state = StateStart

		// The mailbox must exist before the form is filled.
		if c.tempMail != nil {
			email, err := c.tempMail.CreateEmail(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			profile.Email = email
		}

		c.logger.Log("starting signup for %s (attempt %d/%d)", profile.Email, attempt+1, c.maxRetries)

		err := c.runFunnel(ctx, profile)
		if err == nil {
			c.state = StateVerificationPending
			return profile, nil
		}

		lastErr = err
		c.logger.Log("signup attempt failed at %s: %v", c.state, err)
		if IsFatalError(err) || ctx.Err() != nil {
			break
		}
	}

	c.state = StateAbandoned
	return profile, fmt.Errorf("account creation failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *AccountCreator) runFunnel(ctx context.Context, profile UserProfile) error {
	if err := c.fillSignupForm(profile); err != nil {
		return err
	}
	c.state = StateFormFilled

	// Next reveals the gender step
	c.browser.Sleep(3 * time.Second)
	if err := c.browser.ClickWithRetry("button[aria-label='Next']", 3); err != nil {
		return fmt.Errorf("next button after form: %w", err)
	}

	if err := c.selectGender(profile.Gender); err != nil {
		return err
	}
	c.state = StateGenderSelected

	// Accept the prefilled locale/country
	c.browser.Sleep(3 * time.Second)
	if err := c.browser.ClickWithRetry("button[data-test-id='nux-locale-country-next-btn']", 3); err != nil {
		return fmt.Errorf("locale confirm: %w", err)
	}
	c.state = StateLocationConfirmed

	if err := c.selectInterests(); err != nil {
		return err
	}
	c.state = StateInterestsSelected

	if err := c.solveCaptchaIfPresent(ctx); err != nil {
		return err
	}

	ok, landedURL, err := c.checkAccountCreated()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unexpected redirect after signup: %s", landedURL)
	}
	c.logger.Log("account created, landed on %s", landedURL)
	return nil
}

func (c *AccountCreator) fillSignupForm(profile UserProfile) error {
	// The signup page itself gets a small retry budget; the SPA sometimes
	// serves an empty shell on first load.
	var navErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			c.browser.Sleep(5 * time.Second)
		}
		if navErr = c.browser.Navigate(signupURL, 20*time.Second); navErr != nil {
			continue
		}
		if _, navErr = c.browser.WaitVisible("div[data-test-id='signup-form']", 20*time.Second); navErr == nil {
			break
		}
	}
	if navErr != nil {
		return fmt.Errorf("signup page did not load: %w", navErr)
	}

	if err := c.browser.SendKeys("#email", profile.Email, 10*time.Second); err != nil {
		return fmt.Errorf("email field: %w", err)
	}
	if err := c.browser.SendKeys("#password", profile.Password, 10*time.Second); err != nil {
		return fmt.Errorf("password field: %w", err)
	}

	if _, err := c.browser.WaitVisible("#birthdate", 10*time.Second); err != nil {
		return fmt.Errorf("birthdate field: %w", err)
	}
	if err := c.setBirthdate(profile.BirthDate); err != nil {
		return fmt.Errorf("birthdate field: %w", err)
	}
	c.browser.Sleep(500 * time.Millisecond)

	if err := c.browser.ClickWithRetry("button[type='submit']", 3); err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	c.browser.Sleep(2 * time.Second)

	// Name fields only appear for some cohorts
	if c.browser.Exists("#first_name") {
		if err := c.browser.SendKeys("#first_name", profile.FirstName, 10*time.Second); err != nil {
			return fmt.Errorf("first name field: %w", err)
		}
		if err := c.browser.SendKeys("#last_name", profile.LastName, 10*time.Second); err != nil {
			return fmt.Errorf("last name field: %w", err)
		}
		if err := c.browser.ClickWithRetry("button[type='submit']", 3); err != nil {
			return fmt.Errorf("submit after name: %w", err)
		}
	} else {
		c.logger.Log("name fields not shown, skipping")
	}

	return nil
}

// setBirthdate writes the profile's date through the native setter. The
// input expects yyyy-mm-dd while profiles carry MM/DD/YYYY.
func (c *AccountCreator) setBirthdate(birthDate string) error {
	parts := strings.Split(birthDate, "/")
	if len(parts) != 3 {
		return fmt.Errorf("malformed birth date %q", birthDate)
	}
	isoDate := fmt.Sprintf("%s-%s-%s", parts[2], parts[0], parts[1])

	var ok bool
	script := fmt.Sprintf(setValueScript, "birthdate", isoDate)
	if err := c.browser.Eval(script, &ok, 5*time.Second); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: #birthdate", ErrElementNotFound)
	}
	return nil
}

func (c *AccountCreator) selectGender(gender string) error {
	c.browser.Sleep(3 * time.Second)

	selector := fmt.Sprintf("div[data-test-id='nux-gender-%s-label'] input[type='radio']", gender)
	if !c.browser.Exists(selector) {
		// Fall back to whichever option is present
		for _, g := range []string{"female", "male"} {
			alt := fmt.Sprintf("div[data-test-id='nux-gender-%s-label'] input[type='radio']", g)
			if c.browser.Exists(alt) {
				selector = alt
				break
			}
		}
	}

	if err := c.browser.ClickWithRetry(selector, 3); err != nil {
		return fmt.Errorf("gender option: %w", err)
	}
	c.logger.Log("selected gender: %s", gender)

	c.browser.Sleep(3 * time.Second)
	if err := c.browser.ClickWithRetry("button[data-test-id='nux-locale-country-next-btn']", 3); err != nil {
		c.logger.Log("next button after gender not found, continuing")
	}
	return nil
}

func (c *AccountCreator) selectInterests() error {
	c.browser.Sleep(3 * time.Second)

	if !c.browser.Exists("div[data-test-id='nux-picker-topic']") {
		c.logger.Log("interest picker not shown, skipping")
		return nil
	}

	// Pick 5-10 topics by index; clicking past the end is harmless because
	// each click is best effort.
	count := c.rng.Intn(6) + 5
	var clicked int
	for i := 0; i < count; i++ {
		script := fmt.Sprintf(
			`(() => { const t = document.querySelectorAll("div[data-test-id='nux-picker-topic']"); if (t.length === 0) return false; const el = t[%d %% t.length].querySelector("div[role='button']"); if (!el) return false; el.click(); return true; })()`,
			i*3+c.rng.Intn(3))
		var ok bool
		if err := c.browser.Eval(script, &ok, 5*time.Second); err == nil && ok {
			clicked++
		}
		c.browser.Sleep(500 * time.Millisecond)
	}
	c.logger.Log("selected %d interests", clicked)

	for _, sel := range []string{
		"button[data-test-id='next-btn']",
		"button[data-test-id='done-btn']",
	} {
		if c.browser.Exists(sel) {
			return c.browser.ClickWithRetry(sel, 3)
		}
	}
	return nil
}

// solveCaptchaIfPresent handles a reCAPTCHA interstitial when one appears.
// With a configured solver the token is injected; otherwise a visible
// browser waits for the operator to click through, and a headless one fails
// immediately.
func (c *AccountCreator) solveCaptchaIfPresent(ctx context.Context) error {
	if !c.browser.Exists("iframe[src*='recaptcha']") {
		return nil
	}
	c.logger.Log("captcha challenge detected")

	if c.solver != nil && c.solver.APIKey != "" {
		return c.solveWithService(ctx)
	}
	return c.manualSolve(ctx)
}

func (c *AccountCreator) solveWithService(ctx context.Context) error {
	var siteKey string
	err := c.browser.Eval(
		`(() => { const el = document.querySelector('[data-sitekey]'); return el ? el.getAttribute('data-sitekey') : ''; })()`,
		&siteKey, 5*time.Second)
	if err != nil || siteKey == "" {
		return fmt.Errorf("could not read captcha site key")
	}

	loc, err := c.browser.Location()
	if err != nil {
		return err
	}

	task, err := c.solver.SolveRecaptchaV2(ctx, loc, siteKey)
	if err != nil {
		return fmt.Errorf("captcha solve (%s): %w", task.State, err)
	}

	script := fmt.Sprintf(
		`(() => { const el = document.getElementById('g-recaptcha-response'); if (!el) return false; el.innerHTML = %q; el.dispatchEvent(new Event('change', { bubbles: true })); return true; })()`,
		task.Solution)
	var ok bool
	if err := c.browser.Eval(script, &ok, 5*time.Second); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("captcha response field not found")
	}
	c.logger.Log("captcha token injected")
	return nil
}

// manualSolve clicks the checkbox and waits up to two minutes for a human to
// finish the challenge.
func (c *AccountCreator) manualSolve(ctx context.Context) error {
	if c.browser.Headless() {
		return errManualSolveHeadless
	}

	c.logger.Log("waiting for manual captcha solve")
	_ = c.browser.ClickWithRetry("iframe[src*='recaptcha']", 2)

	policy := RetryPolicy{MaxAttempts: 120, Interval: time.Second}
	return policy.Run(ctx, func(attempt int) (bool, error) {
		var token string
		err := c.browser.Eval(
			`(() => { const el = document.getElementById('g-recaptcha-response'); return el ? el.value : ''; })()`,
			&token, 5*time.Second)
		if err != nil {
			return false, err
		}
		if token != "" {
			return true, nil
		}
		if attempt == 119 {
			return true, fmt.Errorf("manual captcha solve timed out")
		}
		return false, nil
	})
}

// checkAccountCreated waits for the post-signup redirect and matches the URL
// against the known authenticated surfaces.
func (c *AccountCreator) checkAccountCreated() (bool, string, error) {
	c.browser.Sleep(5 * time.Second)

	loc, err := c.browser.Location()
	if err != nil {
		return false, "", err
	}
	return matchesSuccessURL(loc), loc, nil
}

func matchesSuccessURL(currentURL string) bool {
	for _, indicator := range successIndicators {
		if strings.Contains(currentURL, indicator) {
			return true
		}
	}
	// Landing anywhere else on the site still counts, except the auth
	// surfaces themselves.
	if strings.Contains(currentURL, "pinterest.com/") {
		for _, indicator := range failureIndicators {
			if strings.Contains(currentURL, indicator) {
				return false
			}
		}
		return true
	}
	return false
}
