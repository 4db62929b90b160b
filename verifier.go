package main

import (
	"context"
	"fmt"
	"time"
)

// verificationSubjectKeyword matches the confirmation email Pinterest sends
// to disposable addresses.
const verificationSubjectKeyword = "Please confirm your email"

// EmailVerifier completes an account by pulling the verification link out of
// the mailbox and opening it. It borrows the browser session from the
// creator but owns the mailbox lifecycle.
type EmailVerifier struct {
	browser  *Browser
	tempMail *TempMail
	logger   Logger
}

// NewEmailVerifier wires a verifier over an existing browser. tempMail may
// be nil when only IMAP verification is used.
func NewEmailVerifier(browser *Browser, tempMail *TempMail, logger Logger) *EmailVerifier {
	return &EmailVerifier{
		browser:  browser,
		tempMail: tempMail,
		logger:   logger,
	}
}

// VerifyWithTempMail waits for the confirmation email on the disposable
// mailbox, extracts the link and opens it.
func (v *EmailVerifier) VerifyWithTempMail(ctx context.Context, timeout, checkInterval time.Duration) error {
	if v.tempMail == nil || v.tempMail.Email() == "" {
		return fmt.Errorf("no mailbox session to verify against")
	}

	v.logger.Log("waiting for verification email on %s", v.tempMail.Email())
	msg, err := v.tempMail.WaitForMessage(ctx, verificationSubjectKeyword, timeout, checkInterval)
	if err != nil {
		return fmt.Errorf("verification email: %w", err)
	}

	link, err := ExtractVerificationLink(msg.Content())
	if err != nil {
		return err
	}
	v.logger.Log("extracted verification link")

	return v.OpenVerificationLink(link)
}

// VerifyIMAP fetches the link from a real mailbox over IMAP and opens it.
// server may be empty for the built-in provider table.
func (v *EmailVerifier) VerifyIMAP(ctx context.Context, email, password, server string) error {
	imapVerifier, err := NewIMAPVerifier(email, password, server, v.logger)
	if err != nil {
		return err
	}

	link, err := imapVerifier.FetchVerificationLink(ctx)
	if err != nil {
		if IsAuthError(err) {
			return fmt.Errorf("mailbox credentials rejected for %s: %w", email, err)
		}
		return err
	}
	v.logger.Log("extracted verification link via IMAP")

	return v.OpenVerificationLink(link)
}

// OpenVerificationLink navigates to the link and confirms the account landed
// on an authenticated surface.
func (v *EmailVerifier) OpenVerificationLink(link string) error {
	v.logger.Log("opening verification link")
	if err := v.browser.Navigate(link, 30*time.Second); err != nil {
		return fmt.Errorf("failed to open verification link: %w", err)
	}
	v.browser.Sleep(5 * time.Second)

	loc, err := v.browser.Location()
	if err != nil {
		return err
	}
	if matchesSuccessURL(loc) {
		v.logger.Log("verification confirmed, landed on %s", loc)
		return nil
	}

	// Fall back to a success message in the page body
	var confirmed bool
	err = v.browser.Eval(
		`(() => { const t = document.body ? document.body.innerText.toLowerCase() : ''; return t.includes('verified') || t.includes('confirmed') || t.includes('success'); })()`,
		&confirmed, 5*time.Second)
	if err == nil && confirmed {
		v.logger.Log("verification success message found on page")
		return nil
	}

	return fmt.Errorf("could not confirm verification, landed on %s", loc)
}

// Cleanup releases the mailbox session. Safe to call repeatedly.
func (v *EmailVerifier) Cleanup(ctx context.Context) {
	if v.tempMail == nil {
		return
	}
	if err := v.tempMail.KillSession(ctx); err != nil {
		v.logger.Log("failed to release mailbox session: %v", err)
	}
}
