package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
)

// DefaultTempMailURL is the self-hosted disposable mailbox service.
const DefaultTempMailURL = "http://localhost:3000"

// MailMessage is one message as the mailbox API reports it.
type MailMessage struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html"`
	Date    string `json:"date"`
}

// Content returns the best body for link extraction, preferring HTML.
func (m MailMessage) Content() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// TempMail talks to the disposable-mailbox HTTP API. One client owns one
// session: CreateEmail binds it, KillSession releases it.
type TempMail struct {
	baseURL   string
	client    tls_client.HttpClient
	logger    Logger
	email     string
	sessionID string
}

// NewTempMail creates a mailbox client for the given service URL.
// An empty baseURL selects DefaultTempMailURL.
func NewTempMail(baseURL string, client tls_client.HttpClient, logger Logger) *TempMail {
	if baseURL == "" {
		baseURL = DefaultTempMailURL
	}
	return &TempMail{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Email returns the current session's address, empty before CreateEmail.
func (tm *TempMail) Email() string { return tm.email }

func (tm *TempMail) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tm.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("mailbox service returned status %d", resp.StatusCode)
	}
	return body, nil
}

// CreateEmail provisions a fresh disposable address. The service is retried
// up to 3 times with exponential backoff starting at 2s.
func (tm *TempMail) CreateEmail(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := tm.get(ctx, "/create-email")
		if err != nil {
			lastErr = err
			continue
		}

		var result struct {
			Email     string `json:"email"`
			SessionID string `json:"sessionId"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			lastErr = fmt.Errorf("invalid create-email response: %w", err)
			continue
		}
		if result.Error != "" {
			lastErr = fmt.Errorf("create-email failed: %s", result.Error)
			continue
		}
		if result.Email == "" || result.SessionID == "" {
			lastErr = fmt.Errorf("create-email returned incomplete session")
			continue
		}

		tm.email = result.Email
		tm.sessionID = result.SessionID
		tm.logger.Log("created mailbox %s", tm.email)
		return tm.email, nil
	}
	return "", fmt.Errorf("failed to create mailbox after 3 attempts: %w", lastErr)
}

// GetInbox fetches the session's messages. A "Session not found" response
// transparently provisions a new session; the caller must re-read Email()
// after any GetInbox call because the address may have changed.
func (tm *TempMail) GetInbox(ctx context.Context) ([]MailMessage, error) {
	if tm.sessionID == "" {
		return nil, fmt.Errorf("no active mailbox session")
	}

	body, err := tm.get(ctx, "/get-inbox/"+tm.sessionID)
	if err != nil {
		return nil, err
	}

	var result struct {
		Inbox []MailMessage `json:"inbox"`
		Error string        `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("invalid inbox response: %w", err)
	}

	if strings.Contains(result.Error, "Session not found") {
		tm.logger.Log("mailbox session expired, creating a new one")
		tm.sessionID = ""
		if _, err := tm.CreateEmail(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if result.Error != "" {
		return nil, fmt.Errorf("inbox fetch failed: %s", result.Error)
	}
	return result.Inbox, nil
}

// WaitForMessage polls the inbox until a message whose subject contains
// subjectKeyword (case-insensitive) arrives, or the timeout elapses.
func (tm *TempMail) WaitForMessage(ctx context.Context, subjectKeyword string, timeout, interval time.Duration) (*MailMessage, error) {
	deadline := time.Now().Add(timeout)
	keyword := strings.ToLower(subjectKeyword)

	for {
		inbox, err := tm.GetInbox(ctx)
		if err != nil {
			tm.logger.Log("inbox poll error: %v", err)
		}
		for i := range inbox {
			if strings.Contains(strings.ToLower(inbox[i].Subject), keyword) {
				return &inbox[i], nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no message matching %q within %s", subjectKeyword, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// KillSession releases the mailbox session server-side. Best effort.
func (tm *TempMail) KillSession(ctx context.Context) error {
	if tm.sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/kill-session/"+tm.sessionID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	tm.sessionID = ""
	tm.email = ""
	return nil
}
