package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CaptchaTaskState tracks a solve through its lifecycle.
type CaptchaTaskState int

const (
	TaskSubmitted CaptchaTaskState = iota
	TaskPolling
	TaskSolved
	TaskFailed
	TaskTimedOut
)

func (s CaptchaTaskState) String() string {
	switch s {
	case TaskSubmitted:
		return "submitted"
	case TaskPolling:
		return "polling"
	case TaskSolved:
		return "solved"
	case TaskFailed:
		return "failed"
	case TaskTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// CaptchaTask is one submitted solve and its outcome.
type CaptchaTask struct {
	ID       string
	State    CaptchaTaskState
	Solution string
	Err      error
}

// CaptchaSolver dispatches solves to 2Captcha or Anti-Captcha. Base URLs are
// fields so a local endpoint can stand in for the real services.
type CaptchaSolver struct {
	Service         string // "2captcha" or "anticaptcha"
	APIKey          string
	TwoCaptchaURL   string
	AntiCaptchaURL  string
	PollInterval    time.Duration
	MaxPollAttempts int
	logger          Logger
}

// NewCaptchaSolver builds a solver for the named service with the production
// endpoints and the standard 10s x 30 polling budget.
func NewCaptchaSolver(service, apiKey string, logger Logger) *CaptchaSolver {
	return &CaptchaSolver{
		Service:         service,
		APIKey:          apiKey,
		TwoCaptchaURL:   "https://2captcha.com",
		AntiCaptchaURL:  "https://api.anti-captcha.com",
		PollInterval:    10 * time.Second,
		MaxPollAttempts: 30,
		logger:          logger,
	}
}

// SolveRecaptchaV2 returns the g-recaptcha-response token for the given site
// key, solving proxyless.
func (s *CaptchaSolver) SolveRecaptchaV2(ctx context.Context, siteURL, siteKey string) (*CaptchaTask, error) {
	switch s.Service {
	case "anticaptcha":
		return s.antiCaptchaSolve(ctx, map[string]any{
			"type":       "NoCaptchaTaskProxyless",
			"websiteURL": siteURL,
			"websiteKey": siteKey,
		})
	default:
		return s.twoCaptchaSolve(ctx, url.Values{
			"method":    {"userrecaptcha"},
			"googlekey": {siteKey},
			"pageurl":   {siteURL},
		})
	}
}

// SolveImage returns the text for a base64-encoded captcha image.
func (s *CaptchaSolver) SolveImage(ctx context.Context, imageBase64 string) (*CaptchaTask, error) {
	switch s.Service {
	case "anticaptcha":
		return s.antiCaptchaSolve(ctx, map[string]any{
			"type": "ImageToTextTask",
			"body": imageBase64,
		})
	default:
		return s.twoCaptchaSolve(ctx, url.Values{
			"method": {"base64"},
			"body":   {imageBase64},
		})
	}
}

// =============================================================================
// 2Captcha API
// =============================================================================

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (s *CaptchaSolver) twoCaptchaSolve(ctx context.Context, params url.Values) (*CaptchaTask, error) {
	params.Set("key", s.APIKey)
	params.Set("json", "1")

	task := &CaptchaTask{State: TaskSubmitted}

	res, err := getJSON[twoCaptchaResponse](ctx, s.TwoCaptchaURL+"/in.php?"+params.Encode(), 3)
	if err != nil {
		task.State = TaskFailed
		task.Err = err
		return task, err
	}
	if res.Status != 1 {
		task.State = TaskFailed
		task.Err = twoCaptchaError(res.Request)
		return task, task.Err
	}

	task.ID = res.Request
	task.State = TaskPolling
	s.logger.Log("captcha task %s submitted, polling", task.ID)

	resURL := fmt.Sprintf("%s/res.php?key=%s&action=get&id=%s&json=1", s.TwoCaptchaURL, s.APIKey, task.ID)
	policy := RetryPolicy{MaxAttempts: s.MaxPollAttempts, Interval: s.PollInterval}

	err = policy.Run(ctx, func(attempt int) (bool, error) {
		if attempt == 0 {
			// first answer is never ready instantly
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case <-time.After(s.PollInterval):
			}
		}

		res, err := getJSON[twoCaptchaResponse](ctx, resURL, 3)
		if err != nil {
			return false, err
		}
		if res.Status == 1 {
			task.Solution = res.Request
			task.State = TaskSolved
			return true, nil
		}
		if res.Request == "CAPCHA_NOT_READY" {
			return false, nil
		}
		return true, twoCaptchaError(res.Request)
	})

	if err != nil {
		task.Err = err
		if task.State != TaskSolved {
			task.State = TaskFailed
		}
		return task, err
	}
	if task.State != TaskSolved {
		task.State = TaskTimedOut
		task.Err = fmt.Errorf("captcha solve timed out after %d polls", s.MaxPollAttempts)
		return task, task.Err
	}
	return task, nil
}

func twoCaptchaError(code string) error {
	err := fmt.Errorf("2captcha error: %s", code)
	if ContainsFatalErrorString(err) {
		return NewFatalError(err)
	}
	return err
}

// =============================================================================
// Anti-Captcha API
// =============================================================================

type antiCaptchaResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
		Text               string `json:"text"`
	} `json:"solution"`
}

func (s *CaptchaSolver) antiCaptchaSolve(ctx context.Context, taskData map[string]any) (*CaptchaTask, error) {
	task := &CaptchaTask{State: TaskSubmitted}

	res, err := doJSONRequest[antiCaptchaResponse](ctx, s.AntiCaptchaURL+"/createTask", map[string]any{
		"clientKey": s.APIKey,
		"task":      taskData,
	}, 3)
	if err != nil {
		task.State = TaskFailed
		task.Err = err
		return task, err
	}
	if res.ErrorID != 0 {
		task.State = TaskFailed
		task.Err = antiCaptchaError(res.ErrorCode, res.ErrorDescription)
		return task, task.Err
	}

	task.ID = fmt.Sprintf("%d", res.TaskID)
	task.State = TaskPolling
	s.logger.Log("captcha task %s submitted, polling", task.ID)

	policy := RetryPolicy{MaxAttempts: s.MaxPollAttempts, Interval: s.PollInterval}
	err = policy.Run(ctx, func(attempt int) (bool, error) {
		if attempt == 0 {
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case <-time.After(s.PollInterval):
			}
		}

		res, err := doJSONRequest[antiCaptchaResponse](ctx, s.AntiCaptchaURL+"/getTaskResult", map[string]any{
			"clientKey": s.APIKey,
			"taskId":    res.TaskID,
		}, 3)
		if err != nil {
			return false, err
		}
		if res.ErrorID != 0 {
			return true, antiCaptchaError(res.ErrorCode, res.ErrorDescription)
		}
		if res.Status == "ready" {
			if res.Solution.GRecaptchaResponse != "" {
				task.Solution = res.Solution.GRecaptchaResponse
			} else {
				task.Solution = res.Solution.Text
			}
			task.State = TaskSolved
			return true, nil
		}
		return false, nil
	})

	if err != nil {
		task.Err = err
		if task.State != TaskSolved {
			task.State = TaskFailed
		}
		return task, err
	}
	if task.State != TaskSolved {
		task.State = TaskTimedOut
		task.Err = fmt.Errorf("captcha solve timed out after %d polls", s.MaxPollAttempts)
		return task, task.Err
	}
	return task, nil
}

func antiCaptchaError(code, description string) error {
	err := fmt.Errorf("anticaptcha error %s: %s", code, description)
	if ContainsFatalErrorString(err) {
		return NewFatalError(err)
	}
	return err
}

// =============================================================================
// HTTP helpers
// =============================================================================

func doJSONRequest[T any](ctx context.Context, uri string, payload any, maxRetries int) (*T, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", uri, bytes.NewReader(payloadBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		responseData, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		result := new(T)
		if err := json.Unmarshal(responseData, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("API request failed after %d retries: %w", maxRetries, lastErr)
}

func getJSON[T any](ctx context.Context, uri string, maxRetries int) (*T, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		responseData, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		result := new(T)
		if err := json.Unmarshal(responseData, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("API request failed after %d retries: %w", maxRetries, lastErr)
}

// errManualSolveHeadless is returned when a manual solve is requested from a
// headless browser: there is no one to click the checkbox.
var errManualSolveHeadless = errors.New("manual captcha solve requires a visible browser")
