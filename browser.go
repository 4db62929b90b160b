package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript runs before every document load to hide the usual automation
// giveaways from fingerprinting checks.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// Browser wraps a chromedp session. One Browser is one Chrome process; all
// cancel funcs are retained so Close tears down the full chain.
type Browser struct {
	ctx      context.Context
	cancels  []context.CancelFunc
	headless bool
	logger   Logger
}

// NewBrowser launches Chrome. proxyURL may be empty for a direct connection.
func NewBrowser(headless bool, proxyURL string, logger Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("mute-audio", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(browserUserAgent),
		chromedp.WindowSize(1366, 768),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	b := &Browser{
		ctx:      ctx,
		cancels:  []context.CancelFunc{cancelCtx, cancelAlloc},
		headless: headless,
		logger:   logger,
	}

	// Start the process and install the stealth hook before any navigation.
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return b, nil
}

// Headless reports whether the session runs without a visible window.
func (b *Browser) Headless() bool { return b.headless }

// Context exposes the chromedp context for raw actions.
func (b *Browser) Context() context.Context { return b.ctx }

// Close tears down the tab, browser process and allocator.
func (b *Browser) Close() {
	for _, cancel := range b.cancels {
		cancel()
	}
}

// Navigate loads a URL and waits for the body to be ready.
func (b *Browser) Navigate(urlStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("page load timed out: %s", urlStr)
		}
		return err
	}
	return nil
}

// WaitVisible waits for the selector and returns its node handle, or nil
// with ErrElementNotFound when the timeout elapses.
func (b *Browser) WaitVisible(selector string, timeout time.Duration) (*cdp.Node, error) {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nodes[0], nil
}

// Exists reports whether the selector is currently present, without waiting.
func (b *Browser) Exists(selector string) bool {
	ctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	return err == nil && len(nodes) > 0
}

// Click clicks the first element matching the selector.
func (b *Browser) Click(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery))
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return err
}

// ClickNode clicks a previously resolved node handle.
func (b *Browser) ClickNode(node *cdp.Node, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.MouseClickNode(node))
}

// ClickWithRetry clicks the selector, retrying when another element
// intercepts the click (overlays, toasts). One second between attempts.
func (b *Browser) ClickWithRetry(selector string, attempts int) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(time.Second)
		}
		lastErr = b.Click(selector, 5*time.Second)
		if lastErr == nil {
			return nil
		}
		if !strings.Contains(lastErr.Error(), "intercept") && !strings.Contains(lastErr.Error(), "not clickable") {
			return lastErr
		}
	}
	return lastErr
}

// SendKeys focuses the selector and types the value.
func (b *Browser) SendKeys(selector, value string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return err
}

// Location returns the current page URL.
func (b *Browser) Location() (string, error) {
	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()

	var loc string
	if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Eval runs a JavaScript expression, decoding the result into res when
// non-nil.
func (b *Browser) Eval(expr string, res any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	if res == nil {
		var discard any
		return chromedp.Run(ctx, chromedp.Evaluate(expr, &discard))
	}
	return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
}

// Sleep pauses, bounded by the browser context so a closed session does not
// hang the caller.
func (b *Browser) Sleep(d time.Duration) {
	select {
	case <-b.ctx.Done():
	case <-time.After(d):
	}
}
