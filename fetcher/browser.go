// CLAUDE:SUMMARY Rendered (headless, network-idle) and Automated (stealth, viewport, scroll, challenge-wait) browser strategies.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/scrapeall/fetcher/internal/browser"
)

// BrowserConfig configures the browser strategies. Zero values get defaults.
type BrowserConfig struct {
	// Bin is the Chrome binary. Empty = let Rod find or download one.
	Bin string `yaml:"bin"`
	// RemoteURL is the WebSocket URL of an external Chrome. Empty = launch
	// one local process per session.
	RemoteURL string `yaml:"remote_url"`
	// NoSandbox is needed when running as root in containers.
	NoSandbox bool `yaml:"no_sandbox"`
	// MaxSessions bounds concurrent browser sessions. Default: 4.
	MaxSessions int64 `yaml:"max_sessions"`
	// ResourceBlocking lists resource types to block. Default: images, fonts, media.
	ResourceBlocking []string `yaml:"resource_blocking"`
	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string `yaml:"xvfb_display"`

	// IdleWait bounds the wait for network idle after load. Default: 5s.
	IdleWait time.Duration `yaml:"idle_wait"`
	// Settle is an extra pause after load for late scripts. Default: 2s
	// (rendered), 3s (automated).
	Settle time.Duration `yaml:"settle"`
	// SelectorWait bounds the wait for the scope selector to appear. Default: 5s.
	SelectorWait time.Duration `yaml:"selector_wait"`
	// ChallengeWait bounds how long the automated strategy waits for a
	// challenge page to clear itself. Default: 10s.
	ChallengeWait time.Duration `yaml:"challenge_wait"`
	// Headful runs the automated strategy in a headful browser under Xvfb.
	Headful bool `yaml:"headful"`
	// UserAgent used by the automated strategy. Default: DefaultUserAgent.
	UserAgent string `yaml:"user_agent"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *BrowserConfig) defaults() {
	if c.IdleWait <= 0 {
		c.IdleWait = 5 * time.Second
	}
	if c.SelectorWait <= 0 {
		c.SelectorWait = 5 * time.Second
	}
	if c.ChallengeWait <= 0 {
		c.ChallengeWait = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ResourceBlocking == nil {
		c.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browsers owns the session pool shared by Rendered and Automated.
type Browsers struct {
	cfg  BrowserConfig
	pool *browser.Pool
}

// NewBrowsers creates the pool. No Chrome runs until a fetch needs one.
func NewBrowsers(cfg BrowserConfig) *Browsers {
	cfg.defaults()
	pool := browser.NewPool(browser.Config{
		Bin:              cfg.Bin,
		RemoteURL:        cfg.RemoteURL,
		NoSandbox:        cfg.NoSandbox,
		MaxSessions:      cfg.MaxSessions,
		ResourceBlocking: cfg.ResourceBlocking,
		XvfbDisplay:      cfg.XvfbDisplay,
		Logger:           cfg.Logger,
	})
	return &Browsers{cfg: cfg, pool: pool}
}

// Close releases pool-wide resources (the Xvfb display).
func (b *Browsers) Close() error { return b.pool.Close() }

// Rendered returns the headless rendering strategy.
func (b *Browsers) Rendered() *Rendered { return &Rendered{b: b} }

// Automated returns the full automation strategy.
func (b *Browsers) Automated() *Automated { return &Automated{b: b} }

// Rendered navigates a disposable headless browser and returns the DOM once
// the network is idle.
type Rendered struct{ b *Browsers }

// Method implements Fetcher.
func (r *Rendered) Method() string { return MethodRendered }

// Fetch implements Fetcher.
func (r *Rendered) Fetch(ctx context.Context, pageURL, selector string) (*Page, error) {
	if _, err := ValidateURL(MethodRendered, pageURL); err != nil {
		return nil, err
	}
	cfg := r.b.cfg
	settle := cfg.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}

	s, err := r.b.pool.Open(ctx, browser.ModeHeadless)
	if err != nil {
		return nil, classifyBrowserError(ctx, MethodRendered, err)
	}
	defer s.Close()

	page := s.Page.Context(ctx)
	if err := navigate(ctx, page, pageURL, cfg.IdleWait); err != nil {
		return nil, classifyBrowserError(ctx, MethodRendered, err)
	}
	if err := sleep(ctx, settle); err != nil {
		return nil, classifyBrowserError(ctx, MethodRendered, err)
	}
	waitSelector(ctx, page, selector, cfg.SelectorWait, cfg.Logger)

	return capture(ctx, MethodRendered, page, false)
}

// Automated drives a stealth browser session with a desktop viewport,
// realistic headers, scrolling, and a bounded wait for challenge pages.
type Automated struct{ b *Browsers }

// Method implements Fetcher.
func (a *Automated) Method() string { return MethodAutomated }

// Fetch implements Fetcher.
func (a *Automated) Fetch(ctx context.Context, pageURL, selector string) (*Page, error) {
	if _, err := ValidateURL(MethodAutomated, pageURL); err != nil {
		return nil, err
	}
	cfg := a.b.cfg
	settle := cfg.Settle
	if settle <= 0 {
		settle = 3 * time.Second
	}

	s, page, err := a.open(ctx, pageURL, settle)
	if err != nil {
		return nil, classifyBrowserError(ctx, MethodAutomated, err)
	}
	defer s.Close()

	// Interstitial challenges usually clear themselves after a few seconds.
	deadline := time.Now().Add(cfg.ChallengeWait)
	for {
		html, err := page.HTML()
		if err != nil {
			return nil, classifyBrowserError(ctx, MethodAutomated, err)
		}
		if Assess(html) != VerdictBlocked || time.Now().After(deadline) {
			break
		}
		cfg.Logger.Debug("fetcher: waiting for challenge to clear", "url", pageURL)
		if err := sleep(ctx, time.Second); err != nil {
			return nil, classifyBrowserError(ctx, MethodAutomated, err)
		}
	}

	if err := scroll(ctx, page); err != nil {
		cfg.Logger.Debug("fetcher: scroll failed", "url", pageURL, "error", err)
	}
	waitSelector(ctx, page, selector, cfg.SelectorWait, cfg.Logger)

	return capture(ctx, MethodAutomated, page, true)
}

// open starts a stealth session with a desktop viewport and user agent,
// loads pageURL and lets late scripts settle. The caller closes the session.
func (a *Automated) open(ctx context.Context, pageURL string, settle time.Duration) (*browser.Session, *rod.Page, error) {
	cfg := a.b.cfg
	mode := browser.ModeStealth
	if cfg.Headful {
		mode = browser.ModeHeadful
	}
	s, err := a.b.pool.Open(ctx, mode)
	if err != nil {
		return nil, nil, err
	}

	page := s.Page.Context(ctx)
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1920, Height: 1080, DeviceScaleFactor: 1,
	})
	if err == nil {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
			Platform:       "Win32",
		})
	}
	if err == nil {
		err = navigate(ctx, page, pageURL, cfg.IdleWait)
	}
	if err == nil {
		err = sleep(ctx, settle)
	}
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, page, nil
}

// navigate loads pageURL and waits for load, then for network idle bounded
// by idle. A slow idle is not an error.
func navigate(ctx context.Context, page *rod.Page, pageURL string, idle time.Duration) error {
	idleCtx, cancel := context.WithTimeout(ctx, idle)
	defer cancel()
	waitIdle := page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil,
		[]proto.NetworkResourceType{proto.NetworkResourceTypeWebSocket, proto.NetworkResourceTypeEventSource})

	if err := page.Navigate(pageURL); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return err
	}
	waitIdle()
	return nil
}

// waitSelector gives a script-rendered scope element a chance to appear.
func waitSelector(ctx context.Context, page *rod.Page, selector string, d time.Duration, log *slog.Logger) {
	if selector == "" {
		return
	}
	selCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if _, err := page.Context(selCtx).Element(selector); err != nil {
		log.Debug("fetcher: selector did not appear", "selector", selector, "error", err)
	}
}

// scroll walks to the bottom of the page in steps to trigger lazy loading.
func scroll(ctx context.Context, page *rod.Page) error {
	for i := 0; i < 4; i++ {
		if _, err := page.Eval(`() => window.scrollBy(0, Math.max(window.innerHeight, 800))`); err != nil {
			return err
		}
		if err := sleep(ctx, 400*time.Millisecond); err != nil {
			return err
		}
	}
	_, err := page.Eval(`() => window.scrollTo(0, 0)`)
	return err
}

func capture(ctx context.Context, method string, page *rod.Page, last bool) (*Page, error) {
	markup, err := page.HTML()
	if err != nil {
		return nil, classifyBrowserError(ctx, method, err)
	}
	final := ""
	if info, err := page.Info(); err == nil {
		final = info.URL
	}

	switch v := Assess(markup); v {
	case VerdictOK:
	case VerdictShell:
		// The browser already ran the scripts; whatever text there is is final.
		if !last {
			return nil, recoverable(method, "page rendered without content", nil)
		}
	case VerdictBlocked:
		return nil, recoverable(method, "challenge page detected", nil)
	default:
		return nil, recoverable(method, "empty content", nil)
	}
	return &Page{URL: final, Markup: markup, Method: method}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classifyBrowserError maps Rod and Chrome errors to a Failure. Only
// errors that prove the address itself is bad are fatal.
func classifyBrowserError(ctx context.Context, method string, err error) *Failure {
	if ctx.Err() != nil {
		return recoverable(method, "timeout", ctx.Err())
	}
	var nav *rod.NavigationError
	if errors.As(err, &nav) {
		switch {
		case strings.Contains(nav.Reason, "ERR_NAME_NOT_RESOLVED"):
			return fatal(method, "DNS resolution failed", err)
		case strings.Contains(nav.Reason, "ERR_INVALID_URL"):
			return fatal(method, "malformed URL", err)
		case strings.Contains(nav.Reason, "ERR_CERT"), strings.Contains(nav.Reason, "ERR_SSL"):
			return recoverable(method, "TLS error", err)
		}
		return recoverable(method, "navigation failed", err)
	}
	return recoverable(method, "browser error", err)
}
