// CLAUDE:SUMMARY Disposable Chrome sessions for the browser strategies: bounded by a semaphore, torn down on every exit path.
// Package browser launches disposable Chrome sessions through Rod. Each
// Session owns its own browser process (or an incognito context on a remote
// Chrome) and releases it on Close, whatever happened before. A weighted
// semaphore bounds how many sessions run at once.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/semaphore"
)

// Mode controls how the session's page is created.
type Mode int

const (
	ModeHeadless Mode = iota // plain headless page
	ModeStealth              // headless page with stealth evasions
	ModeHeadful              // stealth page in a headful browser under Xvfb
)

// Config configures the pool.
type Config struct {
	// Bin is the Chrome binary. Empty = let Rod find or download one.
	Bin string `yaml:"bin"`

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Sessions then use incognito contexts instead of local processes.
	RemoteURL string `yaml:"remote_url"`

	// NoSandbox disables the Chrome sandbox (needed as root in containers).
	NoSandbox bool `yaml:"no_sandbox"`

	// MaxSessions bounds concurrent sessions. Default: 4.
	MaxSessions int64 `yaml:"max_sessions"`

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string `yaml:"resource_blocking"`

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string `yaml:"xvfb_display"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 4
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool hands out Sessions.
type Pool struct {
	cfg  Config
	sem  *semaphore.Weighted
	mu   sync.Mutex
	xvfb *exec.Cmd
}

// NewPool creates a Pool. No browser is started until Open.
func NewPool(cfg Config) *Pool {
	cfg.defaults()
	return &Pool{cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxSessions)}
}

// Close stops the shared Xvfb display, if one was started.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopXvfb()
	return nil
}

// Session is one disposable browser with one page.
type Session struct {
	Page *rod.Page

	browser *rod.Browser
	lnch    *launcher.Launcher
	router  *rod.HijackRouter
	cancel  context.CancelFunc
	release func()
	logger  *slog.Logger
	once    sync.Once
}

// Open starts a session. The browser process is tied to ctx: when ctx ends
// the process is killed even if Close is never reached. Callers must still
// Close the session.
func (p *Pool) Open(ctx context.Context, mode Mode) (*Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("browser: wait for slot: %w", err)
	}
	s := &Session{
		release: func() { p.sem.Release(1) },
		logger:  p.cfg.Logger,
	}

	if err := p.start(ctx, s, mode); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (p *Pool) start(ctx context.Context, s *Session, mode Mode) error {
	log := p.cfg.Logger

	// The connection outlives individual calls; Close cancels it.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	controlURL := p.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Context(ctx)
		if p.cfg.Bin != "" {
			l = l.Bin(p.cfg.Bin)
		}
		if mode == ModeHeadful {
			display, err := p.ensureXvfb()
			if err != nil {
				return fmt.Errorf("browser: xvfb: %w", err)
			}
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+display)...)
		} else {
			l = l.Headless(true)
		}
		if p.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		s.lnch = l
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		controlURL = u
		log.Debug("browser: launched local chrome", "mode", mode)
	}

	root := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := root.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}

	b := root
	if p.cfg.RemoteURL != "" {
		inc, err := root.Incognito()
		if err != nil {
			return fmt.Errorf("browser: incognito: %w", err)
		}
		b = inc
	}
	s.browser = b

	// Ignore certificate errors so self-signed sites still render.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	var page *rod.Page
	var err error
	if mode >= ModeStealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fmt.Errorf("browser: create page: %w", err)
	}
	s.Page = page

	if len(p.cfg.ResourceBlocking) > 0 {
		router, err := interceptResources(page, p.cfg.ResourceBlocking)
		if err != nil {
			log.Warn("browser: resource blocking failed", "error", err)
		}
		s.router = router
	}
	return nil
}

// Close releases the page, the browser and its process, then frees the
// slot. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				s.logger.Debug("browser: stop router", "error", err)
			}
		}
		if s.Page != nil {
			s.Page.Close()
		}
		if s.browser != nil {
			// For a remote Chrome this closes only the incognito context.
			s.browser.Close()
		}
		if s.lnch != nil {
			// Kills the process and removes its user-data-dir.
			s.lnch.Cleanup()
		}
		if s.cancel != nil {
			s.cancel()
		}
		if s.release != nil {
			s.release()
		}
	})
}
