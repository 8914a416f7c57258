// CLAUDE:SUMMARY Fallback state machine that tries direct, rendered then automated fetchers under per-attempt and global timeouts.
// Package scrape sequences the fetcher strategies.
//
// States: NOT_STARTED → TRYING_STATIC → TRYING_RENDERED → TRYING_AUTOMATED →
// SUCCEEDED | EXHAUSTED. A recoverable failure moves to the next strategy, a
// transient one is retried once in place, a fatal one ends the run at once.
// Strategies never run concurrently.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/scrapeall/escalate"
	"github.com/hazyhaar/scrapeall/fetcher"
)

// State of the orchestrator.
type State string

const (
	StateNotStarted      State = "NOT_STARTED"
	StateTryingStatic    State = "TRYING_STATIC"
	StateTryingRendered  State = "TRYING_RENDERED"
	StateTryingAutomated State = "TRYING_AUTOMATED"
	StateSucceeded       State = "SUCCEEDED"
	StateExhausted       State = "EXHAUSTED"
)

// stateFor maps a fetcher method to the state entered while it runs.
func stateFor(method string) State {
	switch method {
	case fetcher.MethodDirect:
		return StateTryingStatic
	case fetcher.MethodRendered:
		return StateTryingRendered
	case fetcher.MethodAutomated:
		return StateTryingAutomated
	}
	return State("TRYING_" + method)
}

// Config bounds the orchestrator. Zero values get defaults.
type Config struct {
	// Per-strategy timeouts. Defaults: 15s, 30s, 45s.
	DirectTimeout    time.Duration `yaml:"direct_timeout"`
	RenderedTimeout  time.Duration `yaml:"rendered_timeout"`
	AutomatedTimeout time.Duration `yaml:"automated_timeout"`
	// TotalTimeout spans every attempt of one scrape. Default: 2m.
	TotalTimeout time.Duration `yaml:"total_timeout"`
	// MaxRetries per strategy for transient failures. Default: 1.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff before a retry. Default: 500ms.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

func (c *Config) defaults() {
	if c.DirectTimeout <= 0 {
		c.DirectTimeout = 15 * time.Second
	}
	if c.RenderedTimeout <= 0 {
		c.RenderedTimeout = 30 * time.Second
	}
	if c.AutomatedTimeout <= 0 {
		c.AutomatedTimeout = 45 * time.Second
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 2 * time.Minute
	}
	if c.MaxRetries <= 0 || c.MaxRetries > 1 {
		c.MaxRetries = 1
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

func (c *Config) timeoutFor(method string) time.Duration {
	switch method {
	case fetcher.MethodDirect:
		return c.DirectTimeout
	case fetcher.MethodRendered:
		return c.RenderedTimeout
	case fetcher.MethodAutomated:
		return c.AutomatedTimeout
	}
	return c.RenderedTimeout
}

// Orchestrator runs the fetchers in the configured order.
type Orchestrator struct {
	cfg      Config
	fetchers []fetcher.Fetcher
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator over fetchers, tried in slice order.
func New(cfg Config, fetchers []fetcher.Fetcher, opts ...Option) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{cfg: cfg, fetchers: fetchers, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outcome is the result of one Scrape. Exactly one of Page and Err is set.
type Outcome struct {
	URL      string
	State    State
	Trace    []State // every state entered, in order
	Page     *fetcher.Page
	Method   string // succeeded strategy, empty unless SUCCEEDED
	Attempts []escalate.Attempt
	// Err is the most recent failure when EXHAUSTED.
	Err error
	// Fatal is set when a fatal failure ended the run early.
	Fatal    bool
	Duration time.Duration
}

// Succeeded reports whether a strategy returned markup.
func (o *Outcome) Succeeded() bool { return o.State == StateSucceeded }

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

// Scrape runs the state machine for pageURL. It never returns a nil Outcome.
func (o *Orchestrator) Scrape(ctx context.Context, pageURL, selector string) *Outcome {
	start := time.Now()
	out := &Outcome{URL: pageURL}
	out.enter(StateNotStarted)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TotalTimeout)
	defer cancel()

	steps := make([]escalate.Step[*fetcher.Page], 0, len(o.fetchers))
	for _, f := range o.fetchers {
		f := f
		steps = append(steps, escalate.Step[*fetcher.Page]{
			Name:    f.Method(),
			Timeout: o.cfg.timeoutFor(f.Method()),
			Run: func(ctx context.Context) (*fetcher.Page, error) {
				return f.Fetch(ctx, pageURL, selector)
			},
		})
	}

	chain := escalate.New(steps,
		escalate.WithName("scrape"),
		escalate.WithLogger(o.logger),
		escalate.WithMaxRetries(o.cfg.MaxRetries),
		escalate.WithBackoff(o.cfg.RetryBackoff),
		escalate.WithClassifier(classify),
		escalate.WithTransition(func(step string) {
			out.enter(stateFor(step))
			o.logger.Debug("scrape: trying", "url", pageURL, "method", step)
		}),
	)

	res, err := chain.Run(ctx)
	out.Attempts = res.Attempts
	out.Duration = time.Since(start)

	if err == nil {
		out.enter(StateSucceeded)
		out.Page = res.Value
		out.Method = res.Step
		o.logger.Info("scrape: succeeded",
			"url", pageURL, "method", out.Method,
			"attempts", len(out.Attempts), "duration_ms", out.Duration.Milliseconds())
		return out
	}

	out.enter(StateExhausted)
	var ab *escalate.AbortedError
	var ex *escalate.ExhaustedError
	switch {
	case errors.As(err, &ab):
		out.Fatal = true
		out.Err = ab.Err
	case errors.As(err, &ex):
		out.Err = ex.Last
	case errors.Is(err, context.DeadlineExceeded):
		out.Err = fmt.Errorf("scrape timed out after %s: %w", o.cfg.TotalTimeout, lastFailure(res.Attempts, err))
	default:
		out.Err = err
	}
	if out.Err == nil {
		out.Err = errors.New("no fetch strategy configured")
	}
	o.logger.Warn("scrape: exhausted",
		"url", pageURL, "fatal", out.Fatal,
		"attempts", len(out.Attempts), "error", out.Err)
	return out
}

// classify maps fetcher failures onto chain dispositions.
func classify(err error) escalate.Disposition {
	switch {
	case fetcher.IsFatal(err):
		return escalate.Abort
	case fetcher.IsTransient(err):
		return escalate.Retry
	}
	return escalate.Escalate
}

func lastFailure(atts []escalate.Attempt, fallback error) error {
	for i := len(atts) - 1; i >= 0; i-- {
		if atts[i].Err != nil {
			return atts[i].Err
		}
	}
	return fallback
}
