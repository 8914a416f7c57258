// CLAUDE:SUMMARY Generic ordered strategy chain with per-step timeouts, bounded retry and recoverable-failure escalation.
// Package escalate runs an ordered list of strategies. When a strategy fails
// with a recoverable error the chain moves to the next one; a fatal error
// aborts the chain; a transient error is retried in place a bounded number
// of times. The fetcher orchestrator and the LLM provider chain both run on it.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Disposition tells the chain what to do with a step failure.
type Disposition int

const (
	// Escalate moves on to the next step.
	Escalate Disposition = iota
	// Retry runs the same step again, up to the retry ceiling.
	Retry
	// Abort stops the chain without trying further steps.
	Abort
)

func (d Disposition) String() string {
	switch d {
	case Escalate:
		return "escalate"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// Step is one strategy of the chain.
type Step[T any] struct {
	Name string
	// Timeout bounds a single try. Zero means the parent context is the only bound.
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// Attempt records one try of one step.
type Attempt struct {
	Step     string
	Try      int
	Err      error
	Duration time.Duration
}

// OK reports whether the attempt succeeded.
func (a Attempt) OK() bool { return a.Err == nil }

// Result is what a chain run produced. Attempts is filled on every path.
type Result[T any] struct {
	Value    T
	Step     string
	Attempts []Attempt
}

type config struct {
	classify     func(error) Disposition
	maxRetries   int
	backoff      time.Duration
	onTransition func(step string)
	logger       *slog.Logger
	name         string
}

// Option configures a Chain.
type Option func(*config)

// WithClassifier sets the failure classifier. Default: every error escalates.
func WithClassifier(fn func(error) Disposition) Option {
	return func(c *config) { c.classify = fn }
}

// WithMaxRetries sets how many times a step may be retried. Default: 1.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the wait before a retry. Default: 250ms.
func WithBackoff(d time.Duration) Option {
	return func(c *config) { c.backoff = d }
}

// WithTransition registers a hook called each time the chain enters a step.
func WithTransition(fn func(step string)) Option {
	return func(c *config) { c.onTransition = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithName labels log lines emitted by the chain.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// Chain is an ordered list of steps. It is safe for concurrent use once built.
type Chain[T any] struct {
	steps []Step[T]
	cfg   config
}

// New builds a Chain over steps.
func New[T any](steps []Step[T], opts ...Option) *Chain[T] {
	cfg := config{
		classify:   func(error) Disposition { return Escalate },
		maxRetries: 1,
		backoff:    250 * time.Millisecond,
		logger:     slog.Default(),
		name:       "chain",
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Chain[T]{steps: steps, cfg: cfg}
}

// Len returns the number of steps.
func (c *Chain[T]) Len() int { return len(c.steps) }

// Run executes the chain. It returns the first successful step's value, or
// one of *AbortedError, *ExhaustedError, or a wrapped context error when the
// parent context ends first.
func (c *Chain[T]) Run(ctx context.Context) (Result[T], error) {
	var res Result[T]
	if len(c.steps) == 0 {
		return res, ErrNoSteps
	}
	log := c.cfg.logger

	var lastErr error
	for _, step := range c.steps {
		if c.cfg.onTransition != nil {
			c.cfg.onTransition(step.Name)
		}

		for try := 1; ; try++ {
			if err := ctx.Err(); err != nil {
				return res, interrupted(step.Name, err, lastErr)
			}

			start := time.Now()
			v, err := c.runOnce(ctx, step)
			att := Attempt{Step: step.Name, Try: try, Err: err, Duration: time.Since(start)}
			res.Attempts = append(res.Attempts, att)

			if err == nil {
				res.Value = v
				res.Step = step.Name
				log.Debug(c.cfg.name+": step succeeded",
					"step", step.Name, "try", try, "duration_ms", att.Duration.Milliseconds())
				return res, nil
			}
			lastErr = err

			// The caller gave up: nothing downstream can help.
			if ctx.Err() != nil {
				return res, interrupted(step.Name, ctx.Err(), lastErr)
			}

			disp := Escalate
			if !errors.Is(err, ErrStepTimeout) {
				disp = c.cfg.classify(err)
			}
			if disp == Retry && try > c.cfg.maxRetries {
				disp = Escalate
			}

			log.Warn(c.cfg.name+": step failed",
				"step", step.Name, "try", try, "action", disp.String(), "error", err)

			switch disp {
			case Abort:
				return res, &AbortedError{Step: step.Name, Err: err}
			case Retry:
				if c.cfg.backoff > 0 {
					t := time.NewTimer(c.cfg.backoff)
					select {
					case <-ctx.Done():
						t.Stop()
						return res, interrupted(step.Name, ctx.Err(), lastErr)
					case <-t.C:
					}
				}
				continue
			}
			break
		}
	}

	return res, &ExhaustedError{Last: lastErr, Attempts: len(res.Attempts)}
}

func (c *Chain[T]) runOnce(ctx context.Context, step Step[T]) (T, error) {
	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	v, err := step.Run(stepCtx)
	if err == nil {
		return v, nil
	}
	// Our deadline fired, not the caller's.
	if step.Timeout > 0 && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, &TimeoutError{Step: step.Name, After: step.Timeout, Err: err}
	}
	return v, err
}

func interrupted(step string, cause, last error) error {
	if last == nil {
		return fmt.Errorf("escalate: interrupted at %s: %w", step, cause)
	}
	return fmt.Errorf("escalate: interrupted at %s: %w (last failure: %w)", step, cause, last)
}
