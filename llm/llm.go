// CLAUDE:SUMMARY Provider-agnostic chat completion: message/option types, the Provider interface and the ordered fallback chain.
// Package llm talks to hosted language models. Every backend implements
// Provider; a Chain tries providers in configured order and falls through
// to the next one on any provider error.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/scrapeall/escalate"
)

// Roles of a Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Options tune one completion.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider is one hosted model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
}

// ErrNoProviders is returned by an empty Chain.
var ErrNoProviders = errors.New("llm: no provider configured")

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Completion is a chain answer and the provider that produced it.
type Completion struct {
	Text     string
	Provider string
}

// Chain is an ordered list of providers.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTimeout bounds each provider call. Default: 60s.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a Chain trying providers in slice order.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{providers: providers, timeout: 60 * time.Second, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Len returns the number of providers.
func (c *Chain) Len() int { return len(c.providers) }

// Names lists provider names in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.providers))
	for i, p := range c.providers {
		out[i] = p.Name()
	}
	return out
}

// Complete asks each provider in turn until one answers.
func (c *Chain) Complete(ctx context.Context, msgs []Message, opts Options) (Completion, error) {
	text, name, err := Try(ctx, c, func(ctx context.Context, p Provider) (string, error) {
		out, err := p.Complete(ctx, msgs, opts)
		if err == nil && out == "" {
			return "", ErrEmptyResponse
		}
		return out, err
	})
	return Completion{Text: text, Provider: name}, err
}

// Try runs fn against each provider in order until one succeeds, under the
// chain's per-call timeout. Errors escalate to the next provider unless a
// classifier passed in opts decides otherwise. It returns the value and the
// name of the provider that produced it.
func Try[T any](ctx context.Context, c *Chain, fn func(ctx context.Context, p Provider) (T, error), opts ...escalate.Option) (T, string, error) {
	var zero T
	if len(c.providers) == 0 {
		return zero, "", ErrNoProviders
	}

	steps := make([]escalate.Step[T], len(c.providers))
	for i, p := range c.providers {
		p := p
		steps[i] = escalate.Step[T]{
			Name:    p.Name(),
			Timeout: c.timeout,
			Run:     func(ctx context.Context) (T, error) { return fn(ctx, p) },
		}
	}

	base := []escalate.Option{
		escalate.WithName("llm"),
		escalate.WithLogger(c.logger),
		escalate.WithMaxRetries(0),
	}
	res, err := escalate.New(steps, append(base, opts...)...).Run(ctx)
	if err != nil {
		return zero, "", err
	}
	return res.Value, res.Step, nil
}

type funcProvider struct {
	name string
	fn   func(ctx context.Context, msgs []Message, opts Options) (string, error)
}

func (f funcProvider) Name() string { return f.name }

func (f funcProvider) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	return f.fn(ctx, msgs, opts)
}

// ProviderFunc adapts a function to a Provider.
func ProviderFunc(name string, fn func(ctx context.Context, msgs []Message, opts Options) (string, error)) Provider {
	return funcProvider{name: name, fn: fn}
}
