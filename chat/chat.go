// CLAUDE:SUMMARY Grounded project chat: retrieves top-K chunks of one project, prompts the LLM chain with them and recent history, logs question and answer; fixed answer when nothing is indexed.
// Package chat answers questions about a project's scraped content.
//
// Answers are grounded in the project's retrieval index. A project with no
// indexed content gets NoContentAnswer and no model is called.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/scrapeall/index"
	"github.com/hazyhaar/scrapeall/llm"
	"github.com/hazyhaar/scrapeall/store"
)

// NoContentAnswer is returned for projects with nothing indexed.
const NoContentAnswer = "No content is available for this project yet. Scrape a page into it first, then ask again."

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("chat: empty question")

// Retriever is the project-scoped search the engine grounds answers in.
type Retriever interface {
	Count(ctx context.Context, projectID string) (int, error)
	Search(ctx context.Context, projectID, question string, k int) ([]index.Hit, error)
}

// History is the per-project chat log.
type History interface {
	AppendChatMessage(ctx context.Context, projectID, role, content string) (*store.ChatMessage, error)
	ListChatHistory(ctx context.Context, projectID string, limit int) ([]*store.ChatMessage, error)
}

// Completer produces model answers.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (llm.Completion, error)
}

// Config tunes the engine.
type Config struct {
	TopK         int     `yaml:"top_k"`         // default: 3
	HistoryTurns int     `yaml:"history_turns"` // default: 5
	Temperature  float64 `yaml:"temperature"`   // default: 0.5
	MaxTokens    int     `yaml:"max_tokens"`    // default: 1000
}

func (c *Config) defaults() {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 5
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.5
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
}

// Answer is the engine's reply.
type Answer struct {
	Response string      `json:"response"`
	Grounded bool        `json:"grounded"`
	Provider string      `json:"provider,omitempty"`
	Sources  []index.Hit `json:"sources,omitempty"`
}

// Engine answers project questions.
type Engine struct {
	cfg     Config
	index   Retriever
	history History
	llm     Completer
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(cfg Config, r Retriever, h History, c Completer, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{cfg: cfg, index: r, history: h, llm: c, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ask answers question from projectID's indexed content and appends the
// question and the answer to the project's chat log. A model failure
// returns an error and leaves the log untouched.
func (e *Engine) Ask(ctx context.Context, projectID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	n, err := e.index.Count(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	if n == 0 {
		ans := &Answer{Response: NoContentAnswer}
		if err := e.record(ctx, projectID, question, ans.Response); err != nil {
			return nil, err
		}
		return ans, nil
	}

	// History is read before the question is logged so it holds prior turns only.
	past, err := e.history.ListChatHistory(ctx, projectID, e.cfg.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	hits, err := e.index.Search(ctx, projectID, question, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt(hits, past, question)},
	}
	out, err := e.llm.Complete(ctx, msgs, llm.Options{Temperature: e.cfg.Temperature, MaxTokens: e.cfg.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	ans := &Answer{Response: strings.TrimSpace(out.Text), Grounded: true, Provider: out.Provider, Sources: hits}
	if err := e.record(ctx, projectID, question, ans.Response); err != nil {
		return nil, err
	}
	e.logger.Debug("chat: answered", "project", projectID, "provider", out.Provider, "sources", len(hits))
	return ans, nil
}

func (e *Engine) record(ctx context.Context, projectID, question, answer string) error {
	if _, err := e.history.AppendChatMessage(ctx, projectID, store.RoleUser, question); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if _, err := e.history.AppendChatMessage(ctx, projectID, store.RoleAssistant, answer); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
