// CLAUDE:SUMMARY Turns clean page text into a summary, key points, entities and topics through the LLM chain, with a strict parse, one corrective re-prompt and a degraded fallback.
// Package analyze derives structured intelligence from extracted text.
//
// The analyzer asks the provider chain for a JSON document, parses it
// strictly and re-prompts the same provider once when the answer is
// malformed. A provider error falls through to the next provider. When no
// provider yields a valid document the result degrades to the leading part
// of the input text and is marked Degraded.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/scrapeall/escalate"
	"github.com/hazyhaar/scrapeall/llm"
)

// TruncationMarker is appended to input cut at MaxInputChars.
const TruncationMarker = "\n\n[Content truncated...]"

// Entity categories requested from the model.
const (
	EntityPeople        = "people"
	EntityOrganizations = "organizations"
	EntityLocations     = "locations"
	EntityDates         = "dates"
)

// Config tunes the analyzer.
type Config struct {
	MaxInputChars        int     `yaml:"max_input_chars"`        // default: 15000
	Temperature          float64 `yaml:"temperature"`            // default: 0.3
	MaxTokens            int     `yaml:"max_tokens"`             // default: 2000
	DegradedSummaryChars int     `yaml:"degraded_summary_chars"` // default: 500
}

func (c *Config) defaults() {
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 15000
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.DegradedSummaryChars <= 0 {
		c.DegradedSummaryChars = 500
	}
}

// Document is the analyzer input.
type Document struct {
	URL   string
	Title string
	Text  string
}

// Result is the structured intelligence of one document.
type Result struct {
	Summary   string              `json:"summary"`
	KeyPoints []string            `json:"key_points"`
	Entities  map[string][]string `json:"entities,omitempty"`
	Topics    []string            `json:"topics,omitempty"`
	Provider  string              `json:"provider,omitempty"`
	Degraded  bool                `json:"degraded,omitempty"`
	// Reason explains a degraded result.
	Reason string `json:"-"`
}

// Analyzer runs the extraction prompt over a provider chain.
type Analyzer struct {
	cfg    Config
	chain  *llm.Chain
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer over chain.
func New(cfg Config, chain *llm.Chain, opts ...Option) *Analyzer {
	cfg.defaults()
	a := &Analyzer{cfg: cfg, chain: chain, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze returns the structured intelligence of doc. It only fails when
// ctx is done; every provider failure ends in a degraded Result.
func (a *Analyzer) Analyze(ctx context.Context, doc Document) (*Result, error) {
	text := Truncate(doc.Text, a.cfg.MaxInputChars)
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt(doc.URL, doc.Title, text)},
	}
	opts := llm.Options{Temperature: a.cfg.Temperature, MaxTokens: a.cfg.MaxTokens}

	res, provider, err := llm.Try(ctx, a.chain, func(ctx context.Context, p llm.Provider) (*Result, error) {
		return a.ask(ctx, p, msgs, opts)
	}, escalate.WithClassifier(classify))
	if err == nil {
		res.Provider = provider
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("analyze: %w", ctx.Err())
	}

	a.logger.Warn("analyze: degraded", "url", doc.URL, "error", err)
	return a.degrade(doc.Text, err), nil
}

// ask runs one provider: a first completion, then one corrective re-prompt
// when the answer does not parse.
func (a *Analyzer) ask(ctx context.Context, p llm.Provider, msgs []llm.Message, opts llm.Options) (*Result, error) {
	out, err := p.Complete(ctx, msgs, opts)
	if err != nil {
		return nil, err
	}
	res, perr := Parse(out)
	if perr == nil {
		return res, nil
	}

	a.logger.Debug("analyze: malformed answer, re-prompting", "provider", p.Name(), "error", perr)
	retry := append(append([]llm.Message(nil), msgs...),
		llm.Message{Role: llm.RoleAssistant, Content: out},
		llm.Message{Role: llm.RoleUser, Content: correctivePrompt(perr)},
	)
	out, err = p.Complete(ctx, retry, opts)
	if err != nil {
		return nil, err
	}
	res, perr = Parse(out)
	if perr != nil {
		return nil, &MalformedError{Provider: p.Name(), Err: perr}
	}
	return res, nil
}

// classify stops the chain on a second malformed answer: the next provider
// is not consulted and the result degrades.
func classify(err error) escalate.Disposition {
	if errors.Is(err, ErrMalformed) {
		return escalate.Abort
	}
	return escalate.Escalate
}

func (a *Analyzer) degrade(text string, cause error) *Result {
	summary := strings.TrimSpace(text)
	if utf8.RuneCountInString(summary) > a.cfg.DegradedSummaryChars {
		summary = string([]rune(summary)[:a.cfg.DegradedSummaryChars]) + "..."
	}
	return &Result{
		Summary:   summary,
		KeyPoints: []string{},
		Degraded:  true,
		Reason:    cause.Error(),
	}
}

// Truncate cuts text at max runes and appends TruncationMarker.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + TruncationMarker
}
