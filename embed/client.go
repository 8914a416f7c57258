package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hazyhaar/scrapeall/escalate"
)

// ErrDimensionChanged is returned when a server starts answering with
// vectors of another size than the ones it gave before.
var ErrDimensionChanged = errors.New("embed: server changed vector dimension")

// StatusError is a non-200 answer of an embeddings server.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embed: HTTP %d: %s", e.Status, e.Body)
}

// Transient reports whether the same request may succeed later.
func (e *StatusError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// remote talks to any server speaking the OpenAI embeddings wire format
// (OpenAI, vLLM, Ollama, TEI, llama.cpp). Each batch is one POST, retried
// on rate limits, 5xx and network errors; other failures abort.
type remote struct {
	url      string
	model    string
	apiKey   string
	maxItems int
	maxChars int
	hc       *http.Client
	opts     []escalate.Option
	logger   *slog.Logger

	mu  sync.Mutex
	dim int
}

func newRemote(cfg Config, apiKey string) *remote {
	base := strings.TrimSuffix(strings.TrimRight(cfg.Endpoint, "/"), "/v1")
	r := &remote{
		url:      base + "/v1/embeddings",
		model:    cfg.Model,
		apiKey:   apiKey,
		maxItems: cfg.BatchSize,
		maxChars: cfg.MaxBatchChars,
		hc:       &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
		dim:      cfg.Dimension,
	}
	r.opts = []escalate.Option{
		escalate.WithName("embed"),
		escalate.WithLogger(cfg.Logger),
		escalate.WithMaxRetries(cfg.Retries),
		escalate.WithBackoff(cfg.RetryBackoff),
		escalate.WithClassifier(classifyEmbedError),
	}
	return r
}

func classifyEmbedError(err error) escalate.Disposition {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Transient() {
			return escalate.Retry
		}
		return escalate.Abort
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return escalate.Retry
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return escalate.Retry
	}
	return escalate.Abort
}

func (r *remote) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch packs texts into requests bounded by item count and total
// characters, so one scrape's chunks usually travel together while a very
// long page is split.
func (r *remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, b := range packBatches(texts, r.maxItems, r.maxChars) {
		vecs, err := r.post(ctx, texts[b[0]:b[1]])
		if err != nil {
			return nil, fmt.Errorf("embed: %s [%d:%d]: %w", r.model, b[0], b[1], err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// packBatches returns [start, end) ranges over texts. A single text longer
// than maxChars still gets a batch of its own.
func packBatches(texts []string, maxItems, maxChars int) [][2]int {
	var (
		out   [][2]int
		start int
		chars int
	)
	for i, t := range texts {
		n := utf8.RuneCountInString(t)
		full := i-start >= maxItems || (maxChars > 0 && chars+n > maxChars)
		if i > start && full {
			out = append(out, [2]int{start, i})
			start, chars = i, 0
		}
		chars += n
	}
	return append(out, [2]int{start, len(texts)})
}

func (r *remote) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"model": r.model, "input": texts})
	if err != nil {
		return nil, err
	}
	chain := escalate.New([]escalate.Step[[][]float32]{{
		Name: r.model,
		Run: func(ctx context.Context) ([][]float32, error) {
			return r.call(ctx, body, len(texts))
		},
	}}, r.opts...)
	res, err := chain.Run(ctx)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (r *remote) call(ctx context.Context, body []byte, n int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var payload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	vecs := make([][]float32, n)
	for _, d := range payload.Data {
		if d.Index >= 0 && d.Index < n {
			vecs[d.Index] = d.Embedding
		}
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("no vector for input %d of %d", i, n)
		}
		if err := r.checkDim(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// checkDim learns the dimension from the first answer and refuses any
// later vector of another size: mixing them would corrupt the index.
func (r *remote) checkDim(d int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dim == 0 {
		r.dim = d
		r.logger.Info("embed: vector space detected", "fingerprint", Fingerprint(r.model, d))
		return nil
	}
	if d != r.dim {
		return fmt.Errorf("%w: %s, got %d", ErrDimensionChanged, Fingerprint(r.model, r.dim), d)
	}
	return nil
}

func (r *remote) Dimension() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dim
}

func (r *remote) Model() string { return r.model }
