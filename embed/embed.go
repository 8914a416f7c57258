// CLAUDE:SUMMARY Embedder interface and constructor: OpenAI-format HTTP servers, Gemini, or the local hashing embedder, plus the fingerprint stored next to every vector.
// Package embed converts text to float32 vectors.
//
// Three backends share the Embedder interface: any OpenAI-compatible
// /v1/embeddings server (OpenAI, vLLM, Ollama, ONNX Runtime Server), the
// Gemini API, and a deterministic local hashing embedder that needs no
// network and is the default.
//
// Usage:
//
//	emb, err := embed.New(ctx, embed.Config{
//	    Provider: embed.ProviderOpenAI,
//	    Endpoint: "http://localhost:8003",
//	    Model:    "multilingual-e5-large",
//	})
//	vec, err := emb.Embed(ctx, "What is photosynthesis?")
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Embedder converts text to vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension.
	// Returns 0 if not yet detected (first call not made).
	Dimension() int

	// Model returns the model name.
	Model() string
}

// Backends.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config configures the embedder.
type Config struct {
	// Provider selects the backend. Default: local.
	Provider string `yaml:"provider"`

	// Endpoint is the base URL of an OpenAI-format server (e.g. "http://localhost:8003").
	// Required for the openai provider.
	Endpoint string `yaml:"endpoint"`

	// Model is the model name sent in the request.
	Model string `yaml:"model"`

	// Dimension is the expected vector dimension. 0 means auto-detect on
	// first call for remote backends and 256 for the local one.
	Dimension int `yaml:"dimension"`

	// BatchSize is the maximum number of texts per request. Default: 32.
	BatchSize int `yaml:"batch_size"`

	// MaxBatchChars bounds the runes of one request, so a long page's
	// chunks are spread over several. Default: 32000 (32 default chunks).
	MaxBatchChars int `yaml:"max_batch_chars"`

	// Retries is how often a request failing with 429, 5xx or a network
	// error is retried. Default: 2.
	Retries int `yaml:"retries"`

	// RetryBackoff is the wait before a retry. Default: 500ms.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Timeout per request. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// APIKeyEnv names the environment variable holding the key.
	// Default: OPENAI_API_KEY for openai, GOOGLE_API_KEY for gemini.
	APIKeyEnv string `yaml:"api_key_env"`

	// Logger for debug/error messages. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.MaxBatchChars <= 0 {
		c.MaxBatchChars = 32000
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	switch c.Provider {
	case ProviderLocal:
		if c.Dimension <= 0 {
			c.Dimension = 256
		}
		if c.Model == "" {
			c.Model = LocalModel
		}
	case ProviderOpenAI:
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = "OPENAI_API_KEY"
		}
	case ProviderGemini:
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if c.Model == "" {
			c.Model = "text-embedding-004"
		}
	}
}

// New creates an Embedder from config.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	cfg.defaults()
	switch cfg.Provider {
	case ProviderLocal:
		return NewLocal(cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.Endpoint == "" || cfg.Model == "" {
			return nil, fmt.Errorf("embed: openai provider needs endpoint and model")
		}
		return newRemote(cfg, os.Getenv(cfg.APIKeyEnv)), nil
	case ProviderGemini:
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("embed: gemini provider: %s is not set", cfg.APIKeyEnv)
		}
		return newGemini(ctx, cfg, key)
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}

// Fingerprint identifies the vector space of a model: two vectors are only
// comparable when their fingerprints are equal.
func Fingerprint(model string, dim int) string {
	return fmt.Sprintf("%s/%d", model, dim)
}

// Space returns the fingerprint of e, or "" while a remote embedder has not
// answered yet and so does not know its dimension.
func Space(e Embedder) string {
	d := e.Dimension()
	if d <= 0 {
		return ""
	}
	return Fingerprint(e.Model(), d)
}
