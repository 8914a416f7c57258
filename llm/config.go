package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Provider kinds.
const (
	KindGroq         = "groq"
	KindGemini       = "gemini"
	KindHuggingFace  = "huggingface"
	KindOpenAI       = "openai"
	KindOpenAICompat = "openai_compat"
)

// ProviderConfig declares one provider of the chain.
type ProviderConfig struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`     // default: Kind
	Model   string `yaml:"model"`    // default per kind
	BaseURL string `yaml:"base_url"` // default per kind; required for openai_compat
	// APIKeyEnv names the environment variable holding the key.
	// Default per kind: GROQ_API_KEY, GOOGLE_API_KEY, HUGGINGFACE_API_KEY, OPENAI_API_KEY.
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKey overrides the environment. Never read from YAML.
	APIKey string `yaml:"-"`
}

type kindDefaults struct {
	baseURL, model, keyEnv string
	keyRequired            bool
}

var defaultsByKind = map[string]kindDefaults{
	KindGroq:         {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile", "GROQ_API_KEY", true},
	KindGemini:       {"", "gemini-2.5-flash", "GOOGLE_API_KEY", true},
	KindHuggingFace:  {"https://router.huggingface.co/v1", "meta-llama/Meta-Llama-3-8B-Instruct", "HUGGINGFACE_API_KEY", true},
	KindOpenAI:       {"https://api.openai.com/v1", "gpt-4", "OPENAI_API_KEY", true},
	KindOpenAICompat: {"", "", "", false},
}

// DefaultProviders is the order used when none is configured.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Kind: KindGroq},
		{Kind: KindGemini},
		{Kind: KindHuggingFace},
		{Kind: KindOpenAI},
	}
}

func (c *ProviderConfig) resolve() (kindDefaults, error) {
	d, ok := defaultsByKind[c.Kind]
	if !ok {
		return d, fmt.Errorf("llm: unknown provider kind %q", c.Kind)
	}
	if c.Name == "" {
		c.Name = c.Kind
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.BaseURL == "" {
		c.BaseURL = d.baseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = d.keyEnv
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.Kind == KindOpenAICompat && (c.BaseURL == "" || c.Model == "") {
		return d, fmt.Errorf("llm: provider %q: base_url and model are required", c.Name)
	}
	return d, nil
}

// Build creates a Chain from configs, in order. Providers whose key is
// missing are skipped with a log line, so a deployment only pays for the
// providers it has keys for.
func Build(ctx context.Context, cfgs []ProviderConfig, timeout time.Duration, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &http.Client{Timeout: timeout}

	var providers []Provider
	for _, cfg := range cfgs {
		d, err := cfg.resolve()
		if err != nil {
			return nil, err
		}
		if d.keyRequired && cfg.APIKey == "" {
			logger.Info("llm: provider skipped, no API key", "provider", cfg.Name, "env", cfg.APIKeyEnv)
			continue
		}

		switch cfg.Kind {
		case KindGemini:
			g, err := NewGemini(ctx, cfg.Name, cfg.APIKey, cfg.Model, hc)
			if err != nil {
				return nil, err
			}
			providers = append(providers, g)
		default:
			providers = append(providers, NewOpenAICompatible(cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.Model, hc))
		}
		logger.Info("llm: provider enabled", "provider", cfg.Name, "model", cfg.Model)
	}

	return NewChain(providers, WithTimeout(timeout), WithLogger(logger)), nil
}
