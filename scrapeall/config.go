// CLAUDE:SUMMARY Service configuration: YAML file with defaults for storage, fetch strategies, browser, LLM providers, analyzer, embeddings, chunking and chat.
package scrapeall

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/scrapeall/analyze"
	"github.com/hazyhaar/scrapeall/chat"
	"github.com/hazyhaar/scrapeall/chunk"
	"github.com/hazyhaar/scrapeall/embed"
	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/llm"
	"github.com/hazyhaar/scrapeall/scrape"
)

// Config is the whole service configuration. API keys never live here:
// providers read them from the environment.
type Config struct {
	// DBPath is the SQLite database file. Default: "data/scrapeall.db".
	DBPath string `yaml:"db_path"`
	// Listen is the HTTP address of "serve". Default: ":8085".
	Listen string `yaml:"listen"`

	// Fetchers is the ordered strategy list, a subset of direct, rendered,
	// automated. Default: all three in that order.
	Fetchers []string `yaml:"fetchers"`
	// BlockPrivateNetworks refuses direct fetches of loopback and private
	// addresses, redirects included.
	BlockPrivateNetworks bool `yaml:"block_private_networks"`

	Scrape  scrape.Config         `yaml:"scrape"`
	Browser fetcher.BrowserConfig `yaml:"browser"`

	// Providers is the ordered LLM chain. Default: groq, gemini,
	// huggingface, openai; each is enabled only when its key is set.
	Providers []llm.ProviderConfig `yaml:"providers"`
	// ProviderTimeout bounds one provider call. Default: 60s.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	Analyze analyze.Config `yaml:"analyze"`
	Embed   embed.Config   `yaml:"embed"`
	Chunk   chunk.Options  `yaml:"chunk"`
	Chat    chat.Config    `yaml:"chat"`

	// ScrapesPerMinute limits POST /api/scrape per client address. 0 disables.
	ScrapesPerMinute int `yaml:"scrapes_per_minute"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/scrapeall.db"
	}
	if c.Listen == "" {
		c.Listen = ":8085"
	}
	if len(c.Fetchers) == 0 {
		c.Fetchers = []string{fetcher.MethodDirect, fetcher.MethodRendered, fetcher.MethodAutomated}
	}
	if len(c.Providers) == 0 {
		c.Providers = llm.DefaultProviders()
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 60 * time.Second
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Fetchers))
	for _, m := range c.Fetchers {
		switch m {
		case fetcher.MethodDirect, fetcher.MethodRendered, fetcher.MethodAutomated:
		default:
			return fmt.Errorf("scrapeall: config: unknown fetcher %q", m)
		}
		if seen[m] {
			return fmt.Errorf("scrapeall: config: fetcher %q listed twice", m)
		}
		seen[m] = true
	}
	return nil
}

// LoadConfigFile reads a YAML config. An empty path yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("scrapeall: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("scrapeall: parse config %s: %w", path, err)
		}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
