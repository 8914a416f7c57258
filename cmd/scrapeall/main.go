// CLAUDE:SUMMARY Entry point for the scrapeall CLI: cobra commands serve, scrape, forms, chat and mcp over one Service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/scrapeall/scrapeall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "scrapeall",
	Version: version,
	Short:   "Fetch, analyze and chat with any web page",
	Long: `scrapeall fetches a URL through escalating strategies (plain HTTP, then a
rendering browser, then a stealth browser), extracts its readable text,
analyzes it with a language model and indexes it for questions.

API keys are read from the environment (GROQ_API_KEY, GOOGLE_API_KEY,
HUGGINGFACE_API_KEY, OPENAI_API_KEY); a .env file in the working directory
is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		if !cmd.Flags().Changed("log-level") {
			logLevel = env("LOG_LEVEL", logLevel)
		}
		setupLogging(logLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SCRAPEALL_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides the config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, scrapeCmd, formsCmd, chatCmd, mcpCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout carries command output and the MCP stdio stream: logs go to stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func loadConfig() (scrapeall.Config, error) {
	cfg, err := scrapeall.LoadConfigFile(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openService builds the Service for a command. Local commands are trusted
// with every project.
func openService(ctx context.Context, trusted bool) (*scrapeall.Service, scrapeall.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	opts := []scrapeall.Option{scrapeall.WithLogger(slog.Default())}
	if trusted {
		opts = append(opts, scrapeall.WithTrustAllProjects())
	}
	svc, err := scrapeall.New(ctx, cfg, opts...)
	return svc, cfg, err
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
