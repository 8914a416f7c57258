package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/scrapeall/scrapeall"
	"github.com/hazyhaar/scrapeall/shield"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the JSON API. Project access is read from the X-Authorized-Projects
header set by the gateway in front of this service.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides the config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, cfg, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	addr := cfg.Listen
	if listenAddr != "" {
		addr = listenAddr
	}

	var opts []scrapeall.RouterOption
	if cfg.ScrapesPerMinute > 0 {
		rl := shield.NewRateLimiter(shield.Rule{Max: cfg.ScrapesPerMinute, Window: time.Minute})
		rl.StartGC(ctx.Done(), 5*time.Minute)
		opts = append(opts, scrapeall.WithScrapeLimiter(rl))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           scrapeall.Router(svc, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		// A scrape may walk every strategy before it answers.
		WriteTimeout: cfg.Scrape.TotalTimeout + cfg.ProviderTimeout*2 + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
