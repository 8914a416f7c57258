// CLAUDE:SUMMARY Service facade wiring fetchers, orchestrator, extractor, analyzer, index, chat engine and store behind the public operations.
// Package scrapeall is the content acquisition and intelligence service:
// fetch any URL through escalating strategies, reduce it to clean text,
// analyze it with a language model and answer questions about it.
//
// Every project-bound operation is authorized against the project scope
// carried by the context (see kit.WithProjectScope).
package scrapeall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/hazyhaar/scrapeall/analyze"
	"github.com/hazyhaar/scrapeall/chat"
	"github.com/hazyhaar/scrapeall/embed"
	"github.com/hazyhaar/scrapeall/extract"
	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/index"
	"github.com/hazyhaar/scrapeall/kit"
	"github.com/hazyhaar/scrapeall/llm"
	"github.com/hazyhaar/scrapeall/scrape"
	"github.com/hazyhaar/scrapeall/store"
)

// Service exposes the public operations.
type Service struct {
	cfg       Config
	store     *store.Store
	orch      *scrape.Orchestrator
	extractor *extract.Extractor
	analyzer  *analyze.Analyzer
	index     *index.Index
	chat      *chat.Engine
	validate  *validator.Validate
	logger    *slog.Logger

	trustAll bool
	closers  []func() error

	// Injected collaborators; nil means build from cfg.
	fetchers []fetcher.Fetcher
	filler   fetcher.FormFiller
	chain    *llm.Chain
	embedder embed.Embedder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStore uses an already-opened store instead of opening cfg.DBPath.
// The caller keeps ownership.
func WithStore(st *store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithFetchers replaces the configured strategies.
func WithFetchers(fs ...fetcher.Fetcher) Option {
	return func(s *Service) { s.fetchers = fs }
}

// WithFormFiller replaces the browser that fills forms.
func WithFormFiller(f fetcher.FormFiller) Option {
	return func(s *Service) { s.filler = f }
}

// WithLLMChain replaces the configured provider chain.
func WithLLMChain(c *llm.Chain) Option {
	return func(s *Service) { s.chain = c }
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e embed.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithTrustAllProjects treats a context without any project scope as
// unrestricted. Meant for the local CLI; the HTTP layer always installs a
// scope.
func WithTrustAllProjects() Option {
	return func(s *Service) { s.trustAll = true }
}

// New builds a Service from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, logger: slog.Default(), validate: validator.New(validator.WithRequiredStructEnabled())}
	for _, o := range opts {
		o(s)
	}

	if s.store == nil {
		st, err := store.Open(cfg.DBPath, store.WithMkdirAll())
		if err != nil {
			return nil, err
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	}

	if s.fetchers == nil {
		s.fetchers = s.buildFetchers()
	}
	s.orch = scrape.New(cfg.Scrape, s.fetchers, scrape.WithLogger(s.logger))
	s.extractor = extract.New()

	if s.chain == nil {
		chain, err := llm.Build(ctx, cfg.Providers, cfg.ProviderTimeout, s.logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		if chain.Len() == 0 {
			s.logger.Warn("scrapeall: no LLM provider has a key; every analysis will be degraded")
		}
		s.chain = chain
	}
	s.analyzer = analyze.New(cfg.Analyze, s.chain, analyze.WithLogger(s.logger))

	if s.embedder == nil {
		cfg.Embed.Logger = s.logger
		e, err := embed.New(ctx, cfg.Embed)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.embedder = e
	}
	s.index = index.New(s.store, s.embedder, index.WithChunking(cfg.Chunk), index.WithLogger(s.logger))
	s.chat = chat.New(cfg.Chat, s.index, s.store, s.chain, chat.WithLogger(s.logger))

	s.logger.Info("scrapeall: ready",
		"fetchers", methods(s.fetchers), "providers", s.chain.Names(),
		"embedder", embed.Space(s.embedder))
	return s, nil
}

func (s *Service) buildFetchers() []fetcher.Fetcher {
	var (
		out      []fetcher.Fetcher
		browsers *fetcher.Browsers
	)
	for _, m := range s.cfg.Fetchers {
		switch m {
		case fetcher.MethodDirect:
			d := fetcher.NewDirect(s.cfg.Scrape.DirectTimeout,
				fetcher.WithPrivateNetworkBlocked(s.cfg.BlockPrivateNetworks),
				fetcher.WithDirectLogger(s.logger))
			s.closers = append(s.closers, func() error { d.CloseIdleConnections(); return nil })
			out = append(out, d)
		case fetcher.MethodRendered, fetcher.MethodAutomated:
			if browsers == nil {
				bc := s.cfg.Browser
				bc.Logger = s.logger
				browsers = fetcher.NewBrowsers(bc)
				s.closers = append(s.closers, browsers.Close)
			}
			if m == fetcher.MethodRendered {
				out = append(out, browsers.Rendered())
			} else {
				out = append(out, browsers.Automated())
			}
		}
	}
	if s.filler == nil {
		if browsers == nil {
			bc := s.cfg.Browser
			bc.Logger = s.logger
			browsers = fetcher.NewBrowsers(bc)
			s.closers = append(s.closers, browsers.Close)
		}
		s.filler = browsers.Automated()
	}
	return out
}

// Close releases what New opened.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// scope returns the caller's scope. Without one, only a trusted service
// proceeds, as unrestricted.
func (s *Service) scope(ctx context.Context) (*kit.Scope, error) {
	if sc := kit.GetScope(ctx); sc != nil {
		return sc, nil
	}
	if s.trustAll {
		return kit.GetScope(kit.WithUnrestrictedScope(ctx)), nil
	}
	return nil, ErrForbidden
}

// authorize checks that projectID is in scope and exists.
func (s *Service) authorize(ctx context.Context, projectID string) (*store.Project, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidRequest)
	}
	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if !sc.Allows(projectID) {
		return nil, ErrForbidden
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: project %s: %w", projectID, err)
	}
	return p, nil
}

// log returns the service logger annotated with the request's trace id and
// client address when the transport recorded them.
func (s *Service) log(ctx context.Context) *slog.Logger {
	l := s.logger
	if id := kit.GetTraceID(ctx); id != "" {
		l = l.With("trace_id", id)
	}
	if addr := kit.GetRemoteAddr(ctx); addr != "" {
		l = l.With("remote_addr", addr)
	}
	return l
}

func methods(fs []fetcher.Fetcher) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Method()
	}
	return out
}
