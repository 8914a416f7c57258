// CLAUDE:SUMMARY chi JSON API over the Service: scope header, shield middleware, validator-checked bodies, Kind-to-status error mapping.
package scrapeall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/scrapeall/kit"
	"github.com/hazyhaar/scrapeall/shield"
)

// ScopeHeader carries the project ids an upstream gateway authorized for
// the caller, comma separated. "*" allows every project. A request without
// it may only work anonymously or on projects it creates.
//
// Anonymous results (scraped without a project) belong to no scope: any
// caller holding a result id may GET it and its export, and only a "*"
// caller may DELETE it.
const ScopeHeader = "X-Authorized-Projects"

const maxRequestBody = 1 << 20

// RouterOption configures Router.
type RouterOption func(*routerConfig)

type routerConfig struct {
	limiter *shield.RateLimiter
}

// WithScrapeLimiter rate limits POST /api/scrape.
func WithScrapeLimiter(rl *shield.RateLimiter) RouterOption {
	return func(c *routerConfig) { c.limiter = rl }
}

// Router returns the HTTP API of s.
func Router(s *Service, opts ...RouterOption) http.Handler {
	var rc routerConfig
	for _, o := range opts {
		o(&rc)
	}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(maxRequestBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(scopeFromHeader)

		sr := r.With()
		if rc.limiter != nil {
			sr = r.With(rc.limiter.Middleware)
		}
		sr.Post("/scrape", s.handleScrape)
		r.Post("/forms/detect", s.handleForms)
		r.Post("/forms/fill", s.handleFillForm)
		r.Post("/chat", s.handleChat)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/chat", s.handleChatHistory)
			r.Get("/forms", s.handleListFormSubmissions)
			r.Get("/scrapes", s.handleListScrapes)
			r.Get("/scrapes/latest", s.handleLatestScrape)
			r.Delete("/", s.handleDeleteProject)
		})
		r.Route("/scrapes/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetScrape)
			r.Get("/export", s.handleExport)
			r.Delete("/", s.handleDeleteScrape)
		})
	})
	return r
}

// scopeFromHeader installs the caller's project scope from ScopeHeader.
func scopeFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		raw := strings.TrimSpace(r.Header.Get(ScopeHeader))
		if raw == "*" {
			ctx = kit.WithUnrestrictedScope(ctx)
		} else {
			var ids []string
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
			ctx = kit.WithProjectScope(ctx, ids...)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type formsRequest struct {
	URL string `json:"url"`
}

type chatRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Message   string `json:"message" validate:"required,max=4000"`
}

func (s *Service) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Scrape(r.Context(), req)
	if err != nil {
		if res != nil {
			// Storage failed after the pipeline ran: hand back what we have.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": err.Error(), "kind": KindOf(err), "result": res,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleForms(w http.ResponseWriter, r *http.Request) {
	var req formsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	forms, err := s.DetectForms(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": req.URL, "forms": forms, "count": len(forms)})
}

func (s *Service) handleFillForm(w http.ResponseWriter, r *http.Request) {
	var req FillFormRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := s.FillForm(r.Context(), req)
	if err != nil {
		if sub != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": err.Error(), "kind": KindOf(err), "submission": sub,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Service) handleListFormSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.ListFormSubmissions(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	resp, err := s.Chat(r.Context(), req.ProjectID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.ChatHistory(r.Context(), chi.URLParam(r, "projectID"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Service) handleListScrapes(w http.ResponseWriter, r *http.Request) {
	rs, err := s.ListScrapes(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Service) handleLatestScrape(w http.ResponseWriter, r *http.Request) {
	res, err := s.LatestScrape(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteProject(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGetScrape(w http.ResponseWriter, r *http.Request) {
	res, err := s.GetScrape(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "narrative" {
		writeError(w, r, fmt.Errorf("%w: unknown export format %q", ErrInvalidRequest, format))
		return
	}
	res, err := s.GetScrape(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if format == "narrative" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="scrape-%s.md"`, res.ID))
		w.Write([]byte(ExportNarrative(res)))
		return
	}
	data, err := ExportJSON(res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="scrape-%s.json"`, res.ID))
	w.Write(data)
}

func (s *Service) handleDeleteScrape(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteScrape(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: body: %v", ErrInvalidRequest, err)
	}
	return nil
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch KindOf(err) {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindFetchFatal, KindFetchRecoverable:
		return http.StatusBadGateway
	case KindRetrievalEmpty:
		return http.StatusConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= 500 {
		shield.GetLogger(r.Context()).Error("scrapeall: request failed", "error", err)
	}
	writeJSON(w, code, map[string]any{"error": err.Error(), "kind": KindOf(err)})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
