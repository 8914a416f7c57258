package scrapeall

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/scrapeall/chat"
	"github.com/hazyhaar/scrapeall/extract"
	"github.com/hazyhaar/scrapeall/index"
	"github.com/hazyhaar/scrapeall/store"
)

// ChatResponse is the answer to one chat message.
type ChatResponse struct {
	Response string      `json:"response"`
	Grounded bool        `json:"grounded"`
	Provider string      `json:"provider,omitempty"`
	Sources  []index.Hit `json:"sources,omitempty"`
	// Kind is retrieval_empty when the project has no indexed content.
	Kind Kind `json:"kind,omitempty"`
}

// DetectForms fetches pageURL through the strategy chain and lists its forms.
func (s *Service) DetectForms(ctx context.Context, pageURL string) ([]extract.Form, error) {
	pageURL = strings.TrimSpace(pageURL)
	if err := s.validate.VarCtx(ctx, pageURL, "required,max=2048"); err != nil {
		return nil, fmt.Errorf("%w: url: %v", ErrInvalidRequest, err)
	}
	if _, err := s.scope(ctx); err != nil {
		return nil, err
	}

	out := s.orch.Scrape(ctx, pageURL, "")
	if !out.Succeeded() {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scrapeall: forms %s: %w", pageURL, ctx.Err())
		}
		return nil, &FetchError{URL: pageURL, Fatal: out.Fatal, Message: out.Message(), Err: out.Err}
	}
	forms, err := extract.DetectForms(out.Page.Markup, out.Page.URL)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: forms %s: %w", pageURL, err)
	}
	s.log(ctx).Debug("scrapeall: forms detected", "url", pageURL, "method", out.Method, "count", len(forms))
	return forms, nil
}

// Chat answers message from projectID's indexed content.
func (s *Service) Chat(ctx context.Context, projectID, message string) (*ChatResponse, error) {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return nil, err
	}
	ans, err := s.chat.Ask(ctx, projectID, message)
	if errors.Is(err, chat.ErrEmptyQuestion) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, fmt.Errorf("scrapeall: chat %s: %w", projectID, err)
	}
	resp := &ChatResponse{Response: ans.Response, Grounded: ans.Grounded, Provider: ans.Provider, Sources: ans.Sources}
	if !ans.Grounded {
		resp.Kind = KindRetrievalEmpty
	}
	return resp, nil
}

// ChatHistory returns the last limit messages of projectID's chat log,
// oldest first. limit <= 0 returns all of them.
func (s *Service) ChatHistory(ctx context.Context, projectID string, limit int) ([]*store.ChatMessage, error) {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListChatHistory(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: chat history %s: %w", projectID, err)
	}
	return msgs, nil
}

// LatestScrape returns the newest result of projectID, or nil when the
// project has none.
func (s *Service) LatestScrape(ctx context.Context, projectID string) (*ScrapeResult, error) {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return nil, err
	}
	r, err := s.store.LatestScrape(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: latest scrape %s: %w", projectID, err)
	}
	return r, nil
}

// ListScrapes returns projectID's results, newest first.
func (s *Service) ListScrapes(ctx context.Context, projectID string) ([]*ScrapeResult, error) {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return nil, err
	}
	rs, err := s.store.ListScrapes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: list scrapes %s: %w", projectID, err)
	}
	return rs, nil
}

// GetScrape returns one result by id.
func (s *Service) GetScrape(ctx context.Context, id string) (*ScrapeResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: scrape id is required", ErrInvalidRequest)
	}
	if _, err := s.scope(ctx); err != nil {
		return nil, err
	}
	r, err := s.store.GetScrapeResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: scrape %s: %w", id, err)
	}
	if err := s.scopeAllows(ctx, r.ProjectID); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteScrape removes one result with its index chunks. A result without
// a project can be read by anyone holding its id but deleted only by an
// unrestricted caller.
func (s *Service) DeleteScrape(ctx context.Context, id string) error {
	r, err := s.GetScrape(ctx, id)
	if err != nil {
		return err
	}
	if r.ProjectID == "" {
		if sc, _ := s.scope(ctx); !sc.Unrestricted() {
			return ErrForbidden
		}
	}
	if err := s.store.DeleteScrapeResult(ctx, id); err != nil {
		return fmt.Errorf("scrapeall: delete scrape %s: %w", id, err)
	}
	s.log(ctx).Info("scrapeall: scrape deleted", "id", id)
	return nil
}

// DeleteProject removes a project with its results, chat log and chunks.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("scrapeall: delete project %s: %w", projectID, err)
	}
	s.log(ctx).Info("scrapeall: project deleted", "id", projectID)
	return nil
}
