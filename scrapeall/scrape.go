package scrapeall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/scrapeall/analyze"
	"github.com/hazyhaar/scrapeall/scrape"
	"github.com/hazyhaar/scrapeall/store"
)

// persistTimeout bounds the writes that follow a scrape. They run detached
// from the caller so a finished scrape is not lost to a late cancellation.
const persistTimeout = 15 * time.Second

// ScrapeRequest asks for one URL. ProjectName (or CreateProject) creates a
// project, ProjectID attaches to an existing one, neither is anonymous.
type ScrapeRequest struct {
	URL           string `json:"url" validate:"required,max=2048"`
	ProjectName   string `json:"project_name,omitempty" validate:"omitempty,max=255,excluded_with=ProjectID"`
	ProjectID     string `json:"project_id,omitempty" validate:"omitempty,max=64"`
	CreateProject bool   `json:"create_project,omitempty" validate:"excluded_with=ProjectID"`
	// Selector restricts extraction to matching elements.
	Selector string `json:"selector,omitempty" validate:"omitempty,max=512"`
}

// ScrapeResult is the persisted outcome of one scrape.
type ScrapeResult = store.ScrapeResult

func (r *ScrapeRequest) anonymous() bool {
	return r.ProjectID == "" && r.ProjectName == "" && !r.CreateProject
}

// Scrape fetches, extracts, analyzes, persists and indexes req.URL.
//
// A page that cannot be fetched or yields no text is not an error: the
// result has status FAILED with a message, a kind and a report. The error
// is non-nil for invalid requests, scope violations and storage failures;
// a *PersistenceError comes with the in-memory result.
func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResult, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	projectID, err := s.resolveProject(ctx, &req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := s.run(ctx, req)
	res.ProjectID = projectID
	if ctx.Err() != nil && res.Status == store.StatusFailed {
		return nil, fmt.Errorf("scrapeall: scrape %s: %w", req.URL, ctx.Err())
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if _, err := s.store.SaveScrapeResult(pctx, res); err != nil {
		s.log(ctx).Error("scrapeall: save failed", "url", req.URL, "error", err)
		return res, &PersistenceError{Op: "scrape result", Err: err}
	}
	if projectID != "" && res.Status != store.StatusFailed {
		n, err := s.index.Add(pctx, projectID, res.ID, res.ExtractedContent)
		if err != nil {
			s.log(ctx).Error("scrapeall: index failed", "scrape", res.ID, "error", err)
			return res, &PersistenceError{Op: "index", Err: err}
		}
		s.log(ctx).Debug("scrapeall: indexed", "scrape", res.ID, "chunks", n)
	}

	s.log(ctx).Info("scrapeall: scraped",
		"url", req.URL, "id", res.ID, "status", res.Status, "method", res.ScrapeMethod,
		"provider", res.AIProvider, "kind", res.ErrorKind, "duration", time.Since(start))
	return res, nil
}

// resolveProject checks scope and returns the project the result belongs
// to, creating it when asked. Anonymous requests get "".
func (s *Service) resolveProject(ctx context.Context, req *ScrapeRequest) (string, error) {
	if req.ProjectID != "" {
		p, err := s.authorize(ctx, req.ProjectID)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	sc, err := s.scope(ctx)
	if err != nil {
		return "", err
	}
	if req.anonymous() {
		return "", nil
	}

	name := req.ProjectName
	if name == "" {
		name = defaultProjectName(req.URL)
	}
	p, created, err := s.store.CreateOrGetProject(ctx, name, req.URL)
	if err != nil {
		return "", &PersistenceError{Op: "project", Err: err}
	}
	switch {
	case created:
		sc.Grant(p.ID)
	case !sc.Allows(p.ID):
		return "", ErrForbidden
	}
	return p.ID, nil
}

func defaultProjectName(url string) string {
	if utf8.RuneCountInString(url) > 50 {
		url = string([]rune(url)[:50])
	}
	return "Scrape " + url
}

// run is the pipeline proper. It always returns a result; ctx cancellation
// surfaces as a FAILED one.
func (s *Service) run(ctx context.Context, req ScrapeRequest) *ScrapeResult {
	res := &ScrapeResult{URL: req.URL, KeyPoints: []string{}}

	out := s.orch.Scrape(ctx, req.URL, req.Selector)
	if !out.Succeeded() {
		kind := KindFetchRecoverable
		if out.Fatal {
			kind = KindFetchFatal
		}
		fail(res, kind, out.Message())
		res.ErrorReport = reportOf(out)
		return res
	}

	page := out.Page
	ex, err := s.extractor.Extract(page.Markup, req.Selector, page.URL)
	if err != nil {
		fail(res, KindOf(err), err.Error())
		return res
	}
	res.ScrapeMethod = out.Method
	res.Title = ex.Title
	res.ExtractedContent = ex.Text
	res.Markdown = ex.Markdown

	a, err := s.analyzer.Analyze(ctx, analyze.Document{URL: page.URL, Title: ex.Title, Text: ex.Text})
	if err != nil {
		fail(res, KindAnalysisDegraded, err.Error())
		res.ScrapeMethod = ""
		return res
	}
	res.Summary = a.Summary
	res.KeyPoints = a.KeyPoints
	res.Entities = a.Entities
	res.Topics = a.Topics
	res.AIProvider = a.Provider
	res.Status = store.StatusSuccess
	if a.Degraded {
		res.Status = store.StatusPartial
		res.ErrorKind = string(KindAnalysisDegraded)
		res.ErrorMessage = "analysis degraded: " + a.Reason
	}
	return res
}

// fail marks res FAILED and clears the intelligence fields.
func fail(res *ScrapeResult, kind Kind, msg string) {
	if msg == "" {
		msg = "scrape failed"
	}
	res.Status = store.StatusFailed
	res.ErrorKind = string(kind)
	res.ErrorMessage = msg
	res.Summary = ""
	res.KeyPoints = []string{}
	res.Entities = nil
	res.Topics = nil
	res.AIProvider = ""
	res.ExtractedContent = ""
	res.Markdown = ""
}

func reportOf(out *scrape.Outcome) *store.ErrorReport {
	r := out.Report()
	if r == nil {
		return nil
	}
	rep := &store.ErrorReport{
		Hints:    make([]store.ReportHint, 0, len(r.Hints)),
		Attempts: make([]store.AttemptRecord, 0, len(out.Attempts)),
	}
	for _, h := range r.Hints {
		rep.Hints = append(rep.Hints, store.ReportHint{Reason: h.Reason, Suggestion: h.Suggestion})
	}
	for _, a := range out.Attempts {
		rec := store.AttemptRecord{Method: a.Step, Try: a.Try, DurationMS: a.Duration.Milliseconds()}
		if a.Err != nil {
			rec.Error = a.Err.Error()
		}
		rep.Attempts = append(rep.Attempts, rec)
	}
	return rep
}

// scopeAllows checks a stored result's project against the caller's scope.
// Anonymous results are readable by any scoped caller that knows the id;
// DeleteScrape further requires an unrestricted scope for them.
func (s *Service) scopeAllows(ctx context.Context, projectID string) error {
	sc, err := s.scope(ctx)
	if err != nil {
		return err
	}
	if projectID != "" && !sc.Allows(projectID) {
		return ErrForbidden
	}
	return nil
}

// IsPersistence reports whether err is a storage failure that came with a
// usable in-memory result.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
