package scrapeall

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/store"
)

// FillFormRequest asks to fill one form of a page for a project.
type FillFormRequest struct {
	ProjectID string            `json:"project_id" validate:"required,max=64"`
	URL       string            `json:"url" validate:"required,max=2048"`
	FormIndex int               `json:"form_index" validate:"min=0,max=100"`
	Values    map[string]string `json:"form_data" validate:"max=200,dive,keys,required,max=256,endkeys,max=4096"`
	Submit    bool              `json:"submit"`
}

// FormSubmission is the persisted record of one fill.
type FormSubmission = store.FormSubmission

// FillForm fills req.FormIndex of req.URL in an automated browser, submits
// it when asked, and records the attempt in the project's submission log.
//
// A page that cannot be driven is not an error: the submission has status
// FAILED and the reason in Result. Fields that were not found make it
// PARTIAL. The error is non-nil for invalid requests, scope violations,
// cancellation and storage failures; a *PersistenceError comes with the
// in-memory submission.
func (s *Service) FillForm(ctx context.Context, req FillFormRequest) (*FormSubmission, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	freq := fetcher.FillRequest{URL: req.URL, FormIndex: req.FormIndex, Values: req.Values, Submit: req.Submit}
	if err := freq.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := s.authorize(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	if s.filler == nil {
		return nil, errors.New("scrapeall: form filling needs a browser and none is configured")
	}

	sub := &FormSubmission{
		ProjectID: req.ProjectID,
		URL:       req.URL,
		FormIndex: req.FormIndex,
		Values:    req.Values,
	}
	rep, err := s.filler.FillForm(ctx, freq)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, fmt.Errorf("scrapeall: fill form %s: %w", req.URL, ctx.Err())
	case err != nil:
		sub.Status = store.StatusFailed
		sub.Result = err.Error()
	default:
		sub.Filled, sub.Missing = rep.Filled, rep.Missing
		sub.Submitted, sub.FinalURL = rep.Submitted, rep.URL
		sub.Status = store.StatusSuccess
		if len(rep.Missing) > 0 {
			sub.Status = store.StatusPartial
			sub.Result = "fields not found: " + strings.Join(rep.Missing, ", ")
		}
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.SaveFormSubmission(pctx, sub); err != nil {
		s.log(ctx).Error("scrapeall: save form submission failed", "url", req.URL, "error", err)
		return sub, &PersistenceError{Op: "form submission", Err: err}
	}
	s.log(ctx).Info("scrapeall: form filled",
		"url", req.URL, "id", sub.ID, "status", sub.Status,
		"filled", len(sub.Filled), "missing", len(sub.Missing), "submitted", sub.Submitted)
	return sub, nil
}

// ListFormSubmissions returns projectID's submission log, newest first.
func (s *Service) ListFormSubmissions(ctx context.Context, projectID string) ([]*FormSubmission, error) {
	if _, err := s.authorize(ctx, projectID); err != nil {
		return nil, err
	}
	subs, err := s.store.ListFormSubmissions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scrapeall: form submissions %s: %w", projectID, err)
	}
	return subs, nil
}
