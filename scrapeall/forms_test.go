package scrapeall

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/kit"
	"github.com/hazyhaar/scrapeall/store"
)

// fakeFiller fills whatever names it knows and reports the rest missing.
type fakeFiller struct {
	mu     sync.Mutex
	known  map[string]bool
	err    error
	called []fetcher.FillRequest
}

func (f *fakeFiller) FillForm(ctx context.Context, req fetcher.FillRequest) (*fetcher.FillReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, req)
	if f.err != nil {
		return nil, f.err
	}
	rep := &fetcher.FillReport{URL: req.URL, Submitted: req.Submit}
	for name := range req.Values {
		if f.known[name] {
			rep.Filled = append(rep.Filled, name)
		} else {
			rep.Missing = append(rep.Missing, name)
		}
	}
	if req.Submit {
		rep.URL = req.URL + "/thanks"
	}
	return rep, nil
}

func (f *fakeFiller) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.called)
}

func newProject(t *testing.T, fx *fixture, name string) *store.Project {
	t.Helper()
	p, _, err := fx.store.CreateOrGetProject(context.Background(), name, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFillForm_RecordsSubmission(t *testing.T) {
	// WHAT: A fill is recorded with its outcome, and missing fields make it partial.
	// WHY: The submission log is the audit trail of what was sent to third-party sites.
	ff := &fakeFiller{known: map[string]bool{"email": true}}
	fx := newFixture(t, allHang(), WithFormFiller(ff))
	p := newProject(t, fx, "Contact")
	ctx := unrestricted()

	sub, err := fx.svc.FillForm(ctx, FillFormRequest{
		ProjectID: p.ID, URL: " https://example.com/contact ", FormIndex: 1,
		Values: map[string]string{"email": "ada@example.com"}, Submit: true,
	})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if sub.Status != store.StatusSuccess || !sub.Submitted || sub.FinalURL != "https://example.com/contact/thanks" {
		t.Errorf("submission: %+v", sub)
	}
	if got := ff.called[0]; got.URL != "https://example.com/contact" || got.FormIndex != 1 || !got.Submit {
		t.Errorf("filler request: %+v", got)
	}

	partial, err := fx.svc.FillForm(ctx, FillFormRequest{
		ProjectID: p.ID, URL: "https://example.com/contact",
		Values: map[string]string{"email": "a@b.c", "fax": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if partial.Status != store.StatusPartial || !strings.Contains(partial.Result, "fax") {
		t.Errorf("partial: %+v", partial)
	}

	subs, err := fx.svc.ListFormSubmissions(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != partial.ID || subs[1].ID != sub.ID {
		t.Fatalf("log: %+v", subs)
	}
}

func TestFillForm_BrowserFailureIsRecorded(t *testing.T) {
	ff := &fakeFiller{err: &fetcher.Failure{Method: fetcher.MethodAutomated, Kind: fetcher.Recoverable, Reason: "navigation failed"}}
	fx := newFixture(t, allHang(), WithFormFiller(ff))
	p := newProject(t, fx, "Broken")

	sub, err := fx.svc.FillForm(unrestricted(), FillFormRequest{
		ProjectID: p.ID, URL: "https://example.com", Values: map[string]string{"q": "x"},
	})
	if err != nil {
		t.Fatalf("a browser failure is a FAILED submission, not an error: %v", err)
	}
	if sub.Status != store.StatusFailed || !strings.Contains(sub.Result, "navigation failed") || sub.ID == "" {
		t.Errorf("submission: %+v", sub)
	}
}

func TestFillForm_Rejected(t *testing.T) {
	// WHAT: Invalid or out-of-scope requests never reach the browser.
	ff := &fakeFiller{}
	fx := newFixture(t, allHang(), WithFormFiller(ff))
	p := newProject(t, fx, "Scoped")
	ctx := unrestricted()

	tests := []struct {
		name string
		ctx  context.Context
		req  FillFormRequest
		want error
	}{
		{"no project", ctx, FillFormRequest{URL: "https://example.com", Submit: true}, ErrInvalidRequest},
		{"bad url", ctx, FillFormRequest{ProjectID: p.ID, URL: "file:///etc/passwd", Submit: true}, ErrInvalidRequest},
		{"nothing to do", ctx, FillFormRequest{ProjectID: p.ID, URL: "https://example.com"}, ErrInvalidRequest},
		{"negative index", ctx, FillFormRequest{ProjectID: p.ID, URL: "https://example.com", FormIndex: -1, Submit: true}, ErrInvalidRequest},
		{"empty field name", ctx, FillFormRequest{ProjectID: p.ID, URL: "https://example.com", Values: map[string]string{"": "x"}}, ErrInvalidRequest},
		{"foreign scope", kit.WithProjectScope(context.Background(), "other"), FillFormRequest{ProjectID: p.ID, URL: "https://example.com", Submit: true}, ErrForbidden},
		{"unknown project", ctx, FillFormRequest{ProjectID: "missing", URL: "https://example.com", Submit: true}, ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := fx.svc.FillForm(tt.ctx, tt.req); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
	if n := ff.calls(); n != 0 {
		t.Errorf("filler called %d times", n)
	}
}

func TestHTTP_FillForm(t *testing.T) {
	ff := &fakeFiller{known: map[string]bool{"q": true}}
	fx := newFixture(t, allHang(), WithFormFiller(ff))
	p := newProject(t, fx, "Search")
	h := Router(fx.svc)

	w := do(t, h, "POST", "/api/forms/fill", p.ID, `{"project_id":"`+p.ID+`","url":"https://example.com","form_data":{"q":"golang"},"submit":true}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"SUCCESS"`) {
		t.Fatalf("fill: %d %s", w.Code, w.Body)
	}
	w = do(t, h, "GET", "/api/projects/"+p.ID+"/forms", p.ID, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"golang"`) {
		t.Fatalf("list: %d %s", w.Code, w.Body)
	}
	w = do(t, h, "POST", "/api/forms/fill", "other", `{"project_id":"`+p.ID+`","url":"https://example.com","submit":true}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign scope: %d", w.Code)
	}
}
