package scrapeall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/scrapeall/chat"
	"github.com/hazyhaar/scrapeall/embed"
	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/kit"
	"github.com/hazyhaar/scrapeall/llm"
	"github.com/hazyhaar/scrapeall/scrape"
	"github.com/hazyhaar/scrapeall/store"
)

const analysisJSON = `{"summary":"Solar panels turn sunlight into electricity.","key_points":["Photovoltaic cells","Inverters"],"entities":{"organizations":["NREL"]},"topics":["energy"]}`

func articlePage(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>%s</title></head>
<body><nav>Home | About</nav><main><article><h1>%s</h1><p>%s</p></article></main>
<footer>Copyright</footer></body></html>`, title, title, body)
}

const formPage = `<!DOCTYPE html><html><head><title>Login</title></head><body>
<p>Sign in to your account to continue reading the documentation pages.</p>
<form action="/session" method="POST">
<input type="email" name="email" required placeholder="you@example.com">
<input type="password" name="password" required>
<select name="lang"><option value="en">English</option><option value="fr">French</option></select>
</form></body></html>`

func serve(t *testing.T, markup string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, markup)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type hangFetcher string

func (h hangFetcher) Method() string { return string(h) }

func (h hangFetcher) Fetch(ctx context.Context, pageURL, selector string) (*fetcher.Page, error) {
	<-ctx.Done()
	return nil, &fetcher.Failure{Method: string(h), Kind: fetcher.Recoverable, Reason: "timed out", Err: ctx.Err()}
}

// scriptedLLM answers every call with reply and records the prompts.
type scriptedLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  [][]llm.Message
}

func (s *scriptedLLM) provider() llm.Provider {
	return llm.ProviderFunc("fake", func(ctx context.Context, msgs []llm.Message, o llm.Options) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.seen = append(s.seen, msgs)
		return s.reply, s.err
	})
}

func (s *scriptedLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return ""
	}
	msgs := s.seen[len(s.seen)-1]
	return msgs[len(msgs)-1].Content
}

type fixture struct {
	svc   *Service
	store *store.Store
	llm   *scriptedLLM
}

func fastScrape() scrape.Config {
	return scrape.Config{
		DirectTimeout:    2 * time.Second,
		RenderedTimeout:  30 * time.Millisecond,
		AutomatedTimeout: 30 * time.Millisecond,
		TotalTimeout:     5 * time.Second,
		RetryBackoff:     time.Millisecond,
	}
}

func newFixture(t *testing.T, fetchers []fetcher.Fetcher, opts ...Option) *fixture {
	t.Helper()
	st := store.OpenMemory(t)
	sl := &scriptedLLM{reply: analysisJSON}
	direct := fetchers == nil
	if direct {
		d := fetcher.NewDirect(2 * time.Second)
		t.Cleanup(d.CloseIdleConnections)
		fetchers = []fetcher.Fetcher{d, hangFetcher(fetcher.MethodRendered), hangFetcher(fetcher.MethodAutomated)}
	}
	opts = append([]Option{
		WithStore(st),
		WithFetchers(fetchers...),
		WithLLMChain(llm.NewChain([]llm.Provider{sl.provider()})),
		WithEmbedder(embed.NewLocal(256)),
	}, opts...)
	cfg := fastScrape()
	if !direct {
		cfg.DirectTimeout = 30 * time.Millisecond
	}
	svc, err := New(context.Background(), Config{Scrape: cfg}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return &fixture{svc: svc, store: st, llm: sl}
}

func allHang() []fetcher.Fetcher {
	return []fetcher.Fetcher{
		hangFetcher(fetcher.MethodDirect),
		hangFetcher(fetcher.MethodRendered),
		hangFetcher(fetcher.MethodAutomated),
	}
}

func unrestricted() context.Context {
	return kit.WithUnrestrictedScope(context.Background())
}

func TestScrape_StaticServer(t *testing.T) {
	// WHAT: A responsive static page succeeds through the direct strategy.
	// WHY: The cheapest strategy must serve what it can; browsers are fallbacks.
	fx := newFixture(t, nil)
	srv := serve(t, articlePage("Solar power", "Solar panels convert sunlight into electricity using photovoltaic cells made of silicon."))
	ctx := unrestricted()

	res, err := fx.svc.Scrape(ctx, ScrapeRequest{URL: srv.URL, ProjectName: "Solar"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Status != store.StatusSuccess || res.ScrapeMethod != fetcher.MethodDirect {
		t.Fatalf("status=%s method=%s err=%s", res.Status, res.ScrapeMethod, res.ErrorMessage)
	}
	if res.Summary == "" || res.AIProvider != "fake" || len(res.KeyPoints) != 2 {
		t.Errorf("intelligence: %+v", res)
	}
	if res.Title != "Solar power" || !strings.Contains(res.ExtractedContent, "photovoltaic") {
		t.Errorf("content: title=%q text=%q", res.Title, res.ExtractedContent)
	}
	if strings.Contains(res.ExtractedContent, "Copyright") {
		t.Error("boilerplate leaked into extracted content")
	}

	latest, err := fx.svc.LatestScrape(ctx, res.ProjectID)
	if err != nil || latest == nil || latest.ID != res.ID {
		t.Fatalf("latest: %v %+v", err, latest)
	}
	n, err := fx.svc.index.Count(ctx, res.ProjectID)
	if err != nil || n == 0 {
		t.Errorf("indexed chunks: %d %v", n, err)
	}
}

func TestScrape_AllStrategiesTimeOut(t *testing.T) {
	// WHAT: When every strategy times out the result is FAILED, with no
	// method, an explanation and no intelligence.
	// WHY: A failed scrape is a result the user reads, not an exception.
	fx := newFixture(t, allHang())

	res, err := fx.svc.Scrape(unrestricted(), ScrapeRequest{URL: "https://slow.example", CreateProject: true})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Status != store.StatusFailed || res.ScrapeMethod != "" {
		t.Fatalf("status=%s method=%q", res.Status, res.ScrapeMethod)
	}
	if res.ErrorMessage == "" || res.ErrorKind != string(KindFetchRecoverable) {
		t.Errorf("error: %q kind=%q", res.ErrorMessage, res.ErrorKind)
	}
	if res.Summary != "" || len(res.KeyPoints) != 0 || len(res.Entities) != 0 {
		t.Errorf("FAILED result carries intelligence: %+v", res)
	}
	if res.ErrorReport == nil || len(res.ErrorReport.Attempts) < 3 || len(res.ErrorReport.Hints) == 0 {
		t.Errorf("report: %+v", res.ErrorReport)
	}
	if len(fx.llm.seen) != 0 {
		t.Error("the model must not be called for a failed fetch")
	}

	p, err := fx.store.GetProject(context.Background(), res.ProjectID)
	if err != nil || !strings.HasPrefix(p.Name, "Scrape https://slow.example") {
		t.Errorf("default project name: %v %+v", err, p)
	}
	n, _ := fx.svc.index.Count(context.Background(), res.ProjectID)
	if n != 0 {
		t.Errorf("failed scrape indexed %d chunks", n)
	}
}

func TestScrape_SelectorMatchesNothing(t *testing.T) {
	// WHAT: An unmatched scope selector fails with extraction_empty naming it.
	// WHY: Silently falling back to the whole page would analyze the wrong text.
	fx := newFixture(t, nil)
	srv := serve(t, articlePage("Docs", "Plenty of readable text lives in this article body for extraction."))

	res, err := fx.svc.Scrape(unrestricted(), ScrapeRequest{URL: srv.URL, Selector: ".nonexistent"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Status != store.StatusFailed || res.ErrorKind != string(KindExtractionEmpty) {
		t.Fatalf("status=%s kind=%s", res.Status, res.ErrorKind)
	}
	if !strings.Contains(res.ErrorMessage, ".nonexistent") {
		t.Errorf("message does not name the selector: %q", res.ErrorMessage)
	}
	if res.ProjectID != "" {
		t.Errorf("anonymous request got project %q", res.ProjectID)
	}
}

func TestScrape_DegradedAnalysis(t *testing.T) {
	// WHAT: Unparseable model output still yields a PARTIAL, indexed result.
	// WHY: The fetched content is valuable even when the model misbehaves.
	fx := newFixture(t, nil)
	fx.llm.reply = "I cannot answer in JSON today."
	srv := serve(t, articlePage("Wind", "Wind turbines convert kinetic energy from moving air into electricity."))

	res, err := fx.svc.Scrape(unrestricted(), ScrapeRequest{URL: srv.URL, ProjectName: "Wind"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Status != store.StatusPartial || res.ErrorKind != string(KindAnalysisDegraded) {
		t.Fatalf("status=%s kind=%s", res.Status, res.ErrorKind)
	}
	if !strings.Contains(res.Summary, "Wind turbines") || res.KeyPoints == nil {
		t.Errorf("degraded summary: %q", res.Summary)
	}
	n, _ := fx.svc.index.Count(context.Background(), res.ProjectID)
	if n == 0 {
		t.Error("partial result must be indexed")
	}
}

func TestScrape_InvalidRequest(t *testing.T) {
	fx := newFixture(t, allHang())
	for name, req := range map[string]ScrapeRequest{
		"no url":        {},
		"name and id":   {URL: "https://a.example", ProjectName: "x", ProjectID: "y"},
		"create and id": {URL: "https://a.example", CreateProject: true, ProjectID: "y"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fx.svc.Scrape(unrestricted(), req)
			if !errors.Is(err, ErrInvalidRequest) || KindOf(err) != KindInvalidRequest {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestScrape_Scope(t *testing.T) {
	// WHAT: Project operations outside the caller's scope are forbidden.
	// WHY: Project ids are not secrets; the scope is the only access check.
	fx := newFixture(t, nil)
	srv := serve(t, articlePage("Scoped", "This page belongs to a project the caller may not touch at all."))
	p, _, err := fx.store.CreateOrGetProject(context.Background(), "Private", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	other := kit.WithProjectScope(context.Background(), "someone-else")
	if _, err := fx.svc.Scrape(other, ScrapeRequest{URL: srv.URL, ProjectID: p.ID}); !errors.Is(err, ErrForbidden) {
		t.Errorf("scrape into foreign project: %v", err)
	}
	if _, err := fx.svc.ListScrapes(other, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("list foreign project: %v", err)
	}
	if _, err := fx.svc.Chat(other, p.ID, "hi"); !errors.Is(err, ErrForbidden) {
		t.Errorf("chat foreign project: %v", err)
	}
	if err := fx.svc.DeleteProject(other, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete foreign project: %v", err)
	}
	// Reusing a foreign project through its name and url is forbidden too.
	if _, err := fx.svc.Scrape(other, ScrapeRequest{URL: srv.URL, ProjectName: "Private"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("create-or-get foreign project: %v", err)
	}

	// Without any scope, an untrusted service refuses.
	if _, err := fx.svc.ListScrapes(context.Background(), p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("no scope: %v", err)
	}

	// A project created in a request is reachable for the rest of it.
	mine := kit.WithProjectScope(context.Background())
	res, err := fx.svc.Scrape(mine, ScrapeRequest{URL: srv.URL, ProjectName: "Mine"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if _, err := fx.svc.ListScrapes(mine, res.ProjectID); err != nil {
		t.Errorf("own new project: %v", err)
	}
}

func TestScrape_TrustAll(t *testing.T) {
	fx := newFixture(t, allHang(), WithTrustAllProjects())
	p, _, _ := fx.store.CreateOrGetProject(context.Background(), "P", "u")
	if _, err := fx.svc.ListScrapes(context.Background(), p.ID); err != nil {
		t.Fatalf("trusted caller without scope: %v", err)
	}
	if _, err := fx.svc.ListScrapes(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown project: %v", err)
	}
}

func TestScrape_PersistenceFailure(t *testing.T) {
	// WHAT: A storage failure after the pipeline returns the in-memory result
	// with a *PersistenceError.
	// WHY: The caller already paid for the fetch and the analysis.
	fx := newFixture(t, nil)
	srv := serve(t, articlePage("Tides", "Tidal power harnesses the rise and fall of sea levels to make electricity."))
	fx.store.DB.Close()

	res, err := fx.svc.Scrape(unrestricted(), ScrapeRequest{URL: srv.URL})
	if !IsPersistence(err) || KindOf(err) != KindPersistenceFailure {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.Status != store.StatusSuccess || res.Summary == "" {
		t.Fatalf("in-memory result: %+v", res)
	}
}

func TestChat_ProjectIsolation(t *testing.T) {
	// WHAT: Chat grounds answers on the asked project's chunks only.
	// WHY: Projects are tenants; their content must never cross.
	fx := newFixture(t, nil)
	ctx := unrestricted()
	solar := serve(t, articlePage("Solar", "Solar panels convert sunlight into electricity with photovoltaic cells."))
	bees := serve(t, articlePage("Bees", "Honeybees communicate the location of flowers through a waggle dance."))

	a, err := fx.svc.Scrape(ctx, ScrapeRequest{URL: solar.URL, ProjectName: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.Scrape(ctx, ScrapeRequest{URL: bees.URL, ProjectName: "B"}); err != nil {
		t.Fatal(err)
	}

	fx.llm.reply = "They use photovoltaic cells."
	resp, err := fx.svc.Chat(ctx, a.ProjectID, "How do panels make electricity?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !resp.Grounded || resp.Response != "They use photovoltaic cells." || resp.Kind != "" {
		t.Errorf("response: %+v", resp)
	}
	prompt := fx.llm.lastPrompt()
	if !strings.Contains(prompt, "photovoltaic") || strings.Contains(prompt, "waggle") {
		t.Errorf("prompt mixes projects:\n%s", prompt)
	}
	for _, h := range resp.Sources {
		if h.ScrapeID != a.ID {
			t.Errorf("source from another scrape: %s", h.ScrapeID)
		}
	}

	hist, err := fx.svc.ChatHistory(ctx, a.ProjectID, 0)
	if err != nil || len(hist) != 2 || hist[0].Role != store.RoleUser || hist[1].Role != store.RoleAssistant {
		t.Errorf("history: %v %+v", err, hist)
	}
}

func TestChat_NoContent(t *testing.T) {
	// WHAT: A project with nothing indexed gets the fixed answer.
	// WHY: Answering without sources would be an invention.
	fx := newFixture(t, allHang())
	ctx := unrestricted()
	p, _, _ := fx.store.CreateOrGetProject(ctx, "Empty", "https://empty.example")

	for _, q := range []string{"What is this?", "Tell me everything"} {
		resp, err := fx.svc.Chat(ctx, p.ID, q)
		if err != nil {
			t.Fatalf("chat: %v", err)
		}
		if resp.Response != chat.NoContentAnswer || resp.Grounded || resp.Kind != KindRetrievalEmpty {
			t.Errorf("response: %+v", resp)
		}
	}
	if len(fx.llm.seen) != 0 {
		t.Error("model called without content")
	}

	if _, err := fx.svc.Chat(ctx, p.ID, "   "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank question: %v", err)
	}
}

func TestDetectForms(t *testing.T) {
	fx := newFixture(t, nil)
	srv := serve(t, formPage)
	ctx := unrestricted()

	forms, err := fx.svc.DetectForms(ctx, srv.URL)
	if err != nil {
		t.Fatalf("forms: %v", err)
	}
	if len(forms) != 1 || forms[0].Method != "post" || forms[0].Action != srv.URL+"/session" {
		t.Fatalf("forms: %+v", forms)
	}
	if len(forms[0].Fields) != 3 || forms[0].Fields[2].Type != "select-one" {
		t.Errorf("fields: %+v", forms[0].Fields)
	}

	again, err := fx.svc.DetectForms(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(forms, again); diff != "" {
		t.Errorf("not idempotent (-first +second):\n%s", diff)
	}
}

func TestDetectForms_Unreachable(t *testing.T) {
	fx := newFixture(t, allHang())

	_, err := fx.svc.DetectForms(unrestricted(), "https://slow.example")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Message == "" || KindOf(err) != KindFetchRecoverable {
		t.Fatalf("err = %v", err)
	}
}

func TestGetAndDeleteScrape(t *testing.T) {
	fx := newFixture(t, nil)
	srv := serve(t, articlePage("Geo", "Geothermal plants tap heat stored beneath the surface of the earth."))
	ctx := unrestricted()

	res, err := fx.svc.Scrape(ctx, ScrapeRequest{URL: srv.URL, ProjectName: "Geo"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := fx.svc.GetScrape(ctx, res.ID)
	if err != nil || got.Summary != res.Summary {
		t.Fatalf("get: %v", err)
	}
	if _, err := fx.svc.GetScrape(kit.WithProjectScope(context.Background(), "x"), res.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign get: %v", err)
	}

	if err := fx.svc.DeleteScrape(ctx, res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fx.svc.GetScrape(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: %v", err)
	}
	if n, _ := fx.svc.index.Count(ctx, res.ProjectID); n != 0 {
		t.Errorf("chunks survived their scrape: %d", n)
	}

	if err := fx.svc.DeleteProject(ctx, res.ProjectID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := fx.svc.ListScrapes(ctx, res.ProjectID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after project delete: %v", err)
	}
}

func TestNew_Config(t *testing.T) {
	_, err := New(context.Background(), Config{Fetchers: []string{"direct", "teleport"}}, WithStore(store.OpenMemory(t)))
	if err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Fatalf("err = %v", err)
	}
}
