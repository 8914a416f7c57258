package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/scrapeall/kit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestHeadToGet(t *testing.T) {
	var seen string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/health", nil))
	if seen != http.MethodGet {
		t.Errorf("method = %q, want GET", seen)
	}
}

func TestMaxJSONBody(t *testing.T) {
	// WHAT: a body above the limit fails to read.
	// WHY: unbounded request bodies are a memory exhaustion vector.
	var readErr error
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/scrape", strings.NewReader(`{"url":"https://example.com"}`)))
	if readErr == nil || readErr.Error() == "EOF" {
		t.Fatalf("expected a too-large error, got %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var trace, addr string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = kit.GetTraceID(r.Context())
		addr = kit.GetRemoteAddr(r.Context())
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	h.ServeHTTP(w, req)
	if trace == "" || w.Header().Get("X-Trace-ID") != trace {
		t.Fatalf("trace id %q not propagated (header %q)", trace, w.Header().Get("X-Trace-ID"))
	}
	if addr != "192.0.2.1" {
		t.Errorf("remote addr = %q", addr)
	}

	// WHAT: a well-formed inbound id is kept, a malformed one replaced.
	// WHY: upstream proxies correlate logs by the id they assigned.
	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Trace-ID", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if trace != "abc-123" {
		t.Errorf("inbound trace id not kept: %q", trace)
	}
	req.Header.Set("X-Trace-ID", "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if trace == "bad id\n" {
		t.Error("malformed trace id kept")
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(Rule{Max: 2, Window: time.Minute})
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	call := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/scrape", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if call("10.0.0.1") != 200 || call("10.0.0.1") != 200 {
		t.Fatal("first two requests should pass")
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	// WHAT: limits are per client.
	if code := call("10.0.0.2"); code != 200 {
		t.Errorf("other client = %d, want 200", code)
	}
	// WHAT: the budget refills at Max per Window.
	now = now.Add(30 * time.Second)
	if code := call("10.0.0.1"); code != 200 {
		t.Errorf("after half a window = %d, want 200", code)
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("refill gave more than one request back: %d", code)
	}

	rl.gc()
	if n := clients(rl); n != 2 {
		t.Fatalf("gc dropped active clients: %d left", n)
	}
	now = now.Add(2 * time.Minute)
	rl.gc()
	if n := clients(rl); n != 0 {
		t.Errorf("gc left %d idle clients", n)
	}
}

func clients(rl *RateLimiter) int {
	n := 0
	rl.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(Rule{})
	for range 100 {
		if !rl.allow("10.0.0.1") {
			t.Fatal("zero rule must allow everything")
		}
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.7" {
		t.Errorf("ExtractIP = %q", ip)
	}
}
