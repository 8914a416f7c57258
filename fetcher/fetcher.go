// Package fetcher retrieves raw page markup. Three strategies share one
// capability, in increasing cost order:
//
//   - Direct:    a single HTTP GET, no script execution
//   - Rendered:  a disposable headless browser, waits for network idle
//   - Automated: a stealth browser session with viewport, scroll and
//     challenge-wait heuristics, optionally headful under Xvfb
//
// Every failure is a *Failure that says whether a more expensive strategy
// could succeed (Recoverable) or not (Fatal).
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Method identifiers, also persisted as scrape_method.
const (
	MethodDirect    = "direct"
	MethodRendered  = "rendered"
	MethodAutomated = "automated"
)

// Page is a successfully fetched page.
type Page struct {
	URL    string // final URL after redirects
	Markup string
	Status int // HTTP status when known, 0 otherwise
	Method string
	Media  string // media type of the response body; browser strategies leave it empty
}

// Fetcher is one acquisition strategy.
type Fetcher interface {
	// Method returns the strategy identifier.
	Method() string
	// Fetch returns the page markup or a *Failure. selector is a hint for
	// strategies that can wait for it to appear; it never filters markup.
	Fetch(ctx context.Context, pageURL, selector string) (*Page, error)
}

// Kind separates failures a later strategy may recover from fatal ones.
type Kind int

const (
	Recoverable Kind = iota
	Fatal
)

func (k Kind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// Failure is the typed error of every fetcher.
type Failure struct {
	Method string
	Kind   Kind
	// Transient failures (connection reset, 502/503/504) are worth one
	// retry with the same strategy.
	Transient bool
	Status    int
	Reason    string
	Err       error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Method)
	b.WriteString(": ")
	b.WriteString(f.Reason)
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// IsFatal reports whether no other strategy can recover from err.
func IsFatal(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == Fatal
}

// IsTransient reports whether err is worth retrying with the same strategy.
func IsTransient(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Transient
}

func recoverable(method, reason string, err error) *Failure {
	return &Failure{Method: method, Kind: Recoverable, Reason: reason, Err: err}
}

func fatal(method, reason string, err error) *Failure {
	return &Failure{Method: method, Kind: Fatal, Reason: reason, Err: err}
}

// ValidateURL checks that pageURL is an absolute http(s) URL with a host.
// A malformed address is fatal for every strategy.
func ValidateURL(method, pageURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, fatal(method, "malformed URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fatal(method, "malformed URL", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, fatal(method, "malformed URL", errors.New("missing host"))
	}
	return u, nil
}

// classifyNetError maps transport errors to a Failure.
func classifyNetError(method string, err error) *Failure {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return fatal(method, "DNS resolution failed", err)
		}
		f := recoverable(method, "DNS lookup error", err)
		f.Transient = dnsErr.IsTemporary
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return recoverable(method, "timeout", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return recoverable(method, "timeout", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		f := recoverable(method, "connection error", err)
		f.Transient = true
		return f
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "x509") || strings.Contains(msg, "tls"):
		return recoverable(method, "TLS error", err)
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof"):
		f := recoverable(method, "connection error", err)
		f.Transient = true
		return f
	}
	return recoverable(method, "request failed", err)
}
