// CLAUDE:SUMMARY Direct strategy: one HTTP GET with browser-like headers, body cap, optional SSRF-guarded redirects and status, media type and content classification.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent is sent by the direct strategy.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBody caps a response read to prevent runaway downloads.
const maxBody = 10 << 20

// Direct performs a single HTTP GET. No script execution.
type Direct struct {
	client     *http.Client
	ua         string
	blockLocal bool
	logger     *slog.Logger
}

// DirectOption configures Direct.
type DirectOption func(*Direct)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) DirectOption {
	return func(d *Direct) { d.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) DirectOption {
	return func(d *Direct) { d.ua = ua }
}

// WithPrivateNetworkBlocked refuses URLs and redirects that resolve to
// loopback, private or link-local addresses.
func WithPrivateNetworkBlocked(on bool) DirectOption {
	return func(d *Direct) { d.blockLocal = on }
}

// WithDirectLogger sets a custom logger.
func WithDirectLogger(l *slog.Logger) DirectOption {
	return func(d *Direct) { d.logger = l }
}

// NewDirect creates a Direct fetcher. timeout bounds the whole request,
// in addition to any deadline carried by the context.
func NewDirect(timeout time.Duration, opts ...DirectOption) *Direct {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Direct{
		ua:     DefaultUserAgent,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
	}
	if d.blockLocal {
		d.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return checkPublicHost(req.Context(), req.URL.Hostname())
		}
	}
	return d
}

// Method implements Fetcher.
func (d *Direct) Method() string { return MethodDirect }

// CloseIdleConnections releases pooled connections.
func (d *Direct) CloseIdleConnections() { d.client.CloseIdleConnections() }

// Fetch implements Fetcher.
func (d *Direct) Fetch(ctx context.Context, pageURL, _ string) (*Page, error) {
	u, err := ValidateURL(MethodDirect, pageURL)
	if err != nil {
		return nil, err
	}
	if d.blockLocal {
		if err := checkPublicHost(ctx, u.Hostname()); err != nil {
			if errors.Is(err, errPrivateHost) {
				return nil, fatal(MethodDirect, "blocked address", err)
			}
			return nil, classifyNetError(MethodDirect, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fatal(MethodDirect, "malformed URL", err)
	}
	req.Header.Set("User-Agent", d.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, errPrivateHost) {
			return nil, fatal(MethodDirect, "blocked redirect", err)
		}
		return nil, classifyNetError(MethodDirect, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classifyNetError(MethodDirect, err)
	}
	markup := string(body)

	d.logger.Debug("fetcher: fetched",
		"url", pageURL, "status", resp.StatusCode, "size", len(body))

	if f := classifyStatus(resp.StatusCode, markup, resp.Header); f != nil {
		return nil, f
	}

	media := mediaType(resp.Header, body)
	switch media {
	case MediaHTML:
	case MediaText:
		markup = textMarkup("", markup)
	case MediaPDF:
		if markup, err = pdfMarkup(body); err != nil {
			return nil, fatal(MethodDirect, "unreadable PDF", err)
		}
	default:
		return nil, fatal(MethodDirect, "unsupported content type "+media, nil)
	}

	switch v := Assess(markup); v {
	case VerdictOK:
	case VerdictBlocked:
		return nil, recoverable(MethodDirect, "challenge page detected", nil)
	case VerdictShell:
		return nil, recoverable(MethodDirect, "page needs script execution", nil)
	default:
		return nil, recoverable(MethodDirect, "empty content", nil)
	}

	return &Page{
		URL:    resp.Request.URL.String(),
		Markup: markup,
		Status: resp.StatusCode,
		Method: MethodDirect,
		Media:  media,
	}, nil
}

// classifyStatus maps a non-2xx status to a Failure. 429 and 5xx are
// recoverable. 401/403 are recoverable only when the response looks like a
// bot challenge; any other 4xx is fatal.
func classifyStatus(code int, markup string, h http.Header) *Failure {
	if code >= 200 && code < 300 {
		return nil
	}
	reason := fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code))
	f := &Failure{Method: MethodDirect, Status: code, Reason: reason}

	switch {
	case code == http.StatusTooManyRequests:
		f.Kind = Recoverable
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		if Assess(markup) == VerdictBlocked || isBotShield(h) {
			f.Kind = Recoverable
		} else {
			f.Kind = Fatal
		}
	case code >= 400 && code < 500:
		f.Kind = Fatal
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		f.Kind = Recoverable
		f.Transient = true
	default:
		f.Kind = Recoverable
	}
	return f
}

// isBotShield recognises CDN bot-protection responses by their headers.
func isBotShield(h http.Header) bool {
	if h.Get("cf-mitigated") != "" || h.Get("x-datadome") != "" {
		return true
	}
	server := strings.ToLower(h.Get("Server"))
	return strings.Contains(server, "cloudflare") || strings.Contains(server, "akamaighost") ||
		strings.Contains(server, "ddos-guard")
}

var errPrivateHost = errors.New("address is not publicly routable")

// checkPublicHost resolves host and rejects private destinations.
func checkPublicHost(ctx context.Context, host string) error {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if ip.IP.IsLoopback() || ip.IP.IsPrivate() || ip.IP.IsLinkLocalUnicast() ||
			ip.IP.IsLinkLocalMulticast() || ip.IP.IsUnspecified() {
			return fmt.Errorf("%w: %s resolves to %s", errPrivateHost, host, ip.IP)
		}
	}
	return nil
}
