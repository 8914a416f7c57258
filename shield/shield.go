// Package shield provides the HTTP middleware of the scrapeall JSON API:
// security headers, body limits, request tracing, HEAD handling and
// per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(1 << 20) {
//	    r.Use(mw)
//	}
//	r.With(shield.NewRateLimiter(shield.Rule{...}).Middleware).Post("/api/scrape", h)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for a JSON API.
// Middleware is ordered: HeadToGet → SecurityHeaders → MaxJSONBody → TraceID.
func DefaultAPIStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(maxBody),
		TraceID,
	}
}
