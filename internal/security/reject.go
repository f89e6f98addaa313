// Package security holds the request interceptors that run before any route handler.
package security

import (
	"net/http"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"
	"github.com/rs/zerolog"
)

// Middleware wraps an http.Handler and returns a new handler
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares in the order given:
// Chain(mw1, mw2, mw3)(handler) => mw1(mw2(mw3(handler)))
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Rejecter writes the response for a request stopped by an interceptor.
// reason is a short machine label such as "csrf" or "rate_limit".
type Rejecter func(w http.ResponseWriter, r *http.Request, status int, reason string)

// PlainRejecter writes the status text as the body.
func PlainRejecter(w http.ResponseWriter, _ *http.Request, status int, _ string) {
	http.Error(w, http.StatusText(status), status)
}

// reject counts the rejection and hands off to the Rejecter. Callers log the discriminating detail.
func reject(rej Rejecter, w http.ResponseWriter, r *http.Request, status int, reason string) {
	metrics.SecurityRejections.WithLabelValues(reason).Inc()
	if rej == nil {
		rej = PlainRejecter
	}
	rej(w, r, status, reason)
}

func auditLog(r *http.Request, reason string) *zerolog.Event {
	return httputil.GetLogger(r.Context()).Warn().
		Str("reason", reason).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("client_ip", httputil.ClientIP(r))
}
