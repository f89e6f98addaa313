package security

import (
	"net/http"
	"strconv"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/util"
)

// AccessLog records every response once it is finished, whichever step produced it.
// With a non-nil anonKey the client address is logged as an HMAC of its network prefix.
func AccessLog(anonKey []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			metrics.HTTPRequests.WithLabelValues(methodLabel(r.Method), strconv.Itoa(sw.status)).Inc()
			metrics.HTTPDuration.Observe(dur.Seconds())

			ip := httputil.ClientIP(r)
			if anonKey != nil {
				ip = util.HMACIP(ip, anonKey)
			}
			logger := httputil.GetLogger(r.Context())
			ev := logger.Info()
			if sw.status >= 500 {
				ev = logger.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("duration", dur).
				Str("client_ip", ip).
				Str("user_agent", r.UserAgent()).
				Msg("http_request")
		})
	}
}

// methodLabel bounds the method label; the method token is client-controlled
// and this middleware runs before the rate limiter.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return m
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
