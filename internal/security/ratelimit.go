package security

import (
	"math"
	"net/http"
	"strconv"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/rate"
)

const msgRateLimited = "Too many requests from this address, please try again later."

// RateLimit counts requests per client address. Over the limit the request gets a 429.
// A failing limiter store lets the request through.
func RateLimit(l rate.Limiter, rej Rejecter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.ClientIP(r)
			d, err := l.Allow(r.Context(), ip)
			if err != nil {
				httputil.GetLogger(r.Context()).Error().Err(err).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			h.Set("Retry-After", strconv.Itoa(secs))
			auditLog(r, "rate_limit").Int("count", d.Count).Int("limit", d.Limit).Msg(msgRateLimited)
			reject(rej, w, r, http.StatusTooManyRequests, "rate_limit")
		})
	}
}
