package security

import (
	"net/http"
	"strings"
)

var DefaultContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ContentType rejects POST, PUT and PATCH requests without a Content-Type (400)
// or with one outside allowed (415). Matching is by substring, so parameters
// such as charset or boundary do not matter.
func ContentType(allowed []string, rej Rejecter) Middleware {
	if len(allowed) == 0 {
		allowed = DefaultContentTypes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}
			ct := r.Header.Get("Content-Type")
			if ct == "" {
				auditLog(r, "content_type_missing").Msg("missing content type")
				reject(rej, w, r, http.StatusBadRequest, "content_type_missing")
				return
			}
			lower := strings.ToLower(ct)
			for _, a := range allowed {
				if strings.Contains(lower, a) {
					next.ServeHTTP(w, r)
					return
				}
			}
			auditLog(r, "content_type").Str("content_type", ct).Msg("unsupported content type")
			reject(rej, w, r, http.StatusUnsupportedMediaType, "content_type")
		})
	}
}
