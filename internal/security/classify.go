package security

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/classifier"
)

// Classify blocks requests the classifier flags. Form bodies are inspected as
// a JSON map of their fields; other bodies raw, then restored for the handler.
func Classify(maxBody int64, rej Rejecter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := ""
			if q := r.URL.Query(); len(q) > 0 {
				query = toJSON(q)
			}

			body, err := inspectableBody(r, maxBody)
			if err != nil {
				auditLog(r, "body").Err(err).Msg("unreadable request body")
				reject(rej, w, r, http.StatusRequestEntityTooLarge, "body")
				return
			}

			res := classifier.Classify(r.URL.Path, query, body)
			if res.Suspicious {
				auditLog(r, "suspicious").
					Str("rule", res.Rule).
					Str("pattern", res.Pattern).
					Str("match", res.Match).
					Strs("rules", classifier.Matches(r.URL.Path, query, body)).
					Str("user_agent", r.UserAgent()).
					Msg("suspicious request blocked")
				reject(rej, w, r, http.StatusForbidden, "suspicious")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func inspectableBody(r *http.Request, maxBody int64) (string, error) {
	if form, _ := isForm(r); form {
		if err := parseForm(r, maxBody); err != nil {
			return "", err
		}
		if len(r.PostForm) == 0 {
			return "", nil
		}
		return toJSON(r.PostForm), nil
	}
	b, err := peekBody(r, maxBody)
	return string(b), err
}

// toJSON keeps < and > literal so the markup rules can see them.
func toJSON(v url.Values) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string][]string(v))
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
