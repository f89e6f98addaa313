package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
)

const (
	CSRFField  = "_csrf"
	CSRFHeader = "X-CSRF-Token"
)

// CSRFToken returns the session's token, creating one on first use.
func CSRFToken(s *session.Session) string {
	if s.Data.CSRFToken == "" {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			panic("csrf: crypto/rand failed: " + err.Error())
		}
		s.Data.CSRFToken = hex.EncodeToString(b[:])
	}
	return s.Data.CSRFToken
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// CSRF requires the session token on state-changing requests, from the
// form field or the header. Must run after the session middleware.
func CSRF(maxBody int64, rej Rejecter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !stateChanging(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			s := session.FromContext(r.Context())
			want := ""
			if s != nil {
				want = s.Data.CSRFToken
			}

			got := r.Header.Get(CSRFHeader)
			if got == "" {
				if err := parseForm(r, maxBody); err != nil {
					auditLog(r, "csrf").Err(err).Msg("form parse failed")
				}
				got = r.PostFormValue(CSRFField)
			}

			if want == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				auditLog(r, "csrf").Bool("token_present", got != "").Msg("invalid csrf token")
				reject(rej, w, r, http.StatusForbidden, "csrf")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
