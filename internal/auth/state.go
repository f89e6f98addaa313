// Package auth implements the two-step sign in flow and the guards for protected pages.
package auth

import (
	"net/http"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
)

const (
	LoginPath    = "/auth/login"
	PasswordPath = "/auth/password"
	HomePath     = "/tasks"
)

// State is derived from the session, never stored.
type State int

const (
	Anonymous State = iota
	EmailPending
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case EmailPending:
		return "email_pending"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// StateOf reports the login state. A token always wins over a pending email.
func StateOf(s *session.Session) State {
	switch {
	case s == nil:
		return Anonymous
	case s.Data.Token != "":
		return Authenticated
	case s.Data.TempEmail != "":
		return EmailPending
	default:
		return Anonymous
	}
}

// Decision is the outcome of a guard: allow, or redirect to Redirect.
type Decision struct {
	Allow    bool
	Redirect string
}

// RequireAuth allows only sessions holding a token.
func RequireAuth(s *session.Session) Decision {
	if StateOf(s) == Authenticated {
		return Decision{Allow: true}
	}
	return Decision{Redirect: LoginPath}
}

// RedirectIfAuthenticated keeps signed in users away from the login pages.
func RedirectIfAuthenticated(s *session.Session) Decision {
	if StateOf(s) == Authenticated {
		return Decision{Redirect: HomePath}
	}
	return Decision{Allow: true}
}

// RequirePendingEmail guards the password step against skipping the email step.
func RequirePendingEmail(s *session.Session) Decision {
	switch StateOf(s) {
	case EmailPending:
		return Decision{Allow: true}
	case Authenticated:
		return Decision{Redirect: HomePath}
	default:
		return Decision{Redirect: LoginPath}
	}
}

// ClearAuth removes the token and email, leaving every other key in place.
func ClearAuth(s *session.Session) {
	if s == nil {
		return
	}
	s.Data.Token = ""
	s.Data.Email = ""
}

// ---- Middleware ----

// Protect wraps handlers that need a signed in user. The requested page is
// remembered for GETs so the user lands there after signing in.
func Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		d := RequireAuth(s)
		if d.Allow {
			next.ServeHTTP(w, r)
			return
		}
		if s != nil && r.Method == http.MethodGet {
			s.Data.ReturnTo = r.URL.RequestURI()
		}
		http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
	})
}

// GuestOnly wraps the login pages.
func GuestOnly(next http.Handler) http.Handler {
	return guard(RedirectIfAuthenticated, next)
}

// PendingEmailOnly wraps the password step.
func PendingEmailOnly(next http.Handler) http.Handler {
	return guard(RequirePendingEmail, next)
}

func guard(check func(*session.Session) Decision, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := check(session.FromContext(r.Context()))
		if !d.Allow {
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
