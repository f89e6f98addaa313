package web

import (
	"net/http"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/auth"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login", "Sign in", nil)
}

func (s *Server) handlePasswordPage(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	s.render(w, r, http.StatusOK, "password", "Enter your password", struct{ PendingEmail string }{sess.Data.TempEmail})
}

func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	vals, err := input(r)
	if err != nil {
		httputil.GetLogger(r.Context()).Warn().Err(err).Msg("unreadable login form")
		s.errorPage(w, r, http.StatusBadRequest, "The request could not be understood.")
		return
	}
	next := s.flow.SubmitEmail(r.Context(), sess, vals.Get("email"))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	vals, err := input(r)
	if err != nil {
		httputil.GetLogger(r.Context()).Warn().Err(err).Msg("unreadable password form")
		s.errorPage(w, r, http.StatusBadRequest, "The request could not be understood.")
		return
	}
	next := s.flow.SubmitPassword(r.Context(), sess, vals.Get("password"))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.flow.Back(session.FromContext(r.Context())), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.flow.Logout(r.Context(), session.FromContext(r.Context())), http.StatusSeeOther)
}

// signOutAfter401 drops credentials the backend no longer accepts.
func (s *Server) signOutAfter401(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	httputil.GetLogger(r.Context()).Info().Msg("backend rejected token, clearing auth")
	auth.ClearAuth(sess)
	sess.AddError("Your session has expired. Sign in again.", "#email")
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}
