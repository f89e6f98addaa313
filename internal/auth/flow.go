package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/sanitize"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
)

const (
	MsgEnterEmail      = "Enter your email address"
	MsgEnterPassword   = "Enter your password"
	MsgInvalidPassword = "Invalid password"
	MsgUnavailable     = "The service is unavailable. Please try again."
	MsgEmailFallback   = "Unable to verify your email address. Please try again."
	MsgSignInFallback  = "Unable to sign in. Please try again."
	msgTooMany         = "Too many attempts. Please try again"

	EmailAnchor    = "#email"
	PasswordAnchor = "#password"
)

// Authenticator is the part of the backend client the flow needs.
type Authenticator interface {
	ValidateEmail(ctx context.Context, email string) (*backend.ValidateEmailResult, error)
	Authenticate(ctx context.Context, email, password string) (*backend.AuthResult, error)
	Logout(ctx context.Context, token string) (*backend.MessageResult, error)
}

// Flow drives the session through the sign in states. Every method returns the path to redirect to.
type Flow struct {
	api Authenticator
}

func NewFlow(api Authenticator) *Flow {
	return &Flow{api: api}
}

// SubmitEmail moves ANONYMOUS to EMAIL_PENDING when the backend accepts the address.
func (f *Flow) SubmitEmail(ctx context.Context, s *session.Session, email string) string {
	logger := httputil.GetLogger(ctx)
	email = sanitize.Input(email)
	if email == "" {
		s.AddError(MsgEnterEmail, EmailAnchor)
		record("validate_email", "missing")
		return LoginPath
	}

	res, err := f.api.ValidateEmail(ctx, email)
	if err != nil {
		logger.Warn().Err(err).Int("status", backend.StatusOf(err)).Msg("email validation failed")
		s.AddError(errorMessage(err, MsgEmailFallback), EmailAnchor)
		record("validate_email", outcome(err))
		return LoginPath
	}
	if !res.Valid {
		msg := res.Message
		if msg == "" {
			msg = MsgEmailFallback
		}
		s.AddError(msg, EmailAnchor)
		record("validate_email", "rejected")
		return LoginPath
	}

	s.Data.TempEmail = email
	record("validate_email", "ok")
	logger.Info().Msg("email validated")
	return PasswordPath
}

// SubmitPassword moves EMAIL_PENDING to AUTHENTICATED. The session id is rotated on success.
func (f *Flow) SubmitPassword(ctx context.Context, s *session.Session, password string) string {
	logger := httputil.GetLogger(ctx)
	if d := RequirePendingEmail(s); !d.Allow {
		return d.Redirect
	}
	if password == "" {
		s.AddError(MsgEnterPassword, PasswordAnchor)
		record("authenticate", "missing")
		return PasswordPath
	}

	res, err := f.api.Authenticate(ctx, s.Data.TempEmail, password)
	if err != nil {
		msg := errorMessage(err, MsgSignInFallback)
		if backend.StatusOf(err) == http.StatusUnauthorized {
			msg = MsgInvalidPassword
		}
		logger.Warn().Err(err).Int("status", backend.StatusOf(err)).Msg("authentication failed")
		s.AddError(msg, PasswordAnchor)
		record("authenticate", outcome(err))
		return PasswordPath
	}

	s.Data.Token = res.Token
	s.Data.Email = s.Data.TempEmail
	s.Data.TempEmail = ""
	s.Data.PendingErrors = nil
	s.Regenerate()

	dest := httputil.LocalRedirect(s.Data.ReturnTo, HomePath)
	s.Data.ReturnTo = ""
	record("authenticate", "ok")
	logger.Info().Msg("user authenticated")
	return dest
}

// Back abandons the pending email without contacting the backend.
func (f *Flow) Back(s *session.Session) string {
	s.Data.TempEmail = ""
	record("back", "ok")
	return LoginPath
}

// Logout invalidates the token remotely when possible, then always destroys the session.
func (f *Flow) Logout(ctx context.Context, s *session.Session) string {
	if tok := s.Data.Token; tok != "" {
		if _, err := f.api.Logout(ctx, tok); err != nil {
			httputil.GetLogger(ctx).Warn().Err(err).Int("status", backend.StatusOf(err)).Msg("remote logout failed, clearing session anyway")
			record("logout", "remote_failed")
		}
	}
	s.Destroy()
	record("logout", "ok")
	return LoginPath
}

func errorMessage(err error, fallback string) string {
	var re *backend.RemoteError
	switch {
	case errors.As(err, &re) && re.StatusCode == http.StatusTooManyRequests:
		return TooManyAttempts(re.RetryAfter)
	case errors.Is(err, backend.ErrNetwork):
		return MsgUnavailable
	case errors.As(err, &re) && re.Message != "" && re.StatusCode < 500:
		return re.Message
	}
	return fallback
}

// TooManyAttempts renders the rate limit message, naming the wait when retryAfter is in seconds.
func TooManyAttempts(retryAfter string) string {
	secs, err := strconv.Atoi(retryAfter)
	if err != nil || secs <= 0 {
		return msgTooMany + " later."
	}
	mins := (secs + 59) / 60
	if mins == 1 {
		return msgTooMany + " in 1 minute."
	}
	return fmt.Sprintf("%s in %d minutes.", msgTooMany, mins)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, backend.ErrValidation):
		return "invalid"
	case errors.Is(err, backend.ErrNetwork):
		return "network"
	}
	if code := backend.StatusOf(err); code != 0 {
		return strconv.Itoa(code)
	}
	return "error"
}

func record(transition, result string) {
	metrics.AuthTransitions.WithLabelValues(transition, result).Inc()
}
