package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("session not found")

// FormError is a one-shot message rendered in an error summary, linking to a field.
type FormError struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Data is everything persisted for one browser session.
type Data struct {
	TempEmail     string            `json:"temp_email,omitempty"`
	Token         string            `json:"token,omitempty"`
	Email         string            `json:"email,omitempty"`
	PendingErrors []FormError       `json:"pending_errors,omitempty"`
	CSRFToken     string            `json:"csrf_token,omitempty"`
	ReturnTo      string            `json:"return_to,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (d *Data) empty() bool {
	return d.TempEmail == "" && d.Token == "" && d.Email == "" &&
		len(d.PendingErrors) == 0 && d.CSRFToken == "" && d.ReturnTo == "" && len(d.Extra) == 0
}

// Session is the request-scoped handle on a stored session.
// Handlers mutate Data directly; the Manager persists changes.
type Session struct {
	ID   string
	Data Data

	isNew      bool
	destroyed  bool
	regenerate bool
}

// AddError queues a message for the next page view.
func (s *Session) AddError(text, href string) {
	s.Data.PendingErrors = append(s.Data.PendingErrors, FormError{Text: text, Href: href})
}

// PopErrors returns the pending errors and clears them.
func (s *Session) PopErrors() []FormError {
	errs := s.Data.PendingErrors
	s.Data.PendingErrors = nil
	return errs
}

func (s *Session) Get(key string) string {
	return s.Data.Extra[key]
}

func (s *Session) Set(key, value string) {
	if s.Data.Extra == nil {
		s.Data.Extra = make(map[string]string)
	}
	s.Data.Extra[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.Data.Extra, key)
}

// Destroy drops the stored session and expires the cookie when the response is written.
func (s *Session) Destroy() {
	s.destroyed = true
	s.Data = Data{}
}

func (s *Session) Destroyed() bool {
	return s.destroyed
}

// Regenerate moves the data to a fresh session id on commit.
func (s *Session) Regenerate() {
	s.regenerate = true
}

func (s *Session) IsNew() bool {
	return s.isNew
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session loaded by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
