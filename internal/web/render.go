package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/auth"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/security"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = []string{"login", "password", "tasks", "task", "new_task", "error"}

var funcs = template.FuncMap{
	"statusLabel": statusLabel,
	"statusClass": func(s string) string { return strings.ReplaceAll(strings.ToLower(s), "_", "-") },
}

func statusLabel(s string) string {
	switch s {
	case backend.StatusTodo:
		return "To do"
	case backend.StatusInProgress:
		return "In progress"
	case backend.StatusDone:
		return "Done"
	}
	return s
}

// view is the data every template receives.
type view struct {
	Title    string
	CSRF     string
	Errors   []session.FormError
	SignedIn bool
	Email    string
	Data     any
}

type errorView struct {
	Heading string
	Message string
	Detail  string
}

// Buffer pool for rendered pages
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

func parseTemplates() (map[string]*template.Template, error) {
	set := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		set[name] = t
	}
	return set, nil
}

func staticHandler() http.Handler {
	sub, _ := fs.Sub(staticFS, "static")
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// render executes a page into a buffer first so a template error never leaves a half-written response.
// Pending errors are consumed here.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	v := view{Title: title, Data: data}
	if sess := session.FromContext(r.Context()); sess != nil {
		v.CSRF = security.CSRFToken(sess)
		v.Errors = sess.PopErrors()
		if auth.StateOf(sess) == auth.Authenticated {
			v.SignedIn = true
			v.Email = sess.Data.Email
		}
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := s.templates[name].ExecuteTemplate(buf, "layout", v); err != nil {
		httputil.GetLogger(r.Context()).Error().Err(err).Str("template", name).Msg("template render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) errorPage(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error", http.StatusText(status), errorView{
		Heading: http.StatusText(status),
		Message: message,
	})
}

// reject is the security.Rejecter for HTML pages. Messages stay generic.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	msg := "You do not have permission to do that."
	switch status {
	case http.StatusTooManyRequests:
		msg = "Too many requests from this address, please try again later."
	case http.StatusBadRequest:
		msg = "The request could not be understood."
	case http.StatusUnsupportedMediaType:
		msg = "The request format is not supported."
	case http.StatusRequestEntityTooLarge:
		msg = "The request was too large."
	case http.StatusForbidden:
		if reason == "csrf" {
			msg = "Your form has expired. Go back, refresh the page and try again."
		}
	}
	s.errorPage(w, r, status, msg)
}

// panicPage is the security.ErrorPage for recovered panics.
func (s *Server) panicPage(w http.ResponseWriter, r *http.Request, detail string) {
	s.render(w, r, http.StatusInternalServerError, "error", "Internal Server Error", errorView{
		Heading: "Sorry, there is a problem with the service",
		Message: "Try again later.",
		Detail:  detail,
	})
}
