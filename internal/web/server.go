// Package web wires the router, the page handlers and the security pipeline.
package web

import (
	"html/template"
	"net/http"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/auth"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/rate"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/security"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Backend  *backend.Client
	Sessions *session.Manager
	Limiter  rate.Limiter
	// AnonKey enables client address anonymisation in access logs when non-nil.
	AnonKey []byte
	// Metrics serves /metrics; omitted when nil.
	Metrics http.Handler
}

type Server struct {
	deps      Deps
	flow      *auth.Flow
	templates map[string]*template.Template
	router    *mux.Router
}

func New(d Deps) (*Server, error) {
	t, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		deps:      d,
		flow:      auth.NewFlow(d.Backend),
		templates: t,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(true)

	r.Handle("/", http.RedirectHandler(auth.HomePath, http.StatusFound)).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.Handle("/login", auth.GuestOnly(http.HandlerFunc(s.handleLoginPage))).Methods(http.MethodGet)
	a.Handle("/validate-email", auth.GuestOnly(http.HandlerFunc(s.handleValidateEmail))).Methods(http.MethodPost)
	a.Handle("/password", auth.PendingEmailOnly(http.HandlerFunc(s.handlePasswordPage))).Methods(http.MethodGet)
	a.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	a.HandleFunc("/back", s.handleBack).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	t := r.PathPrefix("/tasks").Subrouter()
	t.Use(auth.Protect)
	t.HandleFunc("", s.handleListTasks).Methods(http.MethodGet)
	t.HandleFunc("/new", s.handleNewTask).Methods(http.MethodGet)
	t.HandleFunc("", s.handleCreateTask).Methods(http.MethodPost)
	t.HandleFunc("/{id:[0-9]+}", s.handleTask).Methods(http.MethodGet)
	t.HandleFunc("/{id:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	t.HandleFunc("/{id:[0-9]+}/remove", s.handleRemoveTask).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorPage(w, r, http.StatusNotFound, "If you typed the web address, check it is correct.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorPage(w, r, http.StatusMethodNotAllowed, "That action is not available here.")
	})
	return r
}

// Handler returns the router behind the full request pipeline, outermost first.
func (s *Server) Handler() http.Handler {
	cfg := s.deps.Config
	maxBody := cfg.Security.MaxBodyBytes
	return security.Chain(
		httputil.RequestIDMiddleware(s.deps.Logger, cfg.Server.TrustedProxyCIDRs),
		security.AccessLog(s.deps.AnonKey),
		security.Recover(cfg.Security.DevMode, s.panicPage),
		security.Headers,
		security.RateLimit(s.deps.Limiter, s.reject),
		s.deps.Sessions.Middleware,
		security.CSRF(maxBody, s.reject),
		security.ContentType(cfg.Security.AllowedContentTypes, s.reject),
		security.Classify(maxBody, s.reject),
	)(s.router)
}
