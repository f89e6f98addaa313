package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/token"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager binds a Store to the signed session cookie.
type Manager struct {
	store   Store
	keyring *token.Keyring
	cookie  config.CookieCfg
	ttl     time.Duration
}

func NewManager(store Store, kr *token.Keyring, cookie config.CookieCfg, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	return &Manager{store: store, keyring: kr, cookie: cookie, ttl: idleTTL}
}

// Middleware loads the session into the request context and persists it
// just before the response headers are written.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := httputil.GetLogger(r.Context())
		s, err := m.load(r)
		if err != nil {
			logger.Error().Err(err).Msg("session load failed")
			http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		sw := &commitWriter{ResponseWriter: w, m: m, r: r, s: s}
		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), s)))
		sw.finish()
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return m.fresh(), nil
	}
	claims, err := m.keyring.Verify(c.Value)
	if err != nil {
		httputil.GetLogger(r.Context()).Debug().Err(err).Msg("session ticket rejected")
		return m.fresh(), nil
	}
	d, err := m.store.Get(r.Context(), claims.SID)
	if errors.Is(err, ErrNotFound) {
		return m.fresh(), nil
	}
	if err != nil {
		return nil, err
	}
	return &Session{ID: claims.SID, Data: d}, nil
}

func (m *Manager) fresh() *Session {
	return &Session{ID: uuid.NewString(), isNew: true}
}

// commit persists the session and sets or expires the cookie. It runs once, before headers are sent.
func (m *Manager) commit(w http.ResponseWriter, r *http.Request, s *Session) []byte {
	ctx := r.Context()
	logger := httputil.GetLogger(ctx)

	if s.destroyed {
		if !s.IsNew() {
			if err := m.store.Destroy(ctx, s.ID); err != nil {
				logger.Error().Err(err).Msg("session destroy failed")
			}
		}
		http.SetCookie(w, httputil.BuildCookie(m.cookie, "", -1))
		return nil
	}

	rotated := s.regenerate
	if s.regenerate {
		if !s.IsNew() {
			if err := m.store.Destroy(ctx, s.ID); err != nil {
				logger.Warn().Err(err).Msg("old session destroy failed")
			}
		}
		s.ID = uuid.NewString()
		s.isNew = true
		s.regenerate = false
	}

	// Anonymous visitors with nothing to remember get no cookie.
	if s.IsNew() && s.Data.empty() {
		return nil
	}
	if s.IsNew() {
		logger.Debug().Bool("rotated", rotated).Msg("session started")
	}

	snap := m.save(logger, r, s)
	tok, err := m.keyring.Sign(s.ID, m.ttl)
	if err != nil {
		logger.Error().Err(err).Msg("session ticket sign failed")
		return snap
	}
	http.SetCookie(w, httputil.BuildCookie(m.cookie, tok, int(m.ttl/time.Second)))
	return snap
}

func (m *Manager) save(logger *zerolog.Logger, r *http.Request, s *Session) []byte {
	snap, _ := json.Marshal(s.Data)
	if err := m.store.Save(r.Context(), s.ID, s.Data, m.ttl); err != nil {
		logger.Error().Err(err).Msg("session save failed")
		return nil
	}
	return snap
}

type commitWriter struct {
	http.ResponseWriter
	m         *Manager
	r         *http.Request
	s         *Session
	committed bool
	snapshot  []byte // encoded data as of commit; nil when nothing was saved
}

func (cw *commitWriter) commitOnce() {
	if cw.committed {
		return
	}
	cw.committed = true
	cw.snapshot = cw.m.commit(cw.ResponseWriter, cw.r, cw.s)
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.commitOnce()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.commitOnce()
	return cw.ResponseWriter.Write(b)
}

func (cw *commitWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// finish covers handlers that wrote nothing and changes made after the body was written.
func (cw *commitWriter) finish() {
	if !cw.committed {
		cw.commitOnce()
		return
	}
	if cw.snapshot == nil || cw.s.destroyed {
		return
	}
	now, _ := json.Marshal(cw.s.Data)
	if !bytes.Equal(now, cw.snapshot) {
		cw.m.save(httputil.GetLogger(cw.r.Context()), cw.r, cw.s)
	}
}
