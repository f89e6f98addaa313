package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/rate"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.RawURLEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

// fakeAPI stands in for the case/task management backend.
type fakeAPI struct {
	mu          sync.Mutex
	authStatus  int
	retryAfter  string
	taskStatus  int
	logoutCalls int
	tasks       []backend.Task
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON := func(code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/health":
		writeJSON(200, map[string]string{"status": "UP"})
	case r.URL.Path == "/api/auth/validate-email":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "user@example.com" {
			writeJSON(404, map[string]string{"message": "Email address not recognised"})
			return
		}
		writeJSON(200, map[string]any{"valid": true, "message": "Email validated"})
	case r.URL.Path == "/api/auth/authenticate":
		if f.authStatus != 0 {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			writeJSON(f.authStatus, map[string]string{"error": "nope"})
			return
		}
		writeJSON(200, map[string]string{"token": "abc", "message": "Authenticated"})
	case r.URL.Path == "/api/auth/logout":
		f.logoutCalls++
		writeJSON(200, map[string]string{"message": "Logged out"})
	case strings.HasPrefix(r.URL.Path, "/api/tasks"):
		if r.Header.Get("Authorization") != "Bearer abc" {
			writeJSON(401, map[string]string{"message": "Unauthorized"})
			return
		}
		if f.taskStatus != 0 {
			writeJSON(f.taskStatus, map[string]string{"message": "backend says no"})
			return
		}
		f.serveTasks(w, r, writeJSON)
	default:
		writeJSON(404, map[string]string{"message": "not found"})
	}
}

func (f *fakeAPI) serveTasks(w http.ResponseWriter, r *http.Request, writeJSON func(int, any)) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/tasks":
		writeJSON(200, f.tasks)
	case r.Method == http.MethodPost && r.URL.Path == "/api/tasks":
		var nt backend.NewTask
		json.NewDecoder(r.Body).Decode(&nt)
		if nt.DueDate == "" {
			writeJSON(400, map[string]any{
				"message":          "Validation failed",
				"validationErrors": map[string]string{"dueDate": "Enter a due date"},
			})
			return
		}
		task := backend.Task{ID: int64(len(f.tasks) + 1), Title: nt.Title, Description: nt.Description, Status: nt.Status, DueDate: nt.DueDate}
		f.tasks = append(f.tasks, task)
		writeJSON(201, task)
	default:
		for i, task := range f.tasks {
			base := fmt.Sprintf("/api/tasks/%d", task.ID)
			switch {
			case r.Method == http.MethodGet && r.URL.Path == base:
				writeJSON(200, task)
				return
			case r.Method == http.MethodPatch && r.URL.Path == base+"/status":
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				f.tasks[i].Status = body["status"]
				writeJSON(200, f.tasks[i])
				return
			case r.Method == http.MethodDelete && r.URL.Path == base:
				f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
				w.WriteHeader(204)
				return
			}
		}
		writeJSON(404, map[string]string{"message": "Task not found"})
	}
}

func (f *fakeAPI) set(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}

type app struct {
	t       *testing.T
	srv     *httptest.Server
	client  *http.Client
	api     *fakeAPI
	store   *session.MemoryStore
	keyring *token.Keyring
	handler http.Handler
}

func newApp(t *testing.T, rateMax int) *app {
	t.Helper()
	api := &fakeAPI{tasks: []backend.Task{{ID: 1, Title: "Review case bundle", Status: backend.StatusTodo, DueDate: "2026-11-01"}}}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
backend:
  base_url: %s
  timeout_ms: 2000
session:
  current_kid: k1
  keys:
    k1: %s
rate_limit:
  max: %d
`, apiSrv.URL, testKey, rateMax)))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	kr, err := token.NewKeyring("HS256", cfg.Session.Keys, cfg.Session.CurrentKID, cfg.Session.Issuer, 0)
	require.NoError(t, err)
	store := session.NewMemoryStore(cfg.Session.Capacity, cfg.SessionIdleTTL())

	s, err := New(Deps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Backend:  backend.New(cfg.Backend),
		Sessions: session.NewManager(store, kr, cfg.Session.Cookie, cfg.SessionIdleTTL()),
		Limiter:  rate.NewWindow(cfg.RateLimit.Max, cfg.RateWindow()),
		Metrics:  http.NotFoundHandler(),
	})
	require.NoError(t, err)

	h := s.Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &app{t: t, srv: srv, client: client, api: api, store: store, keyring: kr, handler: h}
}

func (a *app) get(path string) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (a *app) postForm(path string, vals url.Values) *http.Response {
	a.t.Helper()
	resp, err := a.client.PostForm(a.srv.URL+path, vals)
	require.NoError(a.t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

var csrfRE = regexp.MustCompile(`name="_csrf" value="([0-9a-f]{64})"`)

// csrf loads the login page and returns the form token.
func (a *app) csrf(page string) string {
	a.t.Helper()
	_, body := a.get(page)
	m := csrfRE.FindStringSubmatch(body)
	require.Len(a.t, m, 2, "no csrf token on %s", page)
	return m[1]
}

func (a *app) session() session.Data {
	a.t.Helper()
	u, _ := url.Parse(a.srv.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name != "hmcts_session" {
			continue
		}
		claims, err := a.keyring.Verify(c.Value)
		require.NoError(a.t, err)
		d, err := a.store.Get(context.Background(), claims.SID)
		require.NoError(a.t, err)
		return d
	}
	a.t.Fatal("no session cookie")
	return session.Data{}
}

func (a *app) signIn() string {
	a.t.Helper()
	tok := a.csrf("/auth/login")
	resp := a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})
	require.Equal(a.t, "/auth/password", resp.Header.Get("Location"))
	resp = a.postForm("/auth/authenticate", url.Values{"_csrf": {tok}, "password": {"correct"}})
	require.Equal(a.t, "/tasks", resp.Header.Get("Location"))
	return tok
}

func TestLoginFlow(t *testing.T) {
	a := newApp(t, 100)

	resp, _ := a.get("/tasks")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))

	tok := a.csrf("/auth/login")

	resp = a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth/password", resp.Header.Get("Location"))
	assert.Equal(t, "user@example.com", a.session().TempEmail)

	_, body := a.get("/auth/password")
	assert.Contains(t, body, "user@example.com")

	resp = a.postForm("/auth/authenticate", url.Values{"_csrf": {tok}, "password": {"correct"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/tasks", resp.Header.Get("Location"))
	sess := a.session()
	assert.Equal(t, "abc", sess.Token)
	assert.Empty(t, sess.TempEmail)
	assert.Equal(t, "user@example.com", sess.Email)

	resp, body = a.get("/tasks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Review case bundle")

	// Already signed in: login page bounces to tasks
	resp, _ = a.get("/auth/login")
	assert.Equal(t, "/tasks", resp.Header.Get("Location"))

	resp = a.postForm("/auth/logout", url.Values{"_csrf": {tok}})
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
	assert.Equal(t, 1, a.api.logouts())

	resp, _ = a.get("/tasks")
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
}

func TestLogin_ReturnsToRequestedPage(t *testing.T) {
	a := newApp(t, 100)
	a.get("/tasks/1")
	tok := a.csrf("/auth/login")
	a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})
	resp := a.postForm("/auth/authenticate", url.Values{"_csrf": {tok}, "password": {"correct"}})
	assert.Equal(t, "/tasks/1", resp.Header.Get("Location"))
}

func TestPasswordStepRequiresEmail(t *testing.T) {
	a := newApp(t, 100)
	resp, _ := a.get("/auth/password")
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
}

func TestValidateEmail_Unknown(t *testing.T) {
	a := newApp(t, 100)
	tok := a.csrf("/auth/login")
	resp := a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"nobody@example.com"}})
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))

	_, body := a.get("/auth/login")
	assert.Contains(t, body, "Email address not recognised")
	assert.Contains(t, body, `href="#email"`)

	// Pending errors are shown once
	_, body = a.get("/auth/login")
	assert.NotContains(t, body, "Email address not recognised")
}

func TestValidateEmail_JSONBody(t *testing.T) {
	a := newApp(t, 100)
	tok := a.csrf("/auth/login")

	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/auth/validate-email", strings.NewReader(`{"email":"user@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", tok)
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/auth/password", resp.Header.Get("Location"))
	assert.Equal(t, "user@example.com", a.session().TempEmail)
}

func TestAuthenticate_InvalidPassword(t *testing.T) {
	a := newApp(t, 100)
	a.api.set(func(f *fakeAPI) { f.authStatus = http.StatusUnauthorized })
	tok := a.csrf("/auth/login")
	a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})

	resp := a.postForm("/auth/authenticate", url.Values{"_csrf": {tok}, "password": {"wrong"}})
	assert.Equal(t, "/auth/password", resp.Header.Get("Location"))
	sess := a.session()
	assert.Empty(t, sess.Token)
	require.Len(t, sess.PendingErrors, 1)
	assert.Equal(t, session.FormError{Text: "Invalid password", Href: "#password"}, sess.PendingErrors[0])

	_, body := a.get("/auth/password")
	assert.Contains(t, body, "Invalid password")
}

func TestAuthenticate_RateLimitedByBackend(t *testing.T) {
	a := newApp(t, 100)
	a.api.set(func(f *fakeAPI) {
		f.authStatus = http.StatusTooManyRequests
		f.retryAfter = "900"
	})
	tok := a.csrf("/auth/login")
	a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})
	a.postForm("/auth/authenticate", url.Values{"_csrf": {tok}, "password": {"pw"}})

	_, body := a.get("/auth/password")
	assert.Contains(t, body, "Too many attempts")
	assert.NotContains(t, body, "Unable to sign in")
}

func TestBack(t *testing.T) {
	a := newApp(t, 100)
	tok := a.csrf("/auth/login")
	a.postForm("/auth/validate-email", url.Values{"_csrf": {tok}, "email": {"user@example.com"}})
	resp := a.postForm("/auth/back", url.Values{"_csrf": {tok}})
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
	assert.Empty(t, a.session().TempEmail)
}

func TestCSRFRequired(t *testing.T) {
	a := newApp(t, 100)
	a.csrf("/auth/login")
	resp := a.postForm("/auth/validate-email", url.Values{"email": {"user@example.com"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestContentTypeRequired(t *testing.T) {
	a := newApp(t, 100)
	tok := a.csrf("/auth/login")
	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/auth/validate-email", strings.NewReader("x"))
	req.Header.Set("X-CSRF-Token", tok)
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, a.srv.URL+"/auth/validate-email", strings.NewReader("<x/>"))
	req.Header.Set("X-CSRF-Token", tok)
	req.Header.Set("Content-Type", "application/xml")
	resp, err = a.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestSuspiciousRequestsBlocked(t *testing.T) {
	a := newApp(t, 100)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/../../etc/passwd", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "permission")
	assert.NotContains(t, w.Body.String(), "path_traversal")

	resp, _ := a.get("/tasks?q=" + url.QueryEscape("<script>alert(1)</script>"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	a := newApp(t, 3)
	for i := 0; i < 3; i++ {
		resp, _ := a.get("/health")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := a.get("/health")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, body, "Too many requests")
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	a := newApp(t, 100)
	for _, path := range []string{"/auth/login", "/nope", "/health"} {
		resp, _ := a.get(path)
		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"), path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}
}

func TestHealth(t *testing.T) {
	a := newApp(t, 100)
	resp, body := a.get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.Components["backend"])
	assert.Equal(t, "closed", out.Components["circuit"])
}

func TestTasks_CreateUpdateRemove(t *testing.T) {
	a := newApp(t, 100)
	tok := a.signIn()

	resp := a.postForm("/tasks", url.Values{"_csrf": {tok}, "title": {"File skeleton argument"}, "details": {"Bundle for hearing"}, "dueDate": {"2026-12-01"}})
	assert.Equal(t, "/tasks/2", resp.Header.Get("Location"))

	_, body := a.get("/tasks/2")
	assert.Contains(t, body, "File skeleton argument")
	assert.Contains(t, body, "Bundle for hearing")

	resp = a.postForm("/tasks/2/status", url.Values{"_csrf": {tok}, "status": {backend.StatusInProgress}})
	assert.Equal(t, "/tasks/2", resp.Header.Get("Location"))
	_, body = a.get("/tasks/2")
	assert.Contains(t, body, "In progress")

	resp = a.postForm("/tasks/2/remove", url.Values{"_csrf": {tok}})
	assert.Equal(t, "/tasks", resp.Header.Get("Location"))
	resp, _ = a.get("/tasks/2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTasks_ValidationErrorsKeepDraft(t *testing.T) {
	a := newApp(t, 100)
	tok := a.signIn()

	resp := a.postForm("/tasks", url.Values{"_csrf": {tok}, "title": {"Chase <b>witness</b>"}})
	assert.Equal(t, "/tasks/new", resp.Header.Get("Location"))

	_, body := a.get("/tasks/new")
	assert.Contains(t, body, "Enter a due date")
	assert.Contains(t, body, `href="#dueDate"`)
	assert.Contains(t, body, `value="Chase bwitness/b"`)

	_, body = a.get("/tasks/new")
	assert.NotContains(t, body, "Enter a due date")
}

func TestTasks_MissingTitle(t *testing.T) {
	a := newApp(t, 100)
	tok := a.signIn()
	resp := a.postForm("/tasks", url.Values{"_csrf": {tok}, "title": {"  "}})
	assert.Equal(t, "/tasks/new", resp.Header.Get("Location"))
	_, body := a.get("/tasks/new")
	assert.Contains(t, body, "Enter a title")
}

func TestTasks_Backend401SignsOut(t *testing.T) {
	a := newApp(t, 100)
	a.signIn()
	a.api.set(func(f *fakeAPI) { f.taskStatus = http.StatusUnauthorized })

	resp, _ := a.get("/tasks")
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
	sess := a.session()
	assert.Empty(t, sess.Token)
	assert.Empty(t, sess.Email)
}

func TestTasks_BackendDown(t *testing.T) {
	a := newApp(t, 100)
	a.signIn()
	a.api.set(func(f *fakeAPI) { f.taskStatus = http.StatusInternalServerError })

	resp, body := a.get("/tasks")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotContains(t, body, "backend says no")
}

func TestNotFound(t *testing.T) {
	a := newApp(t, 100)
	resp, _ := a.get("/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
