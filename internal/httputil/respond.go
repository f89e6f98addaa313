package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// WriteJSON encodes v fully before touching w, so an encoding failure still
// produces a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// LocalRedirect returns in when it is a path on this site, otherwise fallback.
// Encoded and backslash forms of "//host" are refused as well.
func LocalRedirect(in, fallback string) string {
	if in == "" || in[0] != '/' {
		return fallback
	}
	decoded, err := url.PathUnescape(in)
	if err != nil {
		return fallback
	}
	for _, s := range []string{in, decoded} {
		if strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") || strings.Contains(s, "://") {
			return fallback
		}
	}
	u, err := url.ParseRequestURI(in)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// BuildCookie applies the configured cookie attributes. HttpOnly is always
// set; maxAge < 0 deletes the cookie.
func BuildCookie(cfg config.CookieCfg, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if strings.EqualFold(cfg.SameSite, "strict") {
		c.SameSite = http.SameSiteStrictMode
	}
	return c
}
