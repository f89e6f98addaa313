package security

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
)

// ErrorPage renders a 500 response. detail is empty unless dev mode is on.
type ErrorPage func(w http.ResponseWriter, r *http.Request, detail string)

// Recover turns handler panics into a 500 page.
func Recover(devMode bool, page ErrorPage) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				httputil.GetLogger(r.Context()).Error().
					Str("panic", fmt.Sprint(rec)).
					Str("stack", string(debug.Stack())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("panic recovered")

				detail := ""
				if devMode {
					detail = fmt.Sprint(rec)
				}
				if page == nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				page(w, r, detail)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
