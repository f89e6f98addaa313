package httputil

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// validRequestID accepts upstream IDs that are short and log-safe.
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// RequestIDMiddleware tags every request with an ID, echoes it in the
// response and stores a logger carrying it in the context. It must be the
// outermost middleware so every log line and rejection carries the ID.
func RequestIDMiddleware(logger zerolog.Logger, proxies []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := WithTrustedProxies(r.Context(), proxies)
			ctx = WithRequestID(ctx, id)
			r = r.WithContext(ctx)

			l := logger.With().
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", ClientIP(r)).
				Logger()
			next.ServeHTTP(w, r.WithContext(WithLogger(ctx, &l)))
		})
	}
}

// ClientIP resolves the caller's address using the trusted proxies stored by RequestIDMiddleware.
func ClientIP(r *http.Request) string {
	return ClientIPWithTrustedProxies(r, trustedProxies(r.Context()))
}

// ClientIPWithTrustedProxies returns the peer address. When the peer is one of
// proxies, X-Forwarded-For is walked right to left and the first hop that is
// not itself a trusted proxy wins; entries left of it are client-supplied.
func ClientIPWithTrustedProxies(r *http.Request, proxies []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return host
	}
	if !inAny(peer, proxies) {
		return peer.String()
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip
		if !inAny(ip, proxies) {
			break
		}
	}
	return client.String()
}

func inAny(ip net.IP, nets []*net.IPNet) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
