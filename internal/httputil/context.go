// Package httputil holds the request plumbing shared by the middleware and
// page handlers: request metadata in the context, client address resolution,
// redirects and small response writers.
package httputil

import (
	"context"
	"net"

	"github.com/rs/zerolog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
	trustedProxiesKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the current request's ID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the request-scoped logger. Callers outside the
// middleware chain get a no-op logger, never nil.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

func WithTrustedProxies(ctx context.Context, proxies []*net.IPNet) context.Context {
	return context.WithValue(ctx, trustedProxiesKey, proxies)
}

func trustedProxies(ctx context.Context) []*net.IPNet {
	p, _ := ctx.Value(trustedProxiesKey).([]*net.IPNet)
	return p
}
