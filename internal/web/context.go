package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/usageimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx so the
// import run records where the upload came from.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithSource(ctx, clientIP(r), r.UserAgent())
}

// clientIP returns the host part of RemoteAddr, already rewritten by
// TrustedRealIP when the request came through a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
