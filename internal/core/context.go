package core

import "context"

type contextKey string

const (
	ctxKeySourceIP  contextKey = "import_source_ip"
	ctxKeyUserAgent contextKey = "import_user_agent"
)

// ContextWithSource attaches the uploader's address and user agent, which
// are stored on the import run.
func ContextWithSource(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeySourceIP, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// SourceFromContext returns the values set by ContextWithSource.
func SourceFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeySourceIP).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}
