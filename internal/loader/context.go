package loader

import "context"

type contextKey struct{}

// NewContext attaches a request-scoped loader to the context. Middleware
// installs a fresh loader per top-level request; loaders are never shared
// between requests.
func NewContext(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the request's loader.
func FromContext(ctx context.Context) (*Loader, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(contextKey{}).(*Loader)
	return l, ok
}
