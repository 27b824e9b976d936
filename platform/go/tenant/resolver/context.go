package resolver

import "context"

type ctxKey struct{}

// WithSession returns a derived context carrying the resolved session.
// Attached by the authentication middleware once the bearer token is mapped
// back to its session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the session and a boolean indicating presence.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}
