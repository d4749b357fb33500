package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession attaches the request session. Set once by the
// session-loading middleware; handlers only ever read it.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session, or nil when the
// session middleware did not run.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
