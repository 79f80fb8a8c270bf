package domain

import "context"

// UserSession identifies the authenticated user behind a request.
type UserSession struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// SessionSource resolves the current session, if any. An absent session
// gates persistence (Commit no-ops) and rehydration (yields nothing).
type SessionSource interface {
	Current(ctx context.Context) (*UserSession, bool)
}

// SessionSourceFunc adapts a function to the SessionSource interface.
type SessionSourceFunc func(ctx context.Context) (*UserSession, bool)

func (f SessionSourceFunc) Current(ctx context.Context) (*UserSession, bool) { return f(ctx) }

type ctxKey string

const sessionCtxKey ctxKey = "user_session"

// ContextWithSession returns a new context carrying the session.
func ContextWithSession(ctx context.Context, s *UserSession) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

// SessionFromContext extracts the session from the context.
// It satisfies SessionSourceFunc.
func SessionFromContext(ctx context.Context) (*UserSession, bool) {
	s, ok := ctx.Value(sessionCtxKey).(*UserSession)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}
