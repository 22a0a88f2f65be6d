// Package actor carries the identity of whoever triggered an operation.
// It is used for audit attribution only; authentication happens upstream.
package actor

import (
	"context"
	"net/http"
	"strings"
)

// Header is the request header holding the caller identity.
const Header = "X-Actor-ID"

// System is recorded when no actor is attached to the context.
const System = "system"

type ctxKey string

const actorCtxKey = ctxKey("actorID")

// WithActor stores the actor id in context.
func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorCtxKey, id)
}

// FromContext extracts the actor id.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorCtxKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// OrSystem returns the actor id in ctx or System.
func OrSystem(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return System
}

// Middleware attaches the X-Actor-ID header value to the request context if present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(Header)); id != "" {
			r = r.WithContext(WithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
