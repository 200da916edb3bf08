// Package contexthelpers stores request scoped values set by the middleware.
package contexthelpers

import (
	"context"
	"net/http"
)

type (
	userKey  struct{}
	pathKey  struct{}
	nonceKey struct{}
	traceKey struct{}
)

type user struct {
	id      int
	isAdmin bool
}

func value[T any](ctx context.Context, key any) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// WithUser marks ctx as authenticated by the user with the given database ID.
func WithUser(ctx context.Context, userID int, isAdmin bool) context.Context {
	return context.WithValue(ctx, userKey{}, user{id: userID, isAdmin: isAdmin})
}

// AuthenticateContext is WithUser for the request context.
func AuthenticateContext(r *http.Request, userID int, isAdmin bool) *http.Request {
	return r.WithContext(WithUser(r.Context(), userID, isAdmin))
}

func IsAuthenticated(ctx context.Context) bool {
	_, ok := ctx.Value(userKey{}).(user)
	return ok
}

// AuthenticatedUserID returns the database ID of the authenticated user or 0 for anonymous requests.
func AuthenticatedUserID(ctx context.Context) int {
	return value[user](ctx, userKey{}).id
}

func IsAdmin(ctx context.Context) bool {
	return value[user](ctx, userKey{}).isAdmin
}

func SetCurrentPath(r *http.Request, currentPath string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), pathKey{}, currentPath))
}

func CurrentPath(ctx context.Context) string {
	return value[string](ctx, pathKey{})
}

func SetCSPNonce(r *http.Request, nonce string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), nonceKey{}, nonce))
}

func CSPNonce(ctx context.Context) string {
	return value[string](ctx, nonceKey{})
}

// SetTraceID stores the request trace ID that error pages show to the user.
func SetTraceID(r *http.Request, traceID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), traceKey{}, traceID))
}

func TraceID(ctx context.Context) string {
	return value[string](ctx, traceKey{})
}
