// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request ID.
type requestIDKey struct{}

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// Identity is the authenticated caller decoded from a bearer token.
// It is immutable for the lifetime of the request or connection.
type Identity struct {
	UserID int64
	Role   string
}

// RequestID is a middleware that injects a request ID into the context.
// If the request already has an X-Request-ID header, it uses that value.
// Otherwise, it generates a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from context. Returns empty string if
// not present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetIdentity stores the authenticated identity in the context.
// Called by the auth middleware after validating the token.
func SetIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// GetIdentity retrieves the authenticated identity from context.
// The second return value is false when no identity is present.
func GetIdentity(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(Identity)
	return ident, ok
}

// SetErrorCode stores an error code in the context.
// Called by handlers when returning error responses so the logging
// middleware can record it.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string
// if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// contextUpdater is implemented by response writer wrappers that can carry
// an updated request context back to outer middleware.
type contextUpdater interface {
	updateContext(ctx context.Context)
}

// UpdateResponseContext propagates a handler-updated context (typically one
// carrying an error code) to the logging middleware's response writer.
// A no-op when the writer does not support it.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	if u, ok := w.(contextUpdater); ok {
		u.updateContext(ctx)
	}
}
