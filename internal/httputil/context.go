package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const (
	userIDKey       contextKey = "userID"
	sessionTokenKey contextKey = "sessionToken"
)

// WithUserID adds userID to the request context
func WithUserID(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	return r.WithContext(ctx)
}

// GetUserID retrieves userID from context, returns empty string if not found
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

// WithSessionToken adds the caller's bearer token to the request context.
// The streaming engine attaches it per-connection to the remote backend.
func WithSessionToken(r *http.Request, token string) *http.Request {
	ctx := context.WithValue(r.Context(), sessionTokenKey, token)
	return r.WithContext(ctx)
}

// GetSessionToken retrieves the caller's bearer token from context
func GetSessionToken(r *http.Request) string {
	token, _ := r.Context().Value(sessionTokenKey).(string)
	return token
}
