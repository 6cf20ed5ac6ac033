package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"place-registry/pkg/logging"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// UserIDKey is the context key for the authenticated user id.
const UserIDKey contextKey = "user_id"

var errMissingToken = errors.New("authentication failed: missing bearer token")

// Middleware resolves the caller from an "Authorization: Bearer <jwt>" header.
// Requests without a valid token are handed to unauthorized instead of next.
type Middleware struct {
	tokens       *Tokens
	unauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

func NewMiddleware(tokens *Tokens, unauthorized func(w http.ResponseWriter, r *http.Request, err error)) *Middleware {
	return &Middleware{tokens: tokens, unauthorized: unauthorized}
}

// Handler wraps an HTTP handler with bearer authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight carries no credentials
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			m.unauthorized(w, r, errMissingToken)
			return
		}
		claims, err := m.tokens.Parse(raw)
		if err != nil {
			m.unauthorized(w, r, err)
			return
		}

		ctx := WithUserID(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// WithUserID returns a copy of ctx carrying the authenticated user id. The id
// is also tagged onto log lines written with ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, logging.UserIDKey, id)
	return context.WithValue(ctx, UserIDKey, id)
}

// UserIDFromContext retrieves the authenticated user id from ctx.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}
