package middleware

import (
	"context"
	"net/http"
	"strings"

	"claude_gateway/internal/auth"
	"claude_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// CallerKey is the context key for the verified auth.Caller
	CallerKey ContextKey = "caller"
)

// CallerMiddleware verifies the bearer token and embeds the caller in the
// request context.
func CallerMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimSpace(r.Header.Get("Authorization"))
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			claims, err := auth.ValidateJWT(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := WithCaller(r.Context(), claims.Caller())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers that hold none of the given roles. It must run
// after CallerMiddleware.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := GetCaller(r.Context())
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			for _, required := range roles {
				if caller.Role.HasPermission(required) {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller auth.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller retrieves the caller from the request context
func GetCaller(ctx context.Context) (auth.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(auth.Caller)
	return caller, ok
}
