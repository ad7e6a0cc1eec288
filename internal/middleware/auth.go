package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/voxmate/backend/internal/auth"
)

type contextKey string

const ctxUserIDKey contextKey = "user_id"

// TokenAuth authenticates requests by validating the Bearer token and
// putting the user id into request context.
func TokenAuth(authSvc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			userID, err := authSvc.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromCtx returns the authenticated user id, or false if none is set.
func UserIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxUserIDKey).(int64)
	return id, ok
}

// WithUserID returns a context carrying the given user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
