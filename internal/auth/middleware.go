package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/wickandflame/shop-backend/internal/user"
)

type contextKey string

const (
	userIDKey contextKey = "auth_user_id"
	roleKey   contextKey = "auth_role"
)

// WithIdentity stores the verified caller identity in the context.
func WithIdentity(ctx context.Context, userID uuid.UUID, role user.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserID returns the authenticated caller's id from the request context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// CallerRole returns the authenticated caller's role from the request context.
func CallerRole(ctx context.Context) (user.Role, bool) {
	role, ok := ctx.Value(roleKey).(user.Role)
	return role, ok
}

// Authenticate requires a valid Bearer token and stores the caller identity in
// the request context.
func (tm *TokenManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenStr == "" {
			http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
			return
		}

		userID, role, err := tm.Verify(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, role)))
	})
}

// RequireAdmin gates a route behind the ADMIN role. Must sit after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := CallerRole(r.Context())
		if !ok || role != user.RoleAdmin {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
