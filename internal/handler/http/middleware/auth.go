package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"payments/internal/domain"
)

type contextKey string

const userIDKey contextKey = "user_id"

// IdentityResolver is the authenticated-identity collaborator: it exchanges
// an Authorization header value for the caller's user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) (int64, error)
}

// AuthRequired resolves the caller through the identity service and stores
// the user id in the request context. Requests it cannot attribute to a user
// never reach the handlers.
func AuthRequired(resolver IdentityResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				logger.Error("Identity resolution failed", zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserID returns the caller id placed in the context by AuthRequired.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
