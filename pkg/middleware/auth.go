package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tentshop/storefront/pkg/logger"
)

// Identity is the authenticated buyer attached to a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenValidator verifies a bearer token and returns the buyer it names.
type TokenValidator func(token string) (Identity, error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// OptionalAuth tags request logs with the buyer when the request carries a
// valid bearer token. Missing or invalid tokens are not rejected: the request
// simply proceeds as a guest.
func OptionalAuth(validate TokenValidator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := validate(token)
			if err != nil {
				l.DebugContext(r.Context(), "ignoring invalid bearer token", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity tags the logging context with the buyer's user ID.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return logger.WithUserID(ctx, id.UserID)
}
