// Package identity resolves the calling user of an HTTP request. Checkout,
// cart and order history endpoints only run behind Middleware, so no handler
// writes anything for an unauthenticated caller.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Gate authenticates an inbound request. Rejections wrap domain.ErrUnauthorized;
// any other error means the identity source could not be consulted.
type Gate interface {
	Authenticate(r *http.Request) (User, error)
}

type contextKey string

const userContextKey contextKey = "user"

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFrom(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok && user.ID != ""
}

// ExtractToken reads the access token from the access_token cookie, falling
// back to a bearer Authorization header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func Middleware(gate Gate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authenticate(r)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					respondError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				logger.Error("failed to authenticate request", "error", err, "path", r.URL.Path)
				respondError(w, http.StatusServiceUnavailable, "identity service unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
