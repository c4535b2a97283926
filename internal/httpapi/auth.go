package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lg12346/FilaVirtual/internal/models"
	"github.com/lg12346/FilaVirtual/internal/store"
)

type authContextKey struct{}

// AuthMiddleware resolves the bearer session token to a user and stores it
// on the request context. Public endpoints pass through untouched.
func AuthMiddleware(accounts store.AccountStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
			return
		}
		_, user, err := accounts.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(authContextKey{}).(models.User)
	return user, ok
}

func requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
		return models.User{}, false
	}
	return user, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if user.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return models.User{}, false
	}
	return user, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/tickets/public", "/api/auth/register", "/api/auth/login":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
