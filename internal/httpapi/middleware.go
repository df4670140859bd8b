package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/Hrithik248/busy-buy/internal/domain"
)

type contextKey string

const sessionKey contextKey = "session"

// TokenResolver validates an opaque session token; satisfied by
// identity.Service.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Session, error)
}

// RequireAuth extracts the bearer token, resolves it to a session, and puts
// the session on the request context. Missing or unknown tokens get 401.
func RequireAuth(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			session, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func sessionFromContext(ctx context.Context) *domain.Session {
	if s, ok := ctx.Value(sessionKey).(*domain.Session); ok {
		return s
	}
	return nil
}

// requireBoundUser rejects requests whose token belongs to a different user
// than the one the sync service is currently bound to.
func requireBoundUser(w http.ResponseWriter, r *http.Request, boundUID string) bool {
	s := sessionFromContext(r.Context())
	if s == nil || boundUID == "" || s.UserID != boundUID {
		respondError(w, http.StatusForbidden, "session_mismatch", "token does not match the active session")
		return false
	}
	return true
}
