package middleware

import (
	"context"
	"net/http"

	"github.com/akz4ol/sqlgateway/internal/domain"
	"github.com/akz4ol/sqlgateway/internal/handler"
	"github.com/rs/zerolog"
)

// IdentityKey is the context key the Auth middleware stores the resolved
// identity under.
const IdentityKey contextKey = "identity"

// Authenticator resolves a request's identity from cookie JWT, bearer JWT,
// or bearer API key.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (domain.Identity, bool, error)
}

// Auth returns middleware enforcing authentication on every request it
// wraps, clearing the session cookie when it was present but invalid.
func Auth(authenticator Authenticator, cookieName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, clearCookie, err := authenticator.Authenticate(r.Context(), r)
			if clearCookie {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    "",
					MaxAge:   -1,
					Path:     "/",
					HttpOnly: true,
				})
			}
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				handler.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the authenticated identity from a request context.
func GetIdentity(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(IdentityKey).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}
