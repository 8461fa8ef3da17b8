package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akz4ol/sqlgateway/internal/handler"
	"github.com/rs/zerolog"
)

// RateLimiter defines the interface a request-limiting backend implements.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetSeconds int, err error)
}

// RateLimit returns middleware enforcing limit requests per identity. It
// must run after Auth so GetIdentity resolves to the caller.
func RateLimit(limiter RateLimiter, limit int, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			key := identity.UserID
			if identity.IsAPIKey {
				key = "key:" + identity.APIKeyID
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, resetSeconds, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				logger.Error().Err(err).Str("rate_limit_key", key).Msg("rate limiter error")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(resetSeconds))
				handler.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					fmt.Sprintf("rate limit exceeded, retry in %d seconds", resetSeconds))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
