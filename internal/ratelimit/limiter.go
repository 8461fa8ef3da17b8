// Package ratelimit provides a Redis-backed fixed-window request limiter
// for the REST and JSON-RPC surfaces, with a fail-open fallback when Redis
// is unavailable or not configured.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter enforces a fixed-window request cap per rate-limit key.
type Limiter struct {
	client *redis.Client
	logger zerolog.Logger
	window time.Duration
}

// NewLimiter builds a limiter backed by client. A nil client disables
// enforcement entirely (every call to Allow returns true).
func NewLimiter(client *redis.Client, window time.Duration, logger zerolog.Logger) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, logger: logger, window: window}
}

// Allow reports whether key may proceed under limit requests per window,
// along with the remaining quota and seconds until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetSeconds int, err error) {
	if l.client == nil {
		return true, limit, int(l.window.Seconds()), nil
	}

	redisKey := fmt.Sprintf("ratelimit:%s", key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Error().Err(err).Str("key", key).Msg("rate limiter increment failed, failing open")
		return true, limit, int(l.window.Seconds()), nil
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to set rate limit expiry")
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	reset := int(l.window.Seconds())
	if err == nil && ttl > 0 {
		reset = int(ttl.Seconds())
	}

	remaining = limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return int(count) <= limit, remaining, reset, nil
}

// Health reports whether the backing Redis client (if any) is reachable.
func (l *Limiter) Health() bool {
	if l.client == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.client.Ping(ctx).Err() == nil
}
