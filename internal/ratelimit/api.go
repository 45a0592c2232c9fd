package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/planfence/planfence/internal/config"
)

const keyAPIClient = "planfence:api:"

// APILimiter throttles API clients. Nil when no redis address is configured,
// in which case every check passes.
type APILimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewAPILimiter(cfg config.Config) *APILimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.APIRateLimit <= 0 || cfg.APIBurst <= 0 {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &APILimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.APIRateLimit,
		burst:  cfg.APIBurst,
	}
}

func (l *APILimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow charges one request to the named client. Redis being down fails
// open: a throttle outage must not take the API down with it.
func (l *APILimiter) Allow(ctx context.Context, client string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, keyAPIClient+client, l.rate, l.burst)
	if err != nil {
		return Result{Allowed: true}
	}
	return res
}
