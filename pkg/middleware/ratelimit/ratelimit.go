// Package ratelimit limits how often a key may perform an action.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Limiter decides whether the action identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucketLimiter keeps one token bucket per key in process memory.
// It does not coordinate across replicas; use RedisRateLimiter for that.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// Cosa fa: consente `requests` azioni per `window` per chiave, con burst pari a requests.
// Cosa NON fa: non libera mai i bucket delle chiavi inattive.
// Esempio minimo: l := ratelimit.NewTokenBucketLimiter(10, time.Minute)
func NewTokenBucketLimiter(requests int, window time.Duration) *TokenBucketLimiter {
	if window <= 0 {
		window = time.Second
	}
	if requests <= 0 {
		requests = 1
	}
	return &TokenBucketLimiter{
		rate:  rate.Limit(float64(requests) / window.Seconds()),
		burst: requests,
	}
}

// Allow never fails.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// Guard applies a Limiter to keys built by the caller and turns a refusal
// into a 429 AppError. Limiter failures are logged and let the request
// through.
type Guard struct {
	limiter    Limiter
	prefix     string
	retryAfter time.Duration
	log        logger.Logger
}

// NewGuard returns a guard whose keys are "<prefix>:<key>". retryAfter is
// advertised in the Retry-After header when a request is refused.
func NewGuard(limiter Limiter, prefix string, retryAfter time.Duration, log logger.Logger) *Guard {
	if log == nil {
		log = logger.NewNop()
	}
	return &Guard{limiter: limiter, prefix: prefix, retryAfter: retryAfter, log: log}
}

// Check returns nil when key may proceed.
func (g *Guard) Check(ctx context.Context, key string) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	full := key
	if g.prefix != "" {
		full = g.prefix + ":" + key
	}
	allowed, err := g.limiter.Allow(ctx, full)
	if err != nil {
		g.log.WithContext(ctx).Warn("rate limiter unavailable, allowing request", "key", full, "error", err)
		return nil
	}
	if !allowed {
		return controller.NewTooManyRequestsError("too many requests").
			WithDetails(map[string]interface{}{"retry_after_seconds": int(g.retryAfter.Seconds())})
	}
	return nil
}

// RetryAfter sets the Retry-After header for a refused request.
func (g *Guard) RetryAfter(c router.Context) {
	if g == nil || g.retryAfter <= 0 {
		return
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(int(g.retryAfter.Seconds())))
}
