package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Counter is the part of the Redis adapter the limiter needs.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisRateLimiter is a fixed-window counter shared by every replica.
type RedisRateLimiter struct {
	counter   Counter
	limit     int64
	window    time.Duration
	opTimeout time.Duration
}

// NewRedisRateLimiter allows requests per window for each key.
func NewRedisRateLimiter(counter Counter, requests int, window, opTimeout time.Duration) (*RedisRateLimiter, error) {
	if counter == nil {
		return nil, errors.New("redis counter is required for distributed rate limiting")
	}
	if requests <= 0 {
		return nil, errors.New("requests must be greater than zero")
	}
	if window <= 0 {
		window = time.Minute
	}
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &RedisRateLimiter{
		counter:   counter,
		limit:     int64(requests),
		window:    window,
		opTimeout: opTimeout,
	}, nil
}

// Allow increments the window counter of key. The window starts with the
// first request seen for the key.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	count, err := r.counter.IncrWithExpire(ctx, key, r.window)
	if err != nil {
		return false, fmt.Errorf("redis rate limiter increment: %w", err)
	}
	return count <= r.limit, nil
}
