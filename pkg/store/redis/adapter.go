// Package redis wraps go-redis with connection pooling, health checks and the
// key, counter and set primitives used by the rate limiter and the event
// subscriber registry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/tracing"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("redis key not found")

// Adapter provides Redis connectivity with connection pooling.
type Adapter struct {
	client redis.UniversalClient
	logger logger.Logger
	config Config
}

// Config holds Redis connection configuration.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

// NewAdapter parses cfg.URL, opens a pool and pings the server.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		opts.PoolSize = cfg.MaxConns
	}
	opts.DialTimeout = 5 * time.Second
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established",
		"max_conns", opts.PoolSize,
		"operation_timeout", cfg.OperationTimeout,
	)
	return &Adapter{client: client, logger: log, config: cfg}, nil
}

// NewAdapterFromClient wraps an existing client without pinging it.
func NewAdapterFromClient(client redis.UniversalClient, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{client: client, logger: log}
}

// Client returns the underlying client for direct access when needed.
func (a *Adapter) Client() redis.UniversalClient {
	return a.client
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Get returns ErrKeyNotFound (wrapped) when key does not exist.
func (a *Adapter) Get(ctx context.Context, key string) (string, error) {
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, tracing.WithCacheKey(key))
	val, err := a.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		tracing.End(span, nil)
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	tracing.End(span, err)
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl means no expiration.
func (a *Adapter) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, tracing.WithCacheKey(key))
	err := a.client.Set(ctx, key, value, ttl).Err()
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// IncrWithExpire increments key and, when the increment created it, sets
// its time to live. Both commands run in one MULTI block.
func (a *Adapter) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return incr.Val(), nil
}

// TTL returns the remaining time to live of key, or a negative duration
// when the key has none or does not exist.
func (a *Adapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := a.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl of %s: %w", key, err)
	}
	return d, nil
}

// Exists reports whether key is present.
func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

// AddToSet adds members to the set at key. When expireAt is non-zero the
// key is set to expire at that instant in the same transaction.
func (a *Adapter) AddToSet(ctx context.Context, key string, expireAt time.Time, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	values := make([]any, len(members))
	for i, m := range members {
		values[i] = m
	}
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, tracing.WithCacheKey(key))
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, values...)
		if !expireAt.IsZero() {
			pipe.ExpireAt(ctx, key, expireAt)
		}
		return nil
	})
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("failed to add to set %s: %w", key, err)
	}
	return nil
}

// SetMembers returns the members of the set at key; a missing key is an
// empty set.
func (a *Adapter) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, tracing.WithCacheKey(key))
	members, err := a.client.SMembers(ctx, key).Result()
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read set %s: %w", key, err)
	}
	return members, nil
}

// HealthCheck pings with a two second budget.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.client.Ping(ctx).Err(); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.logger.Info("closing Redis connection")
	if err := a.client.Close(); err != nil {
		a.logger.Error("failed to close Redis connection", "error", err)
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
