package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and verifies the connection with a ping
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Stores builds the idempotency store and rate limiter on Redis when a client is available,
// in memory otherwise
type Stores struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// StoresOption is a functional option for configuring Stores
type StoresOption func(*Stores)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) StoresOption {
	return func(s *Stores) {
		s.logger = logger
	}
}

// WithRedis backs the stores with the given client
func WithRedis(client redis.UniversalClient) StoresOption {
	return func(s *Stores) {
		s.client = client
	}
}

// NewStores creates a store factory
func NewStores(opts ...StoresOption) *Stores {
	s := &Stores{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the Redis client when cfg enables it. With fallback allowed, an unreachable
// Redis degrades to in-memory stores instead of failing startup.
func Connect(ctx context.Context, cfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (*Stores, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory idempotency and rate limit stores")
		return NewStores(WithLogger(logger)), nil
	}
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		if !allowFallback {
			return nil, fmt.Errorf("Redis required but unavailable: %w", err)
		}
		logger.Warn("Redis unavailable, falling back to in-memory stores. "+
			"Duplicate deliveries across instances will be caught only by the event log.",
			zap.Error(err))
		return NewStores(WithLogger(logger)), nil
	}
	logger.Info("Using Redis idempotency and rate limit stores",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
	return NewStores(WithLogger(logger), WithRedis(client)), nil
}

// Distributed reports whether the stores are shared through Redis
func (s *Stores) Distributed() bool {
	return s.client != nil
}

// Ping checks the Redis connection. In-memory stores are always reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// IdempotencyStore returns the processed-event cache
func (s *Stores) IdempotencyStore() shared.IdempotencyStore {
	if s.client != nil {
		return NewRedisIdempotencyStore(s.client, defaultIdempotencyPrefix)
	}
	return NewInMemoryIdempotencyStore()
}

// RateLimiter returns a fixed-window limiter
func (s *Stores) RateLimiter(limit int, period time.Duration) RateLimiter {
	if s.client != nil {
		return NewRedisRateLimiter(s.client, limit, period)
	}
	return NewInMemoryRateLimiter(limit, period)
}

// Close releases the Redis client
func (s *Stores) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// RateLimiter counts one request for a key
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitDecision, error)
}

var (
	_ RateLimiter = (*InMemoryRateLimiter)(nil)
	_ RateLimiter = (*RedisRateLimiter)(nil)
)
