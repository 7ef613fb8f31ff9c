package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "inmo:ratelimit:"

// RateLimitDecision is the outcome of counting one request against a fixed window
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	startAt time.Time
}

// InMemoryRateLimiter counts requests per key in fixed windows
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewInMemoryRateLimiter allows limit requests per key in each period
func NewInMemoryRateLimiter(limit int, period time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow counts a request for key
func (l *InMemoryRateLimiter) Allow(ctx context.Context, key string) (RateLimitDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.period {
		w = &window{startAt: now}
		l.windows[key] = w
		l.evictExpired(now)
	}
	w.count++

	remaining := l.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitDecision{
		Allowed:   w.count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   w.startAt.Add(l.period),
	}, nil
}

// evictExpired drops stale windows; called with the lock held whenever a window rolls over
func (l *InMemoryRateLimiter) evictExpired(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.startAt) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}

// RedisRateLimiter shares fixed-window counters across instances
type RedisRateLimiter struct {
	client    redis.UniversalClient
	limit     int
	period    time.Duration
	keyPrefix string
}

// NewRedisRateLimiter allows limit requests per key in each period
func NewRedisRateLimiter(client redis.UniversalClient, limit int, period time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		limit:     limit,
		period:    period,
		keyPrefix: defaultRateLimitPrefix,
	}
}

// Allow increments the window counter; the first hit of a window sets its expiry
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitDecision, error) {
	redisKey := l.keyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.period)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("cache: rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetIn := ttl.Val()
	if resetIn < 0 {
		resetIn = l.period
	}
	return RateLimitDecision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(resetIn),
	}, nil
}
