package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a small shared counter/value store. Backed by redis when
// available, with an in-memory fallback so an outage degrades rather
// than breaks login and ephemeral reads.
type Cache struct {
	client *redis.Client

	mu     sync.Mutex
	local  map[string]localEntry
	logger *slog.Logger
}

type localEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

func New(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		local:  make(map[string]localEntry),
		logger: logger,
	}
}

// Incr increments the key and sets its expiry on first increment,
// returning the new count.
func (c *Cache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if c.client != nil {
		count, err := c.client.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				c.client.Expire(ctx, key, window)
			}
			return count, nil
		}
		c.logger.Warn("redis incr failed, using in-memory counter", "key", key, "error", err)
	}
	return c.localIncr(key, window), nil
}

func (c *Cache) localIncr(key string, window time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	entry, ok := c.local[key]
	if !ok || now.After(entry.expiresAt) {
		entry = localEntry{expiresAt: now.Add(window)}
	}
	entry.count++
	c.local[key] = entry
	return entry.count
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.client != nil {
		if err := c.client.Set(ctx, key, value, ttl).Err(); err == nil {
			return nil
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get returns the value, or "" when absent or expired.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c.client != nil {
		value, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return value, nil
		}
		if err == redis.Nil {
			return "", nil
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", nil
	}
	return entry.value, nil
}

// RateLimiter implements fixed-window rate limiting on the cache.
type RateLimiter struct {
	cache *Cache
}

func NewRateLimiter(cache *Cache) *RateLimiter {
	return &RateLimiter{cache: cache}
}

// Allow reports whether the key is still under its limit for the
// window. Counting failures fail open: a broken cache must not lock
// everyone out.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := l.cache.Incr(ctx, "ratelimit:"+key, window)
	if err != nil {
		return true, err
	}
	return count <= int64(limit), nil
}
