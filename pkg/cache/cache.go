// Package cache provides a short-lived Redis-backed cache for query results
// and the counters behind rate limiting.
//
// Cache operations never fail their caller: when Redis is unreachable, Get
// reports a miss, Set succeeds silently, and InvalidatePrefix removes
// nothing. Only the rate-limit counter surfaces its error so the gateway
// middleware can decide to fail open.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// Root is the key prefix shared by all cache entries.
	Root = "strym:cache:"

	// DefaultTTL applies to query-result entries unless overridden.
	DefaultTTL = 60 * time.Second
)

// Cache wraps the process-wide Redis client for query caching.
type Cache struct {
	rdb *redis.Client
}

// New creates a Cache on an existing Redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Key derives the cache key for a namespace and parameter bag. The bag is
// serialized in canonical key-sorted form and fingerprinted with xxhash64,
// so equivalent queries share an entry regardless of parameter order.
func Key(namespace string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// Param bags are plain scalars; marshaling cannot realistically
		// fail, but fall back to an unshared key rather than panic.
		canonical = []byte(fmt.Sprintf("%v", params))
	}
	return fmt.Sprintf("%s%s:%016x", Root, namespace, xxhash.Sum64(canonical))
}

// GetJSON looks up the cached value for (namespace, params) and unmarshals
// it into dest. Returns false on miss or backend failure.
func (c *Cache) GetJSON(ctx context.Context, namespace string, params map[string]any, dest any) bool {
	data, err := c.rdb.Get(ctx, Key(namespace, params)).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		slog.Warn("Cache get failed", "namespace", namespace, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("Cache entry corrupt, treating as miss", "namespace", namespace, "error", err)
		return false
	}
	return true
}

// SetJSON stores value under (namespace, params) with the given TTL
// (DefaultTTL when ttl is zero). Best-effort.
func (c *Cache) SetJSON(ctx context.Context, namespace string, params map[string]any, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Cache set: marshal failed", "namespace", namespace, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, Key(namespace, params), data, ttl).Err(); err != nil {
		slog.Warn("Cache set failed", "namespace", namespace, "error", err)
	}
}

// InvalidatePrefix deletes every entry under the namespace. Best-effort;
// returns the number of keys removed.
func (c *Cache) InvalidatePrefix(ctx context.Context, namespace string) int {
	pattern := Root + namespace + ":*"

	var deleted int
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("Cache invalidate scan failed", "namespace", namespace, "error", err)
			return deleted
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				slog.Warn("Cache invalidate delete failed", "namespace", namespace, "error", err)
				return deleted
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// IncrWithTTL increments a raw counter key, setting its TTL to window on
// first increment, and returns the new count plus the key's remaining TTL.
// Unlike the cache operations above, the error is surfaced: the rate-limit
// middleware uses it to fail open.
func (c *Cache) IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set TTL on %s: %w", key, err)
		}
		return count, window, nil
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read TTL of %s: %w", key, err)
	}
	// A counter that lost its TTL (e.g. Expire failed on the first hit)
	// would otherwise block its IP forever.
	if ttl < 0 {
		ttl = window
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to restore TTL on %s: %w", key, err)
		}
	}
	return count, ttl, nil
}
