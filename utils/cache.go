package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Minute

// JSONCache is a best-effort read-through cache of JSON values in Redis.
// A nil client turns every call into a miss, so callers never branch on
// whether Redis is configured.
type JSONCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJSONCache(rc *redis.Client, prefix string, ttl time.Duration) *JSONCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &JSONCache{rc: rc, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value for key into out and reports whether it was found.
func (c *JSONCache) Get(ctx context.Context, key string, out interface{}) bool {
	if c == nil || c.rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		Logger.Debug("cache get miss", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		Logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set marshals v and stores it with the cache TTL.
func (c *JSONCache) Set(ctx context.Context, key string, v interface{}) {
	if c == nil || c.rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		Logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops key so the next read goes to the system of record.
func (c *JSONCache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Del(ctx, c.prefix+key).Err(); err != nil {
		Logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
