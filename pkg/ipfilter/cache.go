package ipfilter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// EntryCache caches per-tenant allowlist entries so the hot path does
// not hit the database on every request.
type EntryCache interface {
	Get(ctx context.Context, tenantID string) ([]*Entry, bool)
	Set(ctx context.Context, tenantID string, entries []*Entry)
	Invalidate(ctx context.Context, tenantID string)
}

// RedisCache stores tenant entry lists as JSON values with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(tenantID string) string {
	return "allowlist:" + tenantID
}

func (c *RedisCache) Get(ctx context.Context, tenantID string) ([]*Entry, bool) {
	cached, err := c.client.Get(ctx, cacheKey(tenantID)).Result()
	if err != nil {
		return nil, false
	}

	var entries []*Entry
	if err := json.Unmarshal([]byte(cached), &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, entries []*Entry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(tenantID), data, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, tenantID string) {
	c.client.Del(ctx, cacheKey(tenantID))
}
