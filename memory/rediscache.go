package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the optional hot-cache layer for the trust-score read
// path: most Decision Engine calls re-read the same actor's profile
// within seconds of each other, and a cache miss just means falling
// through to Store.History.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing redis.Client. keyPrefix namespaces keys
// within a shared Redis instance.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix}
}

func (c *RedisCache) key(actor string) string { return c.prefix + ":profile:" + actor }

// Get returns the cached profile for actor, if present and unexpired.
// Any Redis error is treated as a cache miss rather than surfaced: the
// trust-score path must degrade to the authoritative Store, never fail.
func (c *RedisCache) Get(ctx context.Context, actor string) (Profile, bool) {
	raw, err := c.client.Get(ctx, c.key(actor)).Bytes()
	if err != nil {
		return Profile{}, false
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return Profile{}, false
	}
	return profile, true
}

// Set stores profile for actor with the given ttl. A ttl of zero deletes
// the cached entry, used to invalidate on Record.
func (c *RedisCache) Set(ctx context.Context, actor string, profile Profile, ttl time.Duration) {
	if ttl <= 0 {
		c.client.Del(ctx, c.key(actor))
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(actor), raw, ttl)
}
