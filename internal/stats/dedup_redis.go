package stats

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a dedup cache shared across server instances, backed by
// keyed TTL entries in Redis. SET NX carries both the membership test and
// the recording in one round trip.
type RedisCache struct {
	client *redis.Client
	window time.Duration
}

// NewRedisCache creates a shared dedup cache with the given window.
func NewRedisCache(client *redis.Client, window time.Duration) *RedisCache {
	return &RedisCache{client: client, window: window}
}

// Seen reports whether key was recorded within the window, recording it
// when it was not. A Redis failure counts the event rather than dropping
// it: over-counting one open beats losing it.
func (c *RedisCache) Seen(ctx context.Context, key string) bool {
	first, err := c.client.SetNX(ctx, "dedup:open:"+key, 1, c.window).Result()
	if err != nil {
		log.Printf("[stats] dedup cache error for %s: %v", key, err)
		return false
	}
	return !first
}
