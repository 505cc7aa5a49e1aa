package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/stats"
)

// DefaultQueueKey is the Redis list the tracking events travel on.
const DefaultQueueKey = "tracking:events"

// RedisPublisher pushes events onto a Redis list. The push happens in a
// detached goroutine with its own timeout, so a slow or down Redis never
// delays the pixel or the redirect.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisPublisher creates a publisher for the given list key. An empty
// key uses DefaultQueueKey.
func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisPublisher{client: client, key: key}
}

// Publish enqueues the event and returns immediately.
func (p *RedisPublisher) Publish(ctx context.Context, evt domain.TrackingEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("ERROR marshal tracking event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.client.LPush(ctx, p.key, body).Err(); err != nil {
			log.Printf("ERROR publishing tracking event: %v", err)
		}
	}()
}

// DirectPublisher feeds the aggregator without a queue. Used when no Redis
// is configured; the update still runs detached from the request.
type DirectPublisher struct {
	agg *stats.Aggregator
}

// NewDirectPublisher creates a queue-less publisher.
func NewDirectPublisher(agg *stats.Aggregator) *DirectPublisher {
	return &DirectPublisher{agg: agg}
}

// Publish dispatches the aggregate update and returns immediately. Once
// dispatched, the update runs to completion or exhausts its retries
// independently of the request's lifecycle.
func (p *DirectPublisher) Publish(ctx context.Context, evt domain.TrackingEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.agg.RecordEvent(ctx, evt)
	}()
}
