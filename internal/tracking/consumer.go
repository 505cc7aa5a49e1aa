package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/stats"
)

// Consumer drains the tracking queue with a pool of workers feeding the
// stats aggregator. Events that fail to decode are discarded; events that
// exhaust their retries inside the aggregator are dropped there.
type Consumer struct {
	client  *redis.Client
	key     string
	agg     *stats.Aggregator
	workers int
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewConsumer creates a consumer with the given worker count.
func NewConsumer(client *redis.Client, key string, agg *stats.Aggregator, workers int) *Consumer {
	if key == "" {
		key = DefaultQueueKey
	}
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		client:  client,
		key:     key,
		agg:     agg,
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches the worker pool.
func (c *Consumer) Start(ctx context.Context) {
	log.Printf("tracking consumer started (queue=%s workers=%d)", c.key, c.workers)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.poll(ctx)
	}
}

// Stop signals the workers and waits for them to finish their current
// event.
func (c *Consumer) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		res, err := c.client.BRPop(ctx, 2*time.Second, c.key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("tracking queue receive error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(res) < 2 {
			continue
		}

		var evt domain.TrackingEvent
		if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
			log.Printf("tracking queue bad message: %v", err)
			continue
		}
		c.agg.RecordEvent(ctx, evt)
	}
}
