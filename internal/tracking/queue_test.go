package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/stats"
	"github.com/ignite/campaigner/internal/store"
)

func seedCampaign(t *testing.T, m *store.Memory, id string) {
	t.Helper()
	c := &domain.Campaign{ID: id, Name: "n", Status: domain.CampaignSent, CreatedAt: time.Now().UTC()}
	c.Stats.Sent = 10
	c.Stats.Delivered = 10
	c.Stats.Recalculate()
	if err := m.PutCampaign(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func waitForOpened(t *testing.T, m *store.Memory, id string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c, err := m.GetCampaign(context.Background(), id)
		if err == nil && c.Stats.Opened == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c, _ := m.GetCampaign(context.Background(), id)
	t.Fatalf("opened never reached %d, stats: %+v", want, c.Stats)
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	m := store.NewMemory()
	seedCampaign(t, m, "camp-1")

	agg := stats.NewAggregator(m, stats.NewLRUCache(100, time.Hour), 3)
	consumer := NewConsumer(client, "", agg, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer.Start(ctx)
	defer consumer.Stop()

	pub := NewRedisPublisher(client, "")
	pub.Publish(ctx, domain.TrackingEvent{
		CampaignID: "camp-1",
		ContactID:  "user-1",
		Kind:       domain.EventOpen,
		Timestamp:  time.Now().UTC(),
	})

	waitForOpened(t, m, "camp-1", 1)
}

func TestConsumerSkipsBadMessages(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	m := store.NewMemory()
	seedCampaign(t, m, "camp-1")

	agg := stats.NewAggregator(m, stats.NewLRUCache(100, time.Hour), 3)
	consumer := NewConsumer(client, "", agg, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer.Start(ctx)
	defer consumer.Stop()

	// A malformed payload ahead of a valid one must not wedge the worker.
	if err := client.LPush(ctx, DefaultQueueKey, "{not json").Err(); err != nil {
		t.Fatal(err)
	}
	pub := NewRedisPublisher(client, "")
	pub.Publish(ctx, domain.TrackingEvent{
		CampaignID: "camp-1",
		ContactID:  "user-2",
		Kind:       domain.EventClick,
		Timestamp:  time.Now().UTC(),
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c, _ := m.GetCampaign(ctx, "camp-1")
		if c != nil && c.Stats.Clicked == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("valid event after malformed one was never processed")
}

func TestDirectPublisherDetached(t *testing.T) {
	m := store.NewMemory()
	seedCampaign(t, m, "camp-1")

	agg := stats.NewAggregator(m, stats.NewLRUCache(100, time.Hour), 3)
	pub := NewDirectPublisher(agg)

	pub.Publish(context.Background(), domain.TrackingEvent{
		CampaignID: "camp-1",
		ContactID:  "user-1",
		Kind:       domain.EventOpen,
		Timestamp:  time.Now().UTC(),
	})

	waitForOpened(t, m, "camp-1", 1)
}
