package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLRUCacheSeen(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10, time.Hour)

	if c.Seen(ctx, "camp:user") {
		t.Fatal("fresh key reported as seen")
	}
	if !c.Seen(ctx, "camp:user") {
		t.Fatal("recorded key not reported as seen")
	}
	if c.Seen(ctx, "camp:other") {
		t.Fatal("distinct key reported as seen")
	}
}

func TestLRUCacheWindowExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10, time.Hour)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Seen(ctx, "k")

	// Still inside the window.
	c.now = func() time.Time { return now.Add(59 * time.Minute) }
	if !c.Seen(ctx, "k") {
		t.Fatal("key expired early")
	}

	// Window measured from the first recording, not the last check.
	c.now = func() time.Time { return now.Add(61 * time.Minute) }
	if c.Seen(ctx, "k") {
		t.Fatal("key not expired after window")
	}
}

func TestLRUCacheCapacityEviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Hour)

	c.Seen(ctx, "a")
	c.Seen(ctx, "b")
	c.Seen(ctx, "c") // evicts a

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if c.Seen(ctx, "a") {
		t.Fatal("evicted key still reported as seen")
	}
	if !c.Seen(ctx, "c") {
		t.Fatal("recent key lost")
	}
}

func TestRedisCacheSeen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, time.Hour)

	if c.Seen(ctx, "camp:user") {
		t.Fatal("fresh key reported as seen")
	}
	if !c.Seen(ctx, "camp:user") {
		t.Fatal("recorded key not reported as seen")
	}

	srv.FastForward(2 * time.Hour)
	if c.Seen(ctx, "camp:user") {
		t.Fatal("key survived TTL")
	}
}
