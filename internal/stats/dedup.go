package stats

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DedupCache suppresses duplicate open counting for a campaign/contact pair
// within the dedup window. Seen records the key and reports whether it was
// already present; the window is measured from the first recording.
type DedupCache interface {
	Seen(ctx context.Context, key string) bool
}

// lruEntry is one cached key with its expiry.
type lruEntry struct {
	key     string
	expires time.Time
}

// LRUCache is a fixed-capacity, time-boxed dedup cache held in process
// memory. It is the default backend; it does not survive restarts and is
// not shared between server instances.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	order    *list.List // front = most recent
	entries  map[string]*list.Element

	// now is swapped out by tests.
	now func() time.Time
}

// NewLRUCache creates a cache holding at most capacity keys, each valid for
// window from its first recording.
func NewLRUCache(capacity int, window time.Duration) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		window:   window,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Seen reports whether key was recorded within the window, recording it
// when it was not.
func (c *LRUCache) Seen(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		if now.Before(entry.expires) {
			c.order.MoveToFront(elem)
			return true
		}
		// Expired entry starts a fresh window.
		entry.expires = now.Add(c.window)
		c.order.MoveToFront(elem)
		return false
	}

	elem := c.order.PushFront(&lruEntry{key: key, expires: now.Add(c.window)})
	c.entries[key] = elem
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
	return false
}

// Len returns the number of live entries, for tests and diagnostics.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
