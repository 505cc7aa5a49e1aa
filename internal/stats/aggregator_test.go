package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/store"
)

func openEvent(campaignID, contactID string) domain.TrackingEvent {
	return domain.TrackingEvent{
		CampaignID: campaignID,
		ContactID:  contactID,
		Kind:       domain.EventOpen,
		Timestamp:  time.Now().UTC(),
	}
}

func clickEvent(campaignID, contactID string) domain.TrackingEvent {
	e := openEvent(campaignID, contactID)
	e.Kind = domain.EventClick
	return e
}

func seedCampaign(t *testing.T, m *store.Memory, id string, sent int) {
	t.Helper()
	c := &domain.Campaign{ID: id, Name: "n", Status: domain.CampaignSent, CreatedAt: time.Now().UTC()}
	c.Stats.Sent = sent
	c.Stats.Delivered = sent
	c.Stats.Recalculate()
	if err := m.PutCampaign(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func newAggregator(m CampaignStore) *Aggregator {
	a := NewAggregator(m, NewLRUCache(100, time.Hour), 3)
	a.sleep = func(time.Duration) {}
	return a
}

func TestDuplicateOpenSuppressed(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seedCampaign(t, m, "c1", 10)
	a := newAggregator(m)

	for i := 0; i < 5; i++ {
		a.RecordEvent(ctx, openEvent("c1", "u1"))
	}

	c, _ := m.GetCampaign(ctx, "c1")
	if c.Stats.Opened != 1 {
		t.Fatalf("opened = %d, want 1 despite 5 pixel loads", c.Stats.Opened)
	}
	if c.Stats.OpenRate != "10%" {
		t.Fatalf("open rate = %q", c.Stats.OpenRate)
	}
}

func TestOpensFromDistinctContactsAllCount(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seedCampaign(t, m, "c1", 10)
	a := newAggregator(m)

	a.RecordEvent(ctx, openEvent("c1", "u1"))
	a.RecordEvent(ctx, openEvent("c1", "u2"))
	a.RecordEvent(ctx, openEvent("c1", "u3"))

	c, _ := m.GetCampaign(ctx, "c1")
	if c.Stats.Opened != 3 {
		t.Fatalf("opened = %d, want 3", c.Stats.Opened)
	}
}

func TestClicksAreNotDeduped(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seedCampaign(t, m, "c1", 10)
	a := newAggregator(m)

	a.RecordEvent(ctx, clickEvent("c1", "u1"))
	a.RecordEvent(ctx, clickEvent("c1", "u1"))

	c, _ := m.GetCampaign(ctx, "c1")
	if c.Stats.Clicked != 2 {
		t.Fatalf("clicked = %d, want 2", c.Stats.Clicked)
	}
}

func TestZeroSentCampaignGetsFlooredCounters(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seedCampaign(t, m, "c1", 0)
	a := newAggregator(m)

	a.RecordEvent(ctx, openEvent("c1", "u1"))

	c, _ := m.GetCampaign(ctx, "c1")
	if c.Stats.Sent != 1 || c.Stats.Delivered != 1 {
		t.Fatalf("counters not floored: %+v", c.Stats)
	}
	if c.Stats.OpenRate != "100%" {
		t.Fatalf("open rate = %q", c.Stats.OpenRate)
	}
}

func TestUnknownCampaignDropped(t *testing.T) {
	m := store.NewMemory()
	a := newAggregator(m)
	// Must not panic or retry forever.
	a.RecordEvent(context.Background(), openEvent("ghost", "u1"))
}

// conflictingStore fails the first n stats writes with a version conflict,
// simulating interleaved writers.
type conflictingStore struct {
	*store.Memory
	mu       sync.Mutex
	failures int
	writes   int
}

func (s *conflictingStore) UpdateCampaignStats(ctx context.Context, id string, stats domain.CampaignStats, expectedVersion int64) error {
	s.mu.Lock()
	s.writes++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return store.ErrVersionConflict
	}
	return s.Memory.UpdateCampaignStats(ctx, id, stats, expectedVersion)
}

func TestConflictRetriesWholeCycle(t *testing.T) {
	ctx := context.Background()
	cs := &conflictingStore{Memory: store.NewMemory(), failures: 2}
	seedCampaign(t, cs.Memory, "c1", 10)
	a := newAggregator(cs)

	a.RecordEvent(ctx, openEvent("c1", "u1"))

	c, _ := cs.Memory.GetCampaign(ctx, "c1")
	if c.Stats.Opened != 1 {
		t.Fatalf("opened = %d after conflict retries", c.Stats.Opened)
	}
	if cs.writes != 3 {
		t.Fatalf("writes = %d, want 3 (two conflicts then success)", cs.writes)
	}
}

func TestEventDroppedAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	cs := &conflictingStore{Memory: store.NewMemory(), failures: 10}
	seedCampaign(t, cs.Memory, "c1", 10)

	var slept []time.Duration
	a := NewAggregator(cs, NewLRUCache(100, time.Hour), 3)
	a.sleep = func(d time.Duration) { slept = append(slept, d) }

	a.RecordEvent(ctx, openEvent("c1", "u1"))

	c, _ := cs.Memory.GetCampaign(ctx, "c1")
	if c.Stats.Opened != 0 {
		t.Fatalf("opened = %d, event should have been dropped", c.Stats.Opened)
	}
	// Backoff doubles: 2s then 4s between the three attempts.
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 4*time.Second {
		t.Fatalf("backoff schedule = %v", slept)
	}
}

func TestDeliveredKeptAtOrAboveOpened(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	c := &domain.Campaign{ID: "c1", Name: "n", Status: domain.CampaignSent, CreatedAt: time.Now().UTC()}
	c.Stats = domain.CampaignStats{Sent: 5, Delivered: 1, Opened: 1}
	if err := m.PutCampaign(ctx, c); err != nil {
		t.Fatal(err)
	}

	a := newAggregator(m)
	a.RecordEvent(ctx, openEvent("c1", "u9"))

	got, _ := m.GetCampaign(ctx, "c1")
	if got.Stats.Delivered < got.Stats.Opened {
		t.Fatalf("delivered %d < opened %d", got.Stats.Delivered, got.Stats.Opened)
	}
}
