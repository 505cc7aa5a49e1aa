package stats

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/store"
)

// CampaignStore is the slice of the record store gateway the aggregator
// needs: a versioned read and a stats-only conditional write.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	UpdateCampaignStats(ctx context.Context, id string, stats domain.CampaignStats, expectedVersion int64) error
}

// Aggregator merges engagement events into campaign counters.
type Aggregator struct {
	store       CampaignStore
	dedup       DedupCache
	maxAttempts int

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

// NewAggregator creates an aggregator with the given dedup cache and retry
// budget. maxAttempts counts full read-modify-write cycles.
func NewAggregator(cs CampaignStore, dedup DedupCache, maxAttempts int) *Aggregator {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Aggregator{
		store:       cs,
		dedup:       dedup,
		maxAttempts: maxAttempts,
		sleep:       time.Sleep,
	}
}

// RecordEvent folds one event into the campaign's stats. Duplicate opens
// within the dedup window are discarded. The write is retried with
// exponential backoff; an exhausted event is dropped and logged, never
// surfaced to the original requester.
func (a *Aggregator) RecordEvent(ctx context.Context, evt domain.TrackingEvent) {
	if evt.CampaignID == "" || evt.ContactID == "" {
		return
	}
	if evt.Kind == domain.EventOpen && a.dedup.Seen(ctx, evt.DedupKey()) {
		return
	}

	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			a.sleep(time.Duration(1<<attempt) * time.Second)
		}

		c, err := a.store.GetCampaign(ctx, evt.CampaignID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[stats] %s event for unknown campaign %s dropped", evt.Kind, evt.CampaignID)
				return
			}
			lastErr = err
			continue
		}

		next := merge(c.Stats, evt.Kind)
		if err := a.store.UpdateCampaignStats(ctx, evt.CampaignID, next, c.Version); err != nil {
			// Conflicts and transient store failures both restart the
			// whole cycle against a fresh read.
			lastErr = err
			continue
		}
		return
	}

	log.Printf("[stats] dropping %s event for campaign %s after %d attempts: %v",
		evt.Kind, evt.CampaignID, a.maxAttempts, lastErr)
}

// merge computes the new counters for one event. Sent and delivered are
// floored at 1 so rates never divide by zero, and delivered is kept at or
// above opened.
func merge(s domain.CampaignStats, kind domain.TrackingEventKind) domain.CampaignStats {
	switch kind {
	case domain.EventOpen:
		s.Opened++
	case domain.EventClick:
		s.Clicked++
	}
	if s.Sent < 1 {
		s.Sent = 1
	}
	if s.Delivered < 1 {
		s.Delivered = 1
	}
	if s.Delivered < s.Opened {
		s.Delivered = s.Opened
	}
	s.Recalculate()
	return s
}
