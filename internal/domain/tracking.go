package domain

import "time"

// TrackingEventKind enumerates the engagement events the core folds into
// campaign stats.
type TrackingEventKind string

const (
	EventOpen  TrackingEventKind = "open"
	EventClick TrackingEventKind = "click"
)

// TrackingEvent is a single engagement event derived from a tracking
// request. It is not persisted as a discrete record; its effect is folded
// directly into the campaign's stats.
type TrackingEvent struct {
	CampaignID string            `json:"campaign_id"`
	ContactID  string            `json:"contact_id"`
	Kind       TrackingEventKind `json:"kind"`
	URL        string            `json:"url,omitempty"`
	Method     string            `json:"method,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// DedupKey is the cache key used to suppress duplicate open counting for
// the same contact/campaign pair within the dedup window.
func (e TrackingEvent) DedupKey() string {
	return e.CampaignID + ":" + e.ContactID
}
