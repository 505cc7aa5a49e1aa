package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignCancelled:
		return true
	}
	return false
}

// MinScheduleLead is the minimum time a scheduled send must lie in the future.
const MinScheduleLead = 5 * time.Minute

// InlineContent is campaign content decoupled from any template.
type InlineContent struct {
	Subject      string `json:"subject"`
	Content      string `json:"content"`
	TemplateType string `json:"template_type"`
}

// ContentSource is the tagged union of the two content representations a
// campaign can carry: an inline subject/content pair or a reference to a
// shared template. At most one side is set; Inline wins when both are,
// so later edits to a shared template never retroactively alter a campaign
// already associated with specific content.
type ContentSource struct {
	Inline      *InlineContent `json:"inline,omitempty"`
	TemplateRef string         `json:"template_ref,omitempty"`
}

// IsZero reports whether no content source has been set.
func (c ContentSource) IsZero() bool {
	return c.Inline == nil && c.TemplateRef == ""
}

// Targets describes who a campaign is sent to. The recipient set is the
// union of list members, directly referenced contacts, and tag-matched
// contacts, deduplicated by contact id.
type Targets struct {
	ListIDs    []string `json:"list_ids,omitempty"`
	ContactIDs []string `json:"contact_ids,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// IsZero reports whether no targeting has been configured.
func (t Targets) IsZero() bool {
	return len(t.ListIDs) == 0 && len(t.ContactIDs) == 0 && len(t.Tags) == 0
}

// CampaignStats holds the cumulative engagement counters for a campaign.
// OpenRate and ClickRate are derived, stored as formatted integer
// percentages, and must be recomputed on every counter mutation.
type CampaignStats struct {
	Sent         int    `json:"sent"`
	Delivered    int    `json:"delivered"`
	Opened       int    `json:"opened"`
	Clicked      int    `json:"clicked"`
	Bounced      int    `json:"bounced"`
	Unsubscribed int    `json:"unsubscribed"`
	OpenRate     string `json:"open_rate"`
	ClickRate    string `json:"click_rate"`
}

// Recalculate recomputes the derived rate fields from the counters.
// Division is guarded so a campaign with sent=0 reports "0%".
func (s *CampaignStats) Recalculate() {
	denom := s.Sent
	if denom < 1 {
		denom = 1
	}
	s.OpenRate = fmt.Sprintf("%d%%", ratePercent(s.Opened, denom))
	s.ClickRate = fmt.Sprintf("%d%%", ratePercent(s.Clicked, denom))
}

func ratePercent(n, denom int) int {
	p := int(float64(n)/float64(denom)*100 + 0.5)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// TemplateSnapshot is the immutable copy of rendered content captured at the
// moment of sending — the record of what was actually sent, independent of
// later template edits.
type TemplateSnapshot struct {
	Name         string    `json:"name"`
	Subject      string    `json:"subject"`
	Content      string    `json:"content"`
	TemplateType string    `json:"template_type"`
	CapturedAt   time.Time `json:"captured_at"`
}

// SendingProgress records how far the send pipeline has advanced.
type SendingProgress struct {
	LastBatchCompleted *time.Time `json:"last_batch_completed,omitempty"`
}

// Campaign represents a scheduled or sent batch email targeting a resolved
// set of contacts.
type Campaign struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Status          CampaignStatus    `json:"status"`
	Content         ContentSource     `json:"content"`
	Targets         Targets           `json:"targets"`
	SendDate        *time.Time        `json:"send_date,omitempty"`
	Stats           CampaignStats     `json:"stats"`
	SendingProgress SendingProgress   `json:"sending_progress"`
	Snapshot        *TemplateSnapshot `json:"template_snapshot,omitempty"`
	SentAtField     *time.Time        `json:"sent_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	// Version is the store's optimistic-concurrency token. Zero means the
	// record has never been written.
	Version int64 `json:"-"`
}

// SentAt resolves the canonical completion time: the explicit field when
// present, otherwise the legacy sending_progress.last_batch_completed.
func (c *Campaign) SentAt() *time.Time {
	if c.SentAtField != nil {
		return c.SentAtField
	}
	return c.SendingProgress.LastBatchCompleted
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// Editable reports whether CRUD mutation of the campaign is still allowed.
func (c *Campaign) Editable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}
