package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/mailer"
	"github.com/ignite/campaigner/internal/store"
	"github.com/ignite/campaigner/internal/template"
)

// casAttempts bounds the read-modify-write retries on version conflicts for
// synchronous lifecycle operations.
const casAttempts = 3

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo      Repository
	sender    mailer.Sender
	templates *template.Engine

	fromName        string
	fromEmail       string
	batchSize       int
	trackingBaseURL string
}

// Options holds sender identity and delivery tuning for the service.
type Options struct {
	FromName        string
	FromEmail       string
	BatchSize       int
	TrackingBaseURL string
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, sender mailer.Sender, templates *template.Engine, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Service{
		repo:            repo,
		sender:          sender,
		templates:       templates,
		fromName:        opts.FromName,
		fromEmail:       opts.FromEmail,
		batchSize:       opts.BatchSize,
		trackingBaseURL: strings.TrimRight(opts.TrackingBaseURL, "/"),
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name     string               `json:"name"`
	Content  domain.ContentSource `json:"content"`
	Targets  domain.Targets       `json:"targets"`
	SendDate *time.Time           `json:"send_date,omitempty"`
}

// UpdateInput holds the mutable fields for a campaign update. Nil fields
// are not applied.
type UpdateInput struct {
	Name     *string               `json:"name,omitempty"`
	Content  *domain.ContentSource `json:"content,omitempty"`
	Targets  *domain.Targets       `json:"targets,omitempty"`
	SendDate *time.Time            `json:"send_date,omitempty"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns all campaigns, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Status:    domain.CampaignDraft,
		Content:   input.Content,
		Targets:   input.Targets,
		SendDate:  input.SendDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Stats.Recalculate()
	if err := s.repo.PutCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies mutable campaign fields. Campaigns that have started
// sending can no longer be edited.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Campaign, error) {
	return s.mutate(ctx, id, func(c *domain.Campaign) error {
		if !c.Editable() {
			return ErrNotEditable
		}
		if input.Name != nil {
			c.Name = *input.Name
		}
		if input.Content != nil {
			c.Content = *input.Content
		}
		if input.Targets != nil {
			c.Targets = *input.Targets
		}
		if input.SendDate != nil {
			c.SendDate = input.SendDate
		}
		return nil
	})
}

// Delete removes a campaign. Only drafts may be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrNotDeletable
	}
	return s.repo.DeleteCampaign(ctx, id)
}

// Transition moves a campaign to the target status, enforcing the
// lifecycle rules: sent is terminal, and a sending campaign may only move
// to sending, sent, or cancelled. Scheduling additionally requires a send
// date at least MinScheduleLead in the future.
func (s *Service) Transition(ctx context.Context, id string, target domain.CampaignStatus) (*domain.Campaign, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", target, ErrInvalidTransition)
	}
	return s.mutate(ctx, id, func(c *domain.Campaign) error {
		if err := validateTransition(c, target); err != nil {
			return err
		}
		if target == domain.CampaignSent && c.SentAtField == nil {
			now := time.Now().UTC()
			c.SentAtField = &now
		}
		c.Status = target
		return nil
	})
}

func validateTransition(c *domain.Campaign, target domain.CampaignStatus) error {
	if c.Status == domain.CampaignSent && target != domain.CampaignSent {
		return ErrInvalidTransition
	}
	if c.Status == domain.CampaignSending {
		switch target {
		case domain.CampaignSending, domain.CampaignSent, domain.CampaignCancelled:
		default:
			return ErrInvalidTransition
		}
	}
	if target == domain.CampaignScheduled {
		if c.SendDate == nil || time.Until(*c.SendDate) < domain.MinScheduleLead {
			return ErrInvalidSchedule
		}
	}
	return nil
}

// Cancel moves a scheduled or sending campaign to cancelled. Messages
// already handed to the mail transport are not recalled.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.mutate(ctx, id, func(c *domain.Campaign) error {
		if c.Status != domain.CampaignScheduled && c.Status != domain.CampaignSending {
			return ErrInvalidTransition
		}
		c.Status = domain.CampaignCancelled
		return nil
	})
}

// Duplicate produces a new draft with the original's content and targeting
// but cleared stats, progress, and send date. A campaign that has already
// sent contributes its snapshot, not the live template.
func (s *Service) Duplicate(ctx context.Context, id string) (*domain.Campaign, error) {
	orig, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	content := orig.Content
	if orig.Snapshot != nil {
		content = domain.ContentSource{Inline: &domain.InlineContent{
			Subject:      orig.Snapshot.Subject,
			Content:      orig.Snapshot.Content,
			TemplateType: orig.Snapshot.TemplateType,
		}}
	}

	now := time.Now().UTC()
	dup := &domain.Campaign{
		ID:        uuid.New().String(),
		Name:      orig.Name + " (Copy)",
		Status:    domain.CampaignDraft,
		Content:   content,
		Targets:   orig.Targets,
		CreatedAt: now,
		UpdatedAt: now,
	}
	dup.Stats.Recalculate()
	if err := s.repo.PutCampaign(ctx, dup); err != nil {
		return nil, err
	}
	return dup, nil
}

// resolveContent returns the effective subject/content for sending or
// testing. Inline content wins over a template reference.
func (s *Service) resolveContent(ctx context.Context, c *domain.Campaign) (*domain.TemplateSnapshot, error) {
	if c.Content.Inline != nil {
		return &domain.TemplateSnapshot{
			Name:         c.Name,
			Subject:      c.Content.Inline.Subject,
			Content:      c.Content.Inline.Content,
			TemplateType: c.Content.Inline.TemplateType,
			CapturedAt:   time.Now().UTC(),
		}, nil
	}
	if c.Content.TemplateRef != "" {
		t, err := s.repo.GetTemplate(ctx, c.Content.TemplateRef)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNoContent
			}
			return nil, err
		}
		return &domain.TemplateSnapshot{
			Name:         t.Name,
			Subject:      t.Subject,
			Content:      t.Content,
			TemplateType: t.TemplateType,
			CapturedAt:   time.Now().UTC(),
		}, nil
	}
	return nil, ErrNoContent
}

// resolveRecipients returns the union of list members, direct contact
// references, and tag-matched contacts, deduplicated by contact id. Only
// active contacts are eligible.
func (s *Service) resolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Contact, error) {
	all, err := s.repo.ListContacts(ctx)
	if err != nil {
		return nil, err
	}

	direct := make(map[string]bool, len(c.Targets.ContactIDs))
	for _, id := range c.Targets.ContactIDs {
		direct[id] = true
	}

	seen := make(map[string]bool)
	var out []domain.Contact
	for _, contact := range all {
		if contact.Status != domain.ContactActive {
			continue
		}
		if seen[contact.ID] {
			continue
		}
		matched := direct[contact.ID]
		if !matched {
			for _, listID := range c.Targets.ListIDs {
				if contact.InList(listID) {
					matched = true
					break
				}
			}
		}
		if !matched {
			for _, tag := range c.Targets.Tags {
				if contact.HasTag(tag) {
					matched = true
					break
				}
			}
		}
		if matched {
			seen[contact.ID] = true
			out = append(out, contact)
		}
	}
	return out, nil
}

// Send starts the send pipeline: resolves recipients, captures the content
// snapshot, marks the campaign sending, and delivers in the background.
// Returns the number of recipients the send was dispatched to.
func (s *Service) Send(ctx context.Context, id string) (int, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if c.Status == domain.CampaignSending || c.Status == domain.CampaignSent {
		return 0, ErrAlreadySending
	}
	if c.Status == domain.CampaignCancelled {
		return 0, ErrInvalidTransition
	}

	snapshot, err := s.resolveContent(ctx, c)
	if err != nil {
		return 0, err
	}
	recipients, err := s.resolveRecipients(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}

	c, err = s.mutate(ctx, id, func(c *domain.Campaign) error {
		if c.Status == domain.CampaignSending || c.Status == domain.CampaignSent {
			return ErrAlreadySending
		}
		c.Status = domain.CampaignSending
		c.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Delivery runs detached from the request. The goroutine owns its own
	// context; an HTTP client disconnect must not abort the send.
	go s.deliver(context.Background(), c.ID, snapshot, recipients)

	return len(recipients), nil
}

// deliver sends the rendered message to every recipient and finalizes the
// campaign. When every delivery fails the campaign stays in sending so the
// operator can retry or cancel.
func (s *Service) deliver(ctx context.Context, campaignID string, snapshot *domain.TemplateSnapshot, recipients []domain.Contact) {
	var delivered, failed int
	for i, contact := range recipients {
		// A cancel issued mid-send stops further dispatch. Messages already
		// handed off are not recalled.
		if i%s.batchSize == 0 && i > 0 {
			current, err := s.repo.GetCampaign(ctx, campaignID)
			if err == nil && current.Status == domain.CampaignCancelled {
				log.Printf("[campaign.Service] Campaign %s: cancelled after %d of %d messages", campaignID, i, len(recipients))
				return
			}
			// Progress marker is best effort; losing it to a conflict only
			// delays the next marker by one batch.
			batchDone := time.Now().UTC()
			if _, err := s.mutate(ctx, campaignID, func(c *domain.Campaign) error {
				c.SendingProgress.LastBatchCompleted = &batchDone
				return nil
			}); err != nil {
				log.Printf("[campaign.Service] Campaign %s: progress update failed: %v", campaignID, err)
			}
		}

		msg := s.buildMessage(campaignID, snapshot, &contact)
		result, err := s.sender.Send(ctx, msg)
		if err != nil || !result.Success {
			failed++
			continue
		}
		delivered++
	}

	if delivered == 0 {
		log.Printf("[campaign.Service] Campaign %s: all %d deliveries failed, staying in sending", campaignID, failed)
		return
	}

	now := time.Now().UTC()
	_, err := s.mutate(ctx, campaignID, func(c *domain.Campaign) error {
		if c.Status == domain.CampaignCancelled {
			return nil
		}
		c.Status = domain.CampaignSent
		c.SentAtField = &now
		c.SendingProgress.LastBatchCompleted = &now
		c.Stats.Sent += delivered
		c.Stats.Delivered += delivered
		c.Stats.Bounced += failed
		c.Stats.Recalculate()
		return nil
	})
	if err != nil {
		log.Printf("[campaign.Service] Campaign %s: finalize failed: %v", campaignID, err)
		return
	}
	log.Printf("[campaign.Service] Campaign %s: delivered %d, failed %d", campaignID, delivered, failed)
}

// buildMessage renders subject and body for one recipient and injects the
// open-tracking pixel.
func (s *Service) buildMessage(campaignID string, snapshot *domain.TemplateSnapshot, contact *domain.Contact) *domain.EmailMessage {
	vars := template.ContactVars(contact)
	subject, _ := s.templates.Render(campaignID+":subject", snapshot.Subject, vars)
	body, _ := s.templates.Render(campaignID+":body", snapshot.Content, vars)

	if s.trackingBaseURL != "" {
		pixel := fmt.Sprintf("%s/track/open?c=%s&u=%s",
			s.trackingBaseURL, url.QueryEscape(campaignID), url.QueryEscape(contact.ID))
		body = template.InjectOpenPixel(body, pixel)
	}

	return &domain.EmailMessage{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		ContactID:  contact.ID,
		Email:      contact.Email,
		FromName:   s.fromName,
		FromEmail:  s.fromEmail,
		Subject:    subject,
		HTMLBody:   body,
	}
}

// SendTest delivers the campaign to explicit test addresses. Only drafts
// may be test-sent; subjects are prefixed with [TEST] and merge fields are
// substituted with placeholder values.
func (s *Service) SendTest(ctx context.Context, id string, addresses []string) error {
	if len(addresses) == 0 {
		return fmt.Errorf("at least one test address is required")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrTestNotDraft
	}
	snapshot, err := s.resolveContent(ctx, c)
	if err != nil {
		return err
	}

	vars := template.PlaceholderVars()
	subject, _ := s.templates.Render("", snapshot.Subject, vars)
	body, _ := s.templates.Render("", snapshot.Content, vars)

	for _, addr := range addresses {
		msg := &domain.EmailMessage{
			ID:         uuid.New().String(),
			CampaignID: c.ID,
			Email:      addr,
			FromName:   s.fromName,
			FromEmail:  s.fromEmail,
			Subject:    "[TEST] " + subject,
			HTMLBody:   body,
		}
		if _, err := s.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("sending test to %s: %w", addr, err)
		}
	}
	return nil
}

// mutate runs a read-modify-write cycle with bounded retries on version
// conflicts. The mutator sees a fresh read on every attempt.
func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Campaign) error) (*domain.Campaign, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = time.Now().UTC()
		if err := s.repo.PutCampaign(ctx, c); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, lastErr
}
