package campaign

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/store"
	"github.com/ignite/campaigner/internal/template"
)

// fakeSender records every message and optionally fails all deliveries.
type fakeSender struct {
	mu       sync.Mutex
	messages []*domain.EmailMessage
	failAll  bool
}

func (f *fakeSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if f.failAll {
		return &domain.SendResult{Success: false, Error: "smtp unavailable"}, nil
	}
	return &domain.SendResult{Success: true, MessageID: "fake", SentAt: time.Now()}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeSender) last() *domain.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

func newTestService(t *testing.T) (*Service, *store.Memory, *fakeSender) {
	t.Helper()
	repo := store.NewMemory()
	sender := &fakeSender{}
	svc := NewService(repo, sender, template.NewEngine(), Options{
		FromName:        "Acme News",
		FromEmail:       "news@acme.example",
		BatchSize:       10,
		TrackingBaseURL: "https://t.acme.example",
	})
	return svc, repo, sender
}

func seedContacts(t *testing.T, repo *store.Memory, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		c := &domain.Contact{
			ID:        "contact-" + string(rune('a'+i)),
			FirstName: "Pat",
			Email:     string(rune('a'+i)) + "@example.com",
			Status:    domain.ContactActive,
			Tags:      []string{"newsletter"},
		}
		if err := repo.CreateContact(ctx, c); err != nil {
			t.Fatalf("seeding contact: %v", err)
		}
	}
}

func draftCampaign(t *testing.T, svc *Service) *domain.Campaign {
	t.Helper()
	c, err := svc.Create(context.Background(), CreateInput{
		Name: "October Newsletter",
		Content: domain.ContentSource{Inline: &domain.InlineContent{
			Subject: "Hi {{ first_name | default: \"Friend\" }}",
			Content: "<html><body><p>Hello {{ first_name }}</p></body></html>",
		}},
		Targets: domain.Targets{Tags: []string{"newsletter"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func waitForStatus(t *testing.T, svc *Service, id string, want domain.CampaignStatus) *domain.Campaign {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if c.Status == want {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("campaign %s never reached status %q", id, want)
	return nil
}

func TestTransitionSentIsTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	got, _ := svc.Get(ctx, c.ID)
	got.Status = domain.CampaignSent
	if err := repo.PutCampaign(ctx, got); err != nil {
		t.Fatal(err)
	}

	for _, target := range []domain.CampaignStatus{
		domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignSending, domain.CampaignCancelled,
	} {
		if _, err := svc.Transition(ctx, c.ID, target); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("transition sent -> %s: expected ErrInvalidTransition, got %v", target, err)
		}
	}
	// Sent -> sent is a no-op, not an error.
	if _, err := svc.Transition(ctx, c.ID, domain.CampaignSent); err != nil {
		t.Errorf("transition sent -> sent: %v", err)
	}
}

func TestTransitionSendingRules(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		target domain.CampaignStatus
		ok     bool
	}{
		{domain.CampaignDraft, false},
		{domain.CampaignScheduled, false},
		{domain.CampaignSending, true},
		{domain.CampaignSent, true},
		{domain.CampaignCancelled, true},
	} {
		c := draftCampaign(t, svc)
		got, _ := svc.Get(ctx, c.ID)
		got.Status = domain.CampaignSending
		if err := repo.PutCampaign(ctx, got); err != nil {
			t.Fatal(err)
		}

		_, err := svc.Transition(ctx, c.ID, tc.target)
		if tc.ok && err != nil {
			t.Errorf("transition sending -> %s: %v", tc.target, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("transition sending -> %s: expected ErrInvalidTransition, got %v", tc.target, err)
		}
	}
}

func TestScheduleLeadTime(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	soon := time.Now().Add(2 * time.Minute)
	if _, err := svc.Update(ctx, c.ID, UpdateInput{SendDate: &soon}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, c.ID, domain.CampaignScheduled); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for 2 minute lead, got %v", err)
	}

	later := time.Now().Add(10 * time.Minute)
	if _, err := svc.Update(ctx, c.ID, UpdateInput{SendDate: &later}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Transition(ctx, c.ID, domain.CampaignScheduled)
	if err != nil {
		t.Fatalf("10 minute lead: %v", err)
	}
	if got.Status != domain.CampaignScheduled {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestSendDeliversAndFinalizes(t *testing.T) {
	svc, repo, sender := newTestService(t)
	ctx := context.Background()

	seedContacts(t, repo, 3)
	c := draftCampaign(t, svc)

	n, err := svc.Send(ctx, c.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 recipients, got %d", n)
	}

	final := waitForStatus(t, svc, c.ID, domain.CampaignSent)
	if final.Snapshot == nil || final.Snapshot.Subject == "" {
		t.Fatal("snapshot not captured at send time")
	}
	if final.Stats.Sent != 3 || final.Stats.Delivered != 3 {
		t.Fatalf("stats = %+v", final.Stats)
	}
	if final.SentAt() == nil {
		t.Fatal("sent_at not recorded")
	}
	if final.SendingProgress.LastBatchCompleted == nil {
		t.Fatal("last_batch_completed not recorded")
	}
	if sender.count() != 3 {
		t.Fatalf("sender saw %d messages", sender.count())
	}

	msg := sender.last()
	if !strings.Contains(msg.HTMLBody, "/track/open?c="+c.ID) {
		t.Fatalf("open pixel missing from body: %q", msg.HTMLBody)
	}
	if strings.Contains(msg.Subject, "{{") {
		t.Fatalf("merge fields not rendered: %q", msg.Subject)
	}

	// A second send on the finished campaign is rejected.
	if _, err := svc.Send(ctx, c.ID); !errors.Is(err, ErrAlreadySending) {
		t.Fatalf("expected ErrAlreadySending, got %v", err)
	}
}

func TestSendTotalFailureStaysSending(t *testing.T) {
	svc, repo, sender := newTestService(t)
	ctx := context.Background()
	sender.failAll = true

	seedContacts(t, repo, 2)
	c := draftCampaign(t, svc)
	if _, err := svc.Send(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	got, _ := svc.Get(ctx, c.ID)
	if got.Status != domain.CampaignSending {
		t.Fatalf("expected campaign to stay in sending after total failure, got %q", got.Status)
	}
}

func TestSendWithoutRecipients(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := draftCampaign(t, svc)
	if _, err := svc.Send(context.Background(), c.ID); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestRecipientResolutionUnion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	tagged := &domain.Contact{ID: "c1", Email: "c1@example.com", Status: domain.ContactActive, Tags: []string{"vip"}}
	listed := &domain.Contact{ID: "c2", Email: "c2@example.com", Status: domain.ContactActive, ListIDs: []string{"list-1"}}
	direct := &domain.Contact{ID: "c3", Email: "c3@example.com", Status: domain.ContactActive}
	both := &domain.Contact{ID: "c4", Email: "c4@example.com", Status: domain.ContactActive, Tags: []string{"vip"}, ListIDs: []string{"list-1"}}
	unsubbed := &domain.Contact{ID: "c5", Email: "c5@example.com", Status: domain.ContactUnsubscribed, Tags: []string{"vip"}}
	for _, c := range []*domain.Contact{tagged, listed, direct, both, unsubbed} {
		if err := repo.CreateContact(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	campaign := &domain.Campaign{
		Targets: domain.Targets{
			ListIDs:    []string{"list-1"},
			ContactIDs: []string{"c3"},
			Tags:       []string{"vip"},
		},
	}
	got, err := svc.resolveRecipients(ctx, campaign)
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]bool)
	for _, c := range got {
		ids[c.ID] = true
	}
	if len(got) != 4 || !ids["c1"] || !ids["c2"] || !ids["c3"] || !ids["c4"] {
		t.Fatalf("resolved %v", ids)
	}
}

func TestDuplicateSentCampaignUsesSnapshot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := repo.PutTemplate(ctx, &domain.Template{
		ID: "tpl-1", Name: "Live", Subject: "Edited later", Content: "<p>edited later</p>",
	}); err != nil {
		t.Fatal(err)
	}

	orig := &domain.Campaign{
		ID:      "orig",
		Name:    "Launch",
		Status:  domain.CampaignSent,
		Content: domain.ContentSource{TemplateRef: "tpl-1"},
		Targets: domain.Targets{Tags: []string{"all"}},
		Stats:   domain.CampaignStats{Sent: 100, Opened: 40},
		Snapshot: &domain.TemplateSnapshot{
			Name:    "Launch",
			Subject: "As actually sent",
			Content: "<p>as actually sent</p>",
		},
		CreatedAt: time.Now().UTC(),
	}
	sd := time.Now().Add(time.Hour)
	orig.SendDate = &sd
	if err := repo.PutCampaign(ctx, orig); err != nil {
		t.Fatal(err)
	}

	dup, err := svc.Duplicate(ctx, "orig")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Status != domain.CampaignDraft {
		t.Fatalf("status = %q", dup.Status)
	}
	if dup.Stats.Sent != 0 || dup.Stats.Opened != 0 || dup.Stats.OpenRate != "0%" {
		t.Fatalf("stats not cleared: %+v", dup.Stats)
	}
	if dup.SendDate != nil {
		t.Fatal("send date not cleared")
	}
	if dup.Content.Inline == nil || dup.Content.Inline.Subject != "As actually sent" {
		t.Fatalf("content should come from snapshot, got %+v", dup.Content)
	}
	if dup.Targets.Tags[0] != "all" {
		t.Fatalf("targeting not copied: %+v", dup.Targets)
	}
}

func TestSendTestPrefixesAndSubstitutes(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	if err := svc.SendTest(ctx, c.ID, []string{"qa@acme.example"}); err != nil {
		t.Fatalf("send test: %v", err)
	}
	msg := sender.last()
	if msg == nil {
		t.Fatal("no message sent")
	}
	if !strings.HasPrefix(msg.Subject, "[TEST] ") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Subject, "Test") {
		t.Fatalf("placeholder merge values not applied: %q", msg.Subject)
	}
	if msg.Email != "qa@acme.example" {
		t.Fatalf("sent to %q", msg.Email)
	}
}

func TestSendTestRequiresDraft(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	got, _ := svc.Get(ctx, c.ID)
	got.Status = domain.CampaignSending
	if err := repo.PutCampaign(ctx, got); err != nil {
		t.Fatal(err)
	}
	if err := svc.SendTest(ctx, c.ID, []string{"qa@acme.example"}); !errors.Is(err, ErrTestNotDraft) {
		t.Fatalf("expected ErrTestNotDraft, got %v", err)
	}
}

func TestUpdateRejectedOnceSending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	got, _ := svc.Get(ctx, c.ID)
	got.Status = domain.CampaignSending
	if err := repo.PutCampaign(ctx, got); err != nil {
		t.Fatal(err)
	}

	name := "renamed"
	if _, err := svc.Update(ctx, c.ID, UpdateInput{Name: &name}); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", err)
	}
}

func TestDeleteOnlyDraft(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	got, _ := svc.Get(ctx, c.ID)
	got.Status = domain.CampaignSent
	if err := repo.PutCampaign(ctx, got); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, c.ID); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("expected ErrNotDeletable, got %v", err)
	}

	d := draftCampaign(t, svc)
	if err := svc.Delete(ctx, d.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := svc.Get(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCancelFromScheduledAndSending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	c := draftCampaign(t, svc)
	if _, err := svc.Cancel(ctx, c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel from draft: expected ErrInvalidTransition, got %v", err)
	}

	got, _ := svc.Get(ctx, c.ID)
	got.Status = domain.CampaignSending
	if err := repo.PutCampaign(ctx, got); err != nil {
		t.Fatal(err)
	}
	cancelled, err := svc.Cancel(ctx, c.ID)
	if err != nil {
		t.Fatalf("cancel from sending: %v", err)
	}
	if cancelled.Status != domain.CampaignCancelled {
		t.Fatalf("status = %q", cancelled.Status)
	}
}
