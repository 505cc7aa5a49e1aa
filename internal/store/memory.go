package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/campaigner/internal/domain"
)

// Memory is an in-process gateway used by tests and local development.
// It mirrors the Dynamo implementation's semantics, including version
// conflicts and the contact email uniqueness guard.
type Memory struct {
	mu            sync.RWMutex
	campaigns     map[string]*domain.Campaign
	contacts      map[string]*domain.Contact
	contactEmails map[string]string // normalized email -> contact id
	templates     map[string]*domain.Template
	jobs          map[string]*domain.UploadJob
	archives      map[string][]byte
}

// NewMemory returns an empty in-process gateway.
func NewMemory() *Memory {
	return &Memory{
		campaigns:     make(map[string]*domain.Campaign),
		contacts:      make(map[string]*domain.Contact),
		contactEmails: make(map[string]string),
		templates:     make(map[string]*domain.Template),
		jobs:          make(map[string]*domain.UploadJob),
		archives:      make(map[string][]byte),
	}
}

// jsonClone round-trips v through JSON so callers never share slices or
// pointers with the stored copy.
func jsonClone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		cp := *v
		return &cp
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		cp := *v
		return &cp
	}
	return out
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	out := jsonClone(c)
	out.Version = c.Version // excluded from JSON
	return out
}

func cloneJob(j *domain.UploadJob) *domain.UploadJob {
	out := jsonClone(j)
	out.Version = j.Version
	return out
}

// GetCampaign returns the campaign with the given id.
func (m *Memory) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCampaign(c), nil
}

// ListCampaigns returns all campaigns ordered by creation time, newest first.
func (m *Memory) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, *cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PutCampaign writes a campaign. A version of zero creates the record;
// otherwise the stored version must match or ErrVersionConflict is
// returned. On success the campaign's version is advanced.
func (m *Memory) PutCampaign(ctx context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.campaigns[c.ID]
	if c.Version == 0 {
		if ok {
			return ErrVersionConflict
		}
	} else {
		if !ok {
			return ErrNotFound
		}
		if existing.Version != c.Version {
			return ErrVersionConflict
		}
	}
	c.Version++
	m.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

// UpdateCampaignStats replaces only the stats block of a campaign,
// conditional on the expected version.
func (m *Memory) UpdateCampaignStats(ctx context.Context, id string, stats domain.CampaignStats, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Version != expectedVersion {
		return ErrVersionConflict
	}
	c.Stats = stats
	c.Version++
	return nil
}

// DeleteCampaign removes a campaign. Deleting an absent record is not an
// error.
func (m *Memory) DeleteCampaign(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.campaigns, id)
	return nil
}

// NormalizeEmail lowercases and trims an address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateContact stores a new contact. The normalized email must be unused
// or ErrDuplicateEmail is returned.
func (m *Memory) CreateContact(ctx context.Context, c *domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NormalizeEmail(c.Email)
	if _, taken := m.contactEmails[key]; taken {
		return ErrDuplicateEmail
	}
	m.contactEmails[key] = c.ID
	m.contacts[c.ID] = jsonClone(c)
	return nil
}

// GetContact returns the contact with the given id.
func (m *Memory) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return jsonClone(c), nil
}

// GetContactByEmail looks a contact up by normalized email.
func (m *Memory) GetContactByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.contactEmails[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return jsonClone(c), nil
}

// ListContacts returns all contacts ordered by subscribe date, newest first.
func (m *Memory) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, *jsonClone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscribeDate.After(out[j].SubscribeDate) })
	return out, nil
}

// UpdateContact overwrites an existing contact. Changing the email re-checks
// uniqueness against the new address.
func (m *Memory) UpdateContact(ctx context.Context, c *domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.contacts[c.ID]
	if !ok {
		return ErrNotFound
	}
	oldKey := NormalizeEmail(existing.Email)
	newKey := NormalizeEmail(c.Email)
	if oldKey != newKey {
		if owner, taken := m.contactEmails[newKey]; taken && owner != c.ID {
			return ErrDuplicateEmail
		}
		delete(m.contactEmails, oldKey)
		m.contactEmails[newKey] = c.ID
	}
	m.contacts[c.ID] = jsonClone(c)
	return nil
}

// DeleteContact removes a contact and releases its email guard.
func (m *Memory) DeleteContact(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil
	}
	delete(m.contactEmails, NormalizeEmail(c.Email))
	delete(m.contacts, id)
	return nil
}

// GetTemplate returns the template with the given id.
func (m *Memory) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return jsonClone(t), nil
}

// ListTemplates returns all templates ordered by name.
func (m *Memory) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, *jsonClone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutTemplate creates or replaces a template.
func (m *Memory) PutTemplate(ctx context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = jsonClone(t)
	return nil
}

// DeleteTemplate removes a template.
func (m *Memory) DeleteTemplate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

// GetJob returns the upload job with the given id.
func (m *Memory) GetJob(ctx context.Context, id string) (*domain.UploadJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

// PutJob writes an upload job with the same version semantics as
// PutCampaign.
func (m *Memory) PutJob(ctx context.Context, j *domain.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.jobs[j.ID]
	if j.Version == 0 {
		if ok {
			return ErrVersionConflict
		}
	} else {
		if !ok {
			return ErrNotFound
		}
		if existing.Version != j.Version {
			return ErrVersionConflict
		}
	}
	j.Version++
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

// ArchiveUpload keeps the raw upload payload for later inspection.
func (m *Memory) ArchiveUpload(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.archives[key] = cp
	return nil
}
