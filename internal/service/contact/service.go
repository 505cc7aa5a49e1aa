package contact

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/store"
)

// Service implements contact business logic.
type Service struct {
	repo Repository
}

// NewService creates a contact service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput holds the fields for creating a new contact.
type CreateInput struct {
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Status        string     `json:"status"`
	Tags          []string   `json:"tags"`
	ListIDs       []string   `json:"list_ids"`
	SubscribeDate *time.Time `json:"subscribe_date,omitempty"`
	Notes         string     `json:"notes"`
}

// UpdateInput holds the mutable fields for a contact update. Nil fields
// are not applied.
type UpdateInput struct {
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Status    *string   `json:"status,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	ListIDs   *[]string `json:"list_ids,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
}

// ValidateEmail checks that the address parses as a bare RFC 5322 address.
// Shared with the bulk import runner.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// normalizeStatus validates the status string, defaulting empty to active.
func normalizeStatus(raw string) (domain.ContactStatus, error) {
	if raw == "" {
		return domain.ContactActive, nil
	}
	s := domain.ContactStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Create validates and stores a new contact.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Contact, error) {
	if err := ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	subscribed := now
	if input.SubscribeDate != nil {
		subscribed = *input.SubscribeDate
	}
	c := &domain.Contact{
		ID:            uuid.New().String(),
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         strings.TrimSpace(input.Email),
		Status:        status,
		Tags:          input.Tags,
		ListIDs:       input.ListIDs,
		SubscribeDate: subscribed,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateContact(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return c, nil
}

// Get returns a single contact.
func (s *Service) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := s.repo.GetContact(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByEmail returns the contact owning the given address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	c, err := s.repo.GetContactByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns all contacts, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Contact, error) {
	return s.repo.ListContacts(ctx)
}

// Update applies the non-nil fields of input to an existing contact.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Contact, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.FirstName != nil {
		c.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		c.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Email != nil {
		if err := ValidateEmail(*input.Email); err != nil {
			return nil, err
		}
		c.Email = strings.TrimSpace(*input.Email)
	}
	if input.Status != nil {
		status, err := normalizeStatus(*input.Status)
		if err != nil {
			return nil, err
		}
		c.Status = status
	}
	if input.Tags != nil {
		c.Tags = *input.Tags
	}
	if input.ListIDs != nil {
		c.ListIDs = *input.ListIDs
	}
	if input.Notes != nil {
		c.Notes = *input.Notes
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateContact(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Unsubscribe marks a contact unsubscribed. Used by the public
// self-service endpoint, so an unknown id is not an error.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if c.Status == domain.ContactUnsubscribed {
		return nil
	}
	c.Status = domain.ContactUnsubscribed
	c.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateContact(ctx, c)
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteContact(ctx, id)
}
