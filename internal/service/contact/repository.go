package contact

import (
	"context"

	"github.com/ignite/campaigner/internal/domain"
)

// Repository defines the data access contract for contacts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateContact stores a new contact, returning
	// store.ErrDuplicateEmail when the normalized email is taken.
	CreateContact(ctx context.Context, c *domain.Contact) error

	// GetContact returns a contact or store.ErrNotFound.
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	// GetContactByEmail looks a contact up by normalized email.
	GetContactByEmail(ctx context.Context, email string) (*domain.Contact, error)

	// ListContacts returns all contacts, newest first.
	ListContacts(ctx context.Context) ([]domain.Contact, error)

	// UpdateContact overwrites an existing contact.
	UpdateContact(ctx context.Context, c *domain.Contact) error

	// DeleteContact removes a contact and releases its email.
	DeleteContact(ctx context.Context, id string) error
}
