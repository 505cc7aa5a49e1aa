package campaign

import (
	"context"

	"github.com/ignite/campaigner/internal/domain"
)

// Repository defines the data access contract for the campaign service.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetCampaign returns a single campaign or store.ErrNotFound.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// ListCampaigns returns all campaigns ordered by created_at DESC.
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// PutCampaign writes a campaign conditioned on its version token and
	// advances the token on success. A zero version creates the record.
	PutCampaign(ctx context.Context, c *domain.Campaign) error

	// DeleteCampaign removes a campaign.
	DeleteCampaign(ctx context.Context, id string) error

	// GetTemplate returns a template or store.ErrNotFound. Used to resolve
	// template references at send and duplicate time.
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)

	// ListContacts returns all contacts, for recipient resolution.
	ListContacts(ctx context.Context) ([]domain.Contact, error)
}
