package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/importer"
	"github.com/ignite/campaigner/internal/pkg/httputil"
	"github.com/ignite/campaigner/internal/service/campaign"
	"github.com/ignite/campaigner/internal/service/contact"
	"github.com/ignite/campaigner/internal/tracking"
)

// TemplateStore is the slice of the record store the template CRUD needs.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	PutTemplate(ctx context.Context, t *domain.Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

// Handlers bundles the service dependencies behind the HTTP endpoints.
type Handlers struct {
	campaigns *campaign.Service
	contacts  *contact.Service
	templates TemplateStore
	jobs      *importer.Runner
	tracking  *tracking.Handler

	startedAt time.Time
}

// NewHandlers creates the handler set. The tracking handler may be nil
// when tracking runs as a separate binary.
func NewHandlers(
	campaigns *campaign.Service,
	contacts *contact.Service,
	templates TemplateStore,
	jobs *importer.Runner,
	trackingHandler *tracking.Handler,
) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		contacts:  contacts,
		templates: templates,
		jobs:      jobs,
		tracking:  trackingHandler,
		startedAt: time.Now().UTC(),
	}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
