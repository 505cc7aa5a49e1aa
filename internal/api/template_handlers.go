package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/pkg/httputil"
	"github.com/ignite/campaigner/internal/store"
)

type templateInput struct {
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	Content      string `json:"content"`
	TemplateType string `json:"template_type"`
}

// ListTemplates returns all templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.ListTemplates(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": templates, "count": len(templates)})
}

// CreateTemplate stores a new reusable template.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var input templateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Name == "" {
		httputil.FieldError(w, "name", "name is required")
		return
	}
	if input.Content == "" {
		httputil.FieldError(w, "content", "content is required")
		return
	}
	now := time.Now().UTC()
	t := &domain.Template{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Subject:      input.Subject,
		Content:      input.Content,
		TemplateType: input.TemplateType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.templates.PutTemplate(r.Context(), t); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, t)
}

// GetTemplate returns a single template.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, t)
}

// UpdateTemplate overwrites a template's editable fields.
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	var input templateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Name != "" {
		t.Name = input.Name
	}
	if input.Subject != "" {
		t.Subject = input.Subject
	}
	if input.Content != "" {
		t.Content = input.Content
	}
	if input.TemplateType != "" {
		t.TemplateType = input.TemplateType
	}
	t.UpdatedAt = time.Now().UTC()
	if err := h.templates.PutTemplate(r.Context(), t); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, t)
}

// DeleteTemplate removes a template. Campaigns that already snapshotted it
// are unaffected.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
