package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/pkg/httputil"
	"github.com/ignite/campaigner/internal/service/campaign"
	"github.com/ignite/campaigner/internal/store"
)

// writeCampaignError maps campaign service sentinels to status codes.
func writeCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidSchedule):
		httputil.FieldError(w, "send_date", err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNotEditable),
		errors.Is(err, campaign.ErrNotDeletable),
		errors.Is(err, campaign.ErrAlreadySending),
		errors.Is(err, campaign.ErrNoContent),
		errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrTestNotDraft):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, store.ErrVersionConflict):
		httputil.Error(w, http.StatusConflict, "campaign was modified concurrently, retry")
	default:
		httputil.InternalError(w, err)
	}
}

// ListCampaigns returns all campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns, "count": len(campaigns)})
}

// CreateCampaign creates a draft campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Name == "" {
		httputil.FieldError(w, "name", "name is required")
		return
	}
	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign returns a single campaign.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign applies a partial update to an editable campaign.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.UpdateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign removes a draft campaign.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.NoContent(w)
}

// TransitionCampaign moves a campaign to a requested status.
func (h *Handlers) TransitionCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.Status == "" {
		httputil.FieldError(w, "status", "status is required")
		return
	}
	c, err := h.campaigns.Transition(r.Context(), chi.URLParam(r, "id"), domain.CampaignStatus(body.Status))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ScheduleCampaign sets the send date and moves the campaign to scheduled.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SendDate time.Time `json:"send_date"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.SendDate.IsZero() {
		httputil.FieldError(w, "send_date", "send_date is required")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Update(r.Context(), id, campaign.UpdateInput{SendDate: &body.SendDate}); err != nil {
		writeCampaignError(w, err)
		return
	}
	c, err := h.campaigns.Transition(r.Context(), id, domain.CampaignScheduled)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// SendCampaign starts delivery. The recipient count is returned
// immediately; delivery continues in the background.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.Accepted(w, map[string]any{"status": "sending", "recipients": recipients})
}

// SendTestCampaign sends the campaign to the given addresses with
// placeholder merge data.
func (h *Handlers) SendTestCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Addresses []string `json:"addresses"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if len(body.Addresses) == 0 {
		httputil.FieldError(w, "addresses", "at least one address is required")
		return
	}
	if err := h.campaigns.SendTest(r.Context(), chi.URLParam(r, "id"), body.Addresses); err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"status": "test sent", "recipients": len(body.Addresses)})
}

// CancelCampaign cancels a scheduled or in-flight campaign.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DuplicateCampaign creates a fresh draft copy of an existing campaign.
func (h *Handlers) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.Created(w, c)
}
