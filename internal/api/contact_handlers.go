package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaigner/internal/importer"
	"github.com/ignite/campaigner/internal/pkg/httputil"
	"github.com/ignite/campaigner/internal/service/contact"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger files spill to disk.
const maxUploadMemory = 10 << 20

// writeContactError maps contact service sentinels to status codes.
func writeContactError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contact.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, contact.ErrDuplicateEmail), errors.Is(err, contact.ErrInvalidEmail):
		httputil.FieldError(w, "email", err.Error())
	case errors.Is(err, contact.ErrInvalidStatus):
		httputil.FieldError(w, "status", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// ListContacts returns all contacts.
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contacts": contacts, "count": len(contacts)})
}

// CreateContact creates a single contact.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var input contact.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.contacts.Create(r.Context(), input)
	if err != nil {
		writeContactError(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetContact returns a single contact.
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeContactError(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateContact applies a partial update to a contact.
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var input contact.UpdateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.contacts.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeContactError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteContact removes a contact.
func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeContactError(w, err)
		return
	}
	httputil.NoContent(w)
}

// UnsubscribeContact marks a contact unsubscribed. Unknown ids succeed so
// stale unsubscribe links never error for the recipient.
func (h *Handlers) UnsubscribeContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Unsubscribe(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeContactError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"status": "unsubscribed"})
}

// UploadContacts accepts a multipart CSV upload and starts a background
// import job. Responds immediately with the job id for polling.
func (h *Handlers) UploadContacts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.FieldError(w, "file", "file field is required")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	job, err := h.jobs.Submit(r.Context(), header.Filename, payload)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrEmptyFile),
			errors.Is(err, importer.ErrFileTooLarge),
			errors.Is(err, importer.ErrInvalidCSV),
			errors.Is(err, importer.ErrMissingColumns):
			httputil.FieldError(w, "file", err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}

	httputil.Accepted(w, map[string]any{
		"job_id":         job.ID,
		"status":         job.Status,
		"total_contacts": job.TotalContacts,
	})
}

// GetJobStatus returns the import job record with its completion estimate.
func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, status)
}
