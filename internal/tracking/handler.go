// Package tracking serves the open pixel and click redirect and moves the
// resulting events onto a queue consumed by the stats aggregator. The
// handlers never fail visibly: the pixel and the redirect are always
// served, and tracking errors are swallowed and logged.
package tracking

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaigner/internal/domain"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Publisher hands an event off for asynchronous processing. Publish must
// return promptly; it never blocks the HTTP response.
type Publisher interface {
	Publish(ctx context.Context, evt domain.TrackingEvent)
}

// Handler serves the tracking endpoints.
type Handler struct {
	pub Publisher
}

// NewHandler creates a tracking handler publishing to pub.
func NewHandler(pub Publisher) *Handler {
	return &Handler{pub: pub}
}

// Routes returns the tracking router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open", h.HandleOpen)
	r.Get("/track/click", h.HandleClick)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleOpen always answers 200 with the pixel. Requests missing the
// campaign or contact id skip tracking but still serve the image.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaignID := q.Get("c")
	contactID := q.Get("u")
	if campaignID == "" || contactID == "" {
		h.servePixel(w)
		return
	}

	evt := domain.TrackingEvent{
		CampaignID: campaignID,
		ContactID:  contactID,
		Kind:       domain.EventOpen,
		Method:     q.Get("m"),
		IPAddress:  realIP(r),
		UserAgent:  r.UserAgent(),
		Timestamp:  time.Now().UTC(),
	}
	h.pub.Publish(r.Context(), evt)

	log.Printf("OPEN campaign=%s contact=%s", evt.CampaignID, evt.ContactID)
	h.servePixel(w)
}

// HandleClick validates the target and redirects. Only absolute http(s)
// URLs are accepted, so javascript: and scheme-relative targets cannot
// turn the redirector into an open-redirect gadget.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("url")

	dest, err := url.Parse(target)
	if err != nil || (dest.Scheme != "http" && dest.Scheme != "https") || dest.Host == "" {
		http.Error(w, "invalid redirect url", http.StatusBadRequest)
		return
	}

	campaignID := q.Get("c")
	contactID := q.Get("u")
	if campaignID != "" && contactID != "" {
		evt := domain.TrackingEvent{
			CampaignID: campaignID,
			ContactID:  contactID,
			Kind:       domain.EventClick,
			URL:        dest.String(),
			IPAddress:  realIP(r),
			UserAgent:  r.UserAgent(),
			Timestamp:  time.Now().UTC(),
		}
		h.pub.Publish(r.Context(), evt)
		log.Printf("CLICK campaign=%s contact=%s url=%s", evt.CampaignID, evt.ContactID, evt.URL)
	}

	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// HandleHealth reports liveness for the tracking listener.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
