package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Engagement tracking. These also run on the standalone tracking
	// binary; registering them here keeps single-process deployments whole.
	if h.tracking != nil {
		r.Get("/track/open", h.tracking.HandleOpen)
		r.Get("/track/click", h.tracking.HandleClick)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/status", h.TransitionCampaign)
				r.Post("/schedule", h.ScheduleCampaign)
				r.Post("/send", h.SendCampaign)
				r.Post("/test", h.SendTestCampaign)
				r.Post("/cancel", h.CancelCampaign)
				r.Post("/duplicate", h.DuplicateCampaign)
			})
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Post("/upload", h.UploadContacts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetContact)
				r.Put("/", h.UpdateContact)
				r.Delete("/", h.DeleteContact)
				r.Post("/unsubscribe", h.UnsubscribeContact)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTemplate)
				r.Put("/", h.UpdateTemplate)
				r.Delete("/", h.DeleteTemplate)
			})
		})

		r.Get("/jobs/{id}/status", h.GetJobStatus)
	})

	return r
}
