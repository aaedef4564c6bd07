package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/koibridge/match-app/internal/metrics"
)

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	r.Use(corsHandler.Handler)

	r.Route("/api", func(api chi.Router) {
		api.Post("/match", h.handleMatch)
		api.Delete("/match", h.handleCancelMatch)
		api.Get("/waiting-stats", h.handleWaitingStats)

		if h.sessions != nil {
			api.Delete("/chat", h.handleEndChat)
		}
		if h.messages != nil {
			api.Post("/messages", h.handleSendMessage)
			api.Get("/messages", h.handleListMessages)
		}
		if h.resolver != nil {
			api.Get("/detect-country", h.handleDetectCountry)
		}
	})

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
