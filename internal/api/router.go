/**
 * @description
 * HTTP router setup for the payments service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers payment routes.
func NewRouter(h *Handler, jwksURL string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Payments service is healthy"))
	})

	r.Route("/internal/payments", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Get("/run", h.handleRunPayments)
		r.Post("/run", h.handleRunPayments)
		r.Get("/health-report", h.handleHealthReport)
		r.Post("/charges/{id}/process", h.handleProcessCharge)
		r.Post("/reclaim", h.handleReclaimStuckCharges)
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwksURL))
		r.Get("/earnings", h.handleGetEarnings)
		r.Get("/fee-charges", h.handleListFeeCharges)
	})

	return r
}
