/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/clients/*           Client management and per-client ledger
  /api/consumption/*       Daily batch trigger
  /api/dashboard           Headline totals

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Put("/{id}", h.UpdateClient)
			r.Delete("/{id}", h.DeleteClient)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/consumption", h.GetConsumptionLogs)
			r.Post("/{id}/credits", h.PostCredit)
			r.Get("/{id}/reconcile", h.ReconcileClient)
		})

		// Batch routes
		r.Route("/consumption", func(r chi.Router) {
			r.Post("/process", h.ProcessDailyConsumption)
		})

		// Dashboard routes
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
