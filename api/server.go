/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/counts/*    Count sessions, items, lifecycle, reconciliation
  /api/ledger/*    Hosted stock ledger admin (catalog, levels, movements)
  /api/scenarios/* Demo data loaders (development only)

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

	r.Route("/api", func(r chi.Router) {
		// Count session routes
		r.Route("/counts", func(r chi.Router) {
			r.Get("/", h.ListCounts)
			r.Post("/", h.CreateCount)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCount)
				r.Put("/", h.UpdateCount)

				r.Post("/items", h.AddItem)
				r.Put("/items/{itemID}", h.UpdateItem)
				r.Delete("/items/{itemID}", h.DeleteItem)

				r.Post("/generate", h.Generate)
				r.Post("/autofill", h.AutoFill)

				r.Post("/start", h.StartCount)
				r.Post("/complete", h.CompleteCount)
				r.Post("/validate", h.ValidateCount)
				r.Post("/cancel", h.CancelCount)

				r.Get("/summary", h.GetSummary)
				r.Get("/discrepancies", h.GetDiscrepancies)
				r.Get("/report", h.GetReport)
			})
		})

		// Hosted ledger admin routes
		if h.Admin != nil {
			r.Route("/ledger", func(r chi.Router) {
				r.Get("/products", h.ListProducts)
				r.Post("/products", h.UpsertProduct)
				r.Get("/stock", h.GetStock)
				r.Post("/stock", h.SetStock)
				r.Get("/movements", h.GetMovements)
			})

			// Demo scenarios reset the database; they need the hosted ledger.
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
