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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*      Employees, balances, application history
  /api/applications/*   Submission and approval transitions
  /api/approvals/*      Per-role pending queues
  /api/admin/*          Allocation and adjustments
  /api/holidays/*       Calendar management and sync
  /api/leave-types      Rule table

SECURITY NOTE:
  Authentication is an external collaborator: the gateway in front of this
  service verifies identity and forwards it as X-Actor-ID / X-Actor-Role.
  This service only enforces authorization against the resolved role.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/applications", h.ListUserApplications)
		})

		// Application routes
		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.SubmitApplication)
			r.Get("/{id}", h.GetApplication)
			r.Post("/{id}/submit", h.SubmitDraft)
			r.Post("/{id}/approve", h.ApproveApplication)
			r.Post("/{id}/reject", h.RejectApplication)
		})

		// Approval queues
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/queue", h.ApprovalQueue)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/allocations", h.RunAllocation)
			r.Post("/adjustments", h.CreateAdjustment)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Post("/sync", h.SyncHolidays)
			r.Delete("/{date}", h.DeactivateHoliday)
		})

		// Meta
		r.Get("/leave-types", h.ListLeaveTypes)
	})

	return r
}
