/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for back-office frontends

ROUTE GROUPS:
  /api/workers/*    Worker registration, debts, reconciliation
  /api/debts/*      Debt issuance, history, write-off
  /api/payments/*   Payroll payments, history, cancellation
  /api/sessions/*   Payroll session lifecycle
  /api/audit        Audit trail
  /metrics          Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Get("/{id}/debts", h.ListWorkerDebts)
			r.Post("/{id}/debt-payments", h.ProcessDebtPayment)
		})

		// Debt routes
		r.Route("/debts", func(r chi.Router) {
			r.Post("/", h.IssueDebt)
			r.Get("/{id}", h.GetDebt)
			r.Get("/{id}/history", h.GetDebtHistory)
			r.Post("/{id}/write-off", h.WriteOffDebt)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
			r.Get("/{id}/history", h.GetPaymentHistory)
			r.Post("/{id}/cancel", h.CancelPayment)
		})

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Get("/active", h.GetActiveSession)
		})

		// Audit trail
		r.Get("/audit", h.GetAuditTrail)
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
