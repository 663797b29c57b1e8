/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from proxy headers
  3. RequestLogger: zap access log + transaction log entry + HTTP metrics
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/investments/*    Place and read investments
  /api/users/*          Accounts, balances, portfolio queries
  /api/products/*       Read-only catalog
  /api/admin/*          Maturity sweep trigger and history
  /api/logs             Transaction log
  /api/scenarios/*      Demo data
  /metrics              Prometheus
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: RequestLogger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions tunes NewRouter. The zero value is usable.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger, h.Store))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/investments", func(r chi.Router) {
			r.Post("/", h.CreateInvestment)
			r.Get("/{id}", h.GetInvestment)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/portfolio", h.GetPortfolio)
			r.Get("/{id}/portfolio/stats", h.GetPortfolioStats)
			r.Get("/{id}/returns", h.GetReturns)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/maturity-sweep", h.TriggerSweep)
			r.Get("/sweeps", h.ListSweeps)
		})

		r.Get("/logs", h.ListLogs)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
