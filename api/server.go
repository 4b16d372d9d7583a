/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  X-Request-ID header, UUID when absent
  2. OTelHTTP:   Server span per request, named after the route pattern
  3. AccessLog:  zerolog line + Prometheus counters per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back-office frontend
  6. Timeout:    Request-scoped deadline for store operations

ROUTE GROUPS:
  /health                 Database ping, public
  /metrics                Prometheus, public
  /api/v1/auth/login      Public
  /api/v1/*               Everything else requires a Bearer token

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Bearer token check
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/commerce-engine/auth"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(OTelHTTP(cfg.ServiceName))
	r.Use(AccessLog)
	r.Use(Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.Health)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.auth))

			r.Route("/auth", func(r chi.Router) {
				r.Get("/validate", h.ValidateToken)
				r.Delete("/logout", h.Logout)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/most_purchased_by_category", h.MostPurchasedByCategory)
				r.Get("/top_revenue_by_category", h.TopRevenueByCategory)
				r.Get("/purchases", h.ListPurchases)
				r.Get("/purchases_by_granularity", h.PurchasesByGranularity)
			})

			r.Route("/purchases", func(r chi.Router) {
				r.Post("/", h.CreatePurchase)
				r.Get("/{id}", h.GetPurchase)
				r.Post("/{id}/complete", h.CompletePurchase)
			})
		})
	})

	return r
}
