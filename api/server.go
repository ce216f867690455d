/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. logging:    Structured request logging via logrus
  4. CORS:       Cross-origin requests for the mobile/web clients
  5. Identity:   Session-token resolution (everything except sign-in)

ROUTE GROUPS:
  /api/auth/*           Google sign-in exchange (no session required)
  /api/overview         Landing-screen payload
  /api/users/*          Directory and provisioning
  /api/points/*         Awarding and audit trail
  /api/prizes/*         Catalog and prize requests
  /api/requests/*       Pending list, grant, cancel
  /api/rewards          How-to-earn catalog
  /api/tokens/*         Encrypted integration credentials
  /api/jira/*           Per-user Jira proxy
  /api/toggl/*          Per-user Toggl proxy

SEE ALSO:
  - handlers.go: Handler implementations
  - identity.go: Session middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Debug-Email"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Sign-in is the only route reachable without a session.
		r.Post("/auth/google/exchange", h.ExchangeGoogleCode)

		r.Group(func(r chi.Router) {
			r.Use(h.Identity)

			r.Get("/overview", h.Overview)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.FindUsers)
				r.Post("/", h.CreateUser)
			})
			r.Get("/teams", h.ListTeams)

			r.Route("/points", func(r chi.Router) {
				r.Post("/award", h.AwardPoints)
				r.Get("/records", h.PointRecords)
			})

			r.Route("/prizes", func(r chi.Router) {
				r.Get("/", h.ListPrizes)
				r.Post("/{id}/request", h.RequestPrize)
			})

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.MyRequests)
				r.Get("/pending", h.PendingRequests)
				r.Post("/{id}/grant", h.GrantRequest)
				r.Post("/{id}/cancel", h.CancelRequest)
			})

			r.Get("/rewards", h.ListRewardCategories)

			r.Put("/tokens/{kind}", h.StoreToken)

			r.Get("/jira/tasks", h.JiraTasks)

			r.Route("/toggl", func(r chi.Router) {
				r.Get("/current", h.TogglCurrent)
				r.Post("/start", h.TogglStart)
				r.Post("/stop", h.TogglStop)
			})
		})
	})

	return r
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
