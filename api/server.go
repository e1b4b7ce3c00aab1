/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     zap request logging
  4. Metrics:    Prometheus counters by route pattern (optional)
  5. CORS:       Cross-origin requests for frontend
  6. Auth:       Bearer JWT on everything under /api except login

ROUTE GROUPS:
  /healthz              Liveness + storage ping
  /metrics              Prometheus scrape (optional)
  /api/auth/*           Login, current user
  /api/areas, /users    Directory
  /api/projects/*       Projects and members
  /api/tasks/*          Tasks
  /api/time-entries/*   Time entries, bulk import, approval
  /api/time-periods/*   Periods and summaries
  /api/config/*         SystemConfig tunables
  /api/scenarios/*      Demo scenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth and logging middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/timesheet-engine/metrics"
)

// RouterOptions carries the optional pieces of the router.
type RouterOptions struct {
	CORSOrigins []string
	// Metrics enables the Prometheus middleware and /metrics when set.
	Metrics *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.Logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/auth/me", h.Me)

			// Directory routes
			r.Route("/areas", func(r chi.Router) {
				r.Get("/", h.ListAreas)
				r.Post("/", h.CreateArea)
			})
			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Get("/{id}", h.GetUser)
				r.Put("/{id}", h.UpdateUser)
			})

			// Project routes
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.ListProjects)
				r.Post("/", h.CreateProject)
				r.Get("/{id}", h.GetProject)
				r.Put("/{id}", h.UpdateProject)
				r.Delete("/{id}", h.DeleteProject)
				r.Put("/{id}/status", h.ChangeProjectStatus)
				r.Get("/{id}/members", h.ListMembers)
				r.Post("/{id}/members", h.AddMember)
				r.Delete("/{id}/members/{userID}", h.RemoveMember)
			})

			// Task routes
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.ListTasks)
				r.Post("/", h.CreateTask)
				r.Get("/{id}", h.GetTask)
				r.Put("/{id}", h.UpdateTask)
				r.Delete("/{id}", h.DeleteTask)
				r.Put("/{id}/status", h.ChangeTaskStatus)
				r.Put("/{id}/assign", h.AssignTask)
			})

			// Time entry routes
			r.Route("/time-entries", func(r chi.Router) {
				r.Get("/", h.ListTimeEntries)
				r.Post("/", h.CreateTimeEntry)
				r.Post("/bulk", h.BulkCreateTimeEntries)
				r.Get("/validate-date", h.ValidateDate)
				r.Get("/daily-hours", h.DailyHours)
				r.Get("/{id}", h.GetTimeEntry)
				r.Put("/{id}", h.UpdateTimeEntry)
				r.Delete("/{id}", h.DeleteTimeEntry)
				r.Post("/{id}/approve", h.ApproveTimeEntry)
				r.Post("/{id}/unapprove", h.UnapproveTimeEntry)
			})

			// Time period routes
			r.Route("/time-periods", func(r chi.Router) {
				r.Get("/", h.ListTimePeriods)
				r.Post("/ensure", h.EnsureTimePeriods)
				r.Get("/{id}/summary", h.PeriodSummary)
			})

			// Config routes
			r.Route("/config", func(r chi.Router) {
				r.Get("/", h.ListConfig)
				r.Put("/{key}", h.SetConfig)
			})

			// Scenario routes
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		})
	})

	return r
}
