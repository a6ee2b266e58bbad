/*
server.go - HTTP router setup

PURPOSE:
  Assembles the chi router: middleware stack, CORS, and the route tree
  for the leave engine API.

MIDDLEWARE STACK (inside-out):
  1. RequestID - Tags every request for log correlation
  2. RealIP    - Honors X-Forwarded-For behind a proxy
  3. Logger    - Access log per request
  4. Recoverer - Converts panics to 500s

SEE ALSO:
  - handlers.go: Individual endpoint handlers
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the HTTP route tree for the given handler.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/ledger", h.GetLedgerLog)
			r.Get("/{id}/requests", h.ListOpenRequests)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/{id}", h.GetRequest)
			r.Get("/{id}/timeline", h.GetTimeline)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/clarify", h.ClarifyRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
		})

		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", h.UploadAttachment)
			r.Get("/{ref}", h.DownloadAttachment)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/accrual/run", h.RunAccrual)
			r.Post("/requests/{id}/dates", h.OverwriteRequestDates)
		})
	})

	return r
}
