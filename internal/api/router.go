// Package api wires handlers and middleware into the HTTP surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth       *mw.Auth
	RateLimit  *mw.RateLimit
	AdminToken string

	HealthHandler http.HandlerFunc

	IngestEventHandler http.HandlerFunc
	IngestLogHandler   http.HandlerFunc
	IngestSpanHandler  http.HandlerFunc

	ListIssuesHandler  http.HandlerFunc
	GetIssueHandler    http.HandlerFunc
	UpdateIssueHandler http.HandlerFunc
	DeleteIssueHandler http.HandlerFunc
	MergeIssuesHandler http.HandlerFunc

	ListAlertRulesHandler  http.HandlerFunc
	CreateAlertRuleHandler http.HandlerFunc
	ListAlertsHandler      http.HandlerFunc
	AckAlertHandler        http.HandlerFunc

	ProjectStatsHandler    http.HandlerFunc
	ProjectSessionsHandler http.HandlerFunc

	ListProjectsHandler    http.HandlerFunc
	CreateProjectHandler   http.HandlerFunc
	CreateIngestKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public surface
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	// Ingest-key protected surface
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/ingest/events", orNotImplemented(deps.IngestEventHandler))
		r.Post("/api/v1/ingest/logs", orNotImplemented(deps.IngestLogHandler))
		r.Post("/api/v1/ingest/traces", orNotImplemented(deps.IngestSpanHandler))

		r.Get("/api/v1/issues", orNotImplemented(deps.ListIssuesHandler))
		r.Post("/api/v1/issues/merge", orNotImplemented(deps.MergeIssuesHandler))
		r.Get("/api/v1/issues/{issueID}", orNotImplemented(deps.GetIssueHandler))
		r.Patch("/api/v1/issues/{issueID}", orNotImplemented(deps.UpdateIssueHandler))
		r.Delete("/api/v1/issues/{issueID}", orNotImplemented(deps.DeleteIssueHandler))

		r.Get("/api/v1/alert-rules", orNotImplemented(deps.ListAlertRulesHandler))
		r.Post("/api/v1/alert-rules", orNotImplemented(deps.CreateAlertRuleHandler))
		r.Get("/api/v1/alerts", orNotImplemented(deps.ListAlertsHandler))
		r.Post("/api/v1/alerts/{alertID}/ack", orNotImplemented(deps.AckAlertHandler))

		r.Get("/api/v1/projects/{projectID}/stats", orNotImplemented(deps.ProjectStatsHandler))
		r.Get("/api/v1/projects/{projectID}/sessions", orNotImplemented(deps.ProjectSessionsHandler))
	})

	// Operator provisioning surface
	r.Group(func(r chi.Router) {
		r.Use(mw.AdminAuth(deps.AdminToken))

		r.Get("/api/v1/admin/projects", orNotImplemented(deps.ListProjectsHandler))
		r.Post("/api/v1/admin/projects", orNotImplemented(deps.CreateProjectHandler))
		r.Post("/api/v1/admin/projects/{projectID}/keys", orNotImplemented(deps.CreateIngestKeyHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
