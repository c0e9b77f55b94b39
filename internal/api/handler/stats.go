package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/session"
	"github.com/vikramshenoy/faultline/internal/store"
)

const defaultStatsRange = time.Hour

// NewProjectStatsHandler serves GET /api/v1/projects/{projectID}/stats,
// returning the minute metric windows for the requested range.
func NewProjectStatsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := requestedProject(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		end := time.Now().UTC()
		if raw := q.Get("until"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, response.CodeValidation, "until must be a valid RFC3339 timestamp", nil)
				return
			}
			end = t
		}
		start := end.Add(-defaultStatsRange)
		if raw := q.Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, response.CodeValidation, "since must be a valid RFC3339 timestamp", nil)
				return
			}
			start = t
		}
		if !start.Before(end) {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "since must be before until", nil)
			return
		}

		windows, err := s.ListMetricWindows(r.Context(), projectID, start, end)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to load stats", nil)
			return
		}
		response.JSON(w, map[string]any{
			"since":   start,
			"until":   end,
			"windows": windows,
		})
	}
}

// NewProjectSessionsHandler serves GET /api/v1/projects/{projectID}/sessions,
// returning distinct active-user counts over the standard windows.
func NewProjectSessionsHandler(tracker *session.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := requestedProject(w, r)
		if !ok {
			return
		}

		counts, err := tracker.Counts(r.Context(), projectID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to count sessions", nil)
			return
		}
		activeNow, err := tracker.ActiveNow(r.Context(), projectID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to count sessions", nil)
			return
		}
		response.JSON(w, map[string]any{
			"active_now": activeNow,
			"windows":    counts,
		})
	}
}

// requestedProject parses the project path param and checks it against the
// authenticated key's project, writing the error response on mismatch.
func requestedProject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	authed, ok := mw.GetProjectID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
		return uuid.Nil, false
	}
	requested, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid project id", nil)
		return uuid.Nil, false
	}
	if requested != authed {
		response.Error(w, http.StatusForbidden, response.CodeForbidden, "Key does not belong to this project", nil)
		return uuid.Nil, false
	}
	return requested, true
}
