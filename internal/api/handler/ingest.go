// Package handler contains the HTTP handler constructors. Each handler is a
// closure over its dependencies, returned as an http.HandlerFunc for the
// router to mount.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/ingest"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// Ingestor is the slice of the pipeline the intake handlers depend on.
type Ingestor interface {
	Submit(ctx context.Context, projectID uuid.UUID, event *models.RawEvent) (uuid.UUID, error)
	SubmitLog(ctx context.Context, projectID uuid.UUID, entry *models.LogEntry) (uuid.UUID, error)
	SubmitSpan(ctx context.Context, projectID uuid.UUID, span *models.Span) (uuid.UUID, error)
}

// NewIngestEventHandler accepts error events on POST /api/v1/ingest/events.
func NewIngestEventHandler(p Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		var event models.RawEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}

		id, err := p.Submit(r.Context(), projectID, &event)
		if errors.Is(err, ingest.ErrValidation) {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to accept event", nil)
			return
		}
		response.Accepted(w, map[string]any{"id": id})
	}
}

// NewIngestLogHandler accepts log rows on POST /api/v1/ingest/logs.
func NewIngestLogHandler(p Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		var entry models.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}

		id, err := p.SubmitLog(r.Context(), projectID, &entry)
		if errors.Is(err, ingest.ErrValidation) {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to accept log", nil)
			return
		}
		response.Accepted(w, map[string]any{"id": id})
	}
}

// NewIngestSpanHandler accepts trace spans on POST /api/v1/ingest/traces.
func NewIngestSpanHandler(p Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		var span models.Span
		if err := json.NewDecoder(r.Body).Decode(&span); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}

		id, err := p.SubmitSpan(r.Context(), projectID, &span)
		if errors.Is(err, ingest.ErrValidation) {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to accept span", nil)
			return
		}
		response.Accepted(w, map[string]any{"id": id})
	}
}
