package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/issue"
	"github.com/vikramshenoy/faultline/internal/store"
)

const (
	defaultPageLimit = 25
	maxPageLimit     = 100
)

// NewListIssuesHandler serves GET /api/v1/issues.
func NewListIssuesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		q := r.URL.Query()
		page, limit := pagination(q.Get("page"), q.Get("limit"))
		filter := store.IssueFilter{
			ProjectID:   projectID,
			Status:      q.Get("status"),
			Level:       q.Get("level"),
			Environment: q.Get("environment"),
			Query:       q.Get("query"),
			Page:        page,
			Limit:       limit,
		}

		issues, total, err := s.ListIssues(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to list issues", nil)
			return
		}
		response.Collection(w, issues, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetIssueHandler serves GET /api/v1/issues/{issueID}.
func NewGetIssueHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "issueID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid issue id", nil)
			return
		}

		iss, err := s.GetIssue(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && iss.ProjectID != projectID) {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "Issue not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to load issue", nil)
			return
		}
		response.JSON(w, iss)
	}
}

// NewUpdateIssueHandler serves PATCH /api/v1/issues/{issueID}. Only the
// status field is mutable.
func NewUpdateIssueHandler(s store.Store, agg *issue.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "issueID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid issue id", nil)
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}

		if !ownsIssue(r, s, projectID, id, w) {
			return
		}

		if err := agg.UpdateStatus(r.Context(), id, req.Status); err != nil {
			if errors.Is(err, issue.ErrInvalidStatus) {
				response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
				return
			}
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Issue not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to update issue", nil)
			return
		}

		iss, err := s.GetIssue(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to load issue", nil)
			return
		}
		response.JSON(w, iss)
	}
}

// NewDeleteIssueHandler serves DELETE /api/v1/issues/{issueID}.
func NewDeleteIssueHandler(s store.Store, agg *issue.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "issueID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid issue id", nil)
			return
		}
		if !ownsIssue(r, s, projectID, id, w) {
			return
		}

		if err := agg.Delete(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Issue not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to delete issue", nil)
			return
		}
		response.NoContent(w)
	}
}

// NewMergeIssuesHandler serves POST /api/v1/issues/merge. The target absorbs
// the sources' counters and future events.
func NewMergeIssuesHandler(agg *issue.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		var req struct {
			TargetID  uuid.UUID   `json:"target_id"`
			SourceIDs []uuid.UUID `json:"source_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}
		if req.TargetID == uuid.Nil || len(req.SourceIDs) == 0 {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "target_id and source_ids are required", nil)
			return
		}

		merged, err := agg.Merge(r.Context(), projectID, req.TargetID, req.SourceIDs)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "Issue not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to merge issues", nil)
			return
		}
		response.JSON(w, merged)
	}
}

// ownsIssue verifies the issue belongs to the caller's project, writing the
// error response itself when it does not.
func ownsIssue(r *http.Request, s store.Store, projectID, issueID uuid.UUID, w http.ResponseWriter) bool {
	iss, err := s.GetIssue(r.Context(), issueID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && iss.ProjectID != projectID) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Issue not found", nil)
		return false
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to load issue", nil)
		return false
	}
	return true
}

func pagination(pageStr, limitStr string) (int, int) {
	page, _ := strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(limitStr)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
