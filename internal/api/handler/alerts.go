package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/alert"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// NewListAlertRulesHandler serves GET /api/v1/alert-rules.
func NewListAlertRulesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		rules, err := s.ListAlertRules(r.Context(), projectID, false)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to list alert rules", nil)
			return
		}
		response.JSON(w, rules)
	}
}

// NewCreateAlertRuleHandler serves POST /api/v1/alert-rules.
func NewCreateAlertRuleHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		var req struct {
			Name              string               `json:"name"`
			TriggerType       string               `json:"trigger_type"`
			Threshold         int                  `json:"threshold"`
			TimeWindowSeconds int                  `json:"time_window_seconds"`
			Environment       string               `json:"environment"`
			Level             string               `json:"level"`
			Actions           []models.AlertAction `json:"actions"`
			CooldownMinutes   int                  `json:"cooldown_minutes"`
			Enabled           *bool                `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}

		rule := &models.AlertRule{
			ID:                uuid.New(),
			ProjectID:         projectID,
			Name:              req.Name,
			TriggerType:       req.TriggerType,
			Threshold:         req.Threshold,
			TimeWindowSeconds: req.TimeWindowSeconds,
			Environment:       req.Environment,
			Level:             req.Level,
			Actions:           req.Actions,
			CooldownMinutes:   req.CooldownMinutes,
			Enabled:           req.Enabled == nil || *req.Enabled,
		}
		if err := alert.ValidateRule(rule); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
			return
		}

		if err := s.CreateAlertRule(r.Context(), rule); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, response.CodeConflict, "A rule with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to create alert rule", nil)
			return
		}
		response.Created(w, rule)
	}
}

// NewListAlertsHandler serves GET /api/v1/alerts.
func NewListAlertsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		q := r.URL.Query()
		page, limit := pagination(q.Get("page"), q.Get("limit"))
		alerts, total, err := s.ListAlerts(r.Context(), store.AlertFilter{
			ProjectID: projectID,
			Status:    q.Get("status"),
			Page:      page,
			Limit:     limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to list alerts", nil)
			return
		}
		response.Collection(w, alerts, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewAckAlertHandler serves POST /api/v1/alerts/{alertID}/ack.
func NewAckAlertHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mw.GetProjectID(r); !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing project", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "alertID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid alert id", nil)
			return
		}

		if err := s.UpdateAlertStatus(r.Context(), id, models.AlertAcknowledged); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Alert not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to acknowledge alert", nil)
			return
		}
		response.JSON(w, map[string]any{"id": id, "status": models.AlertAcknowledged})
	}
}
