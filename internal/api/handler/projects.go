package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// NewListProjectsHandler serves GET /api/v1/admin/projects.
func NewListProjectsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := s.ListProjects(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to list projects", nil)
			return
		}
		response.JSON(w, projects)
	}
}

// NewCreateProjectHandler serves POST /api/v1/admin/projects. The response
// includes a first ingest key; the raw key is shown only here.
func NewCreateProjectHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name          string `json:"name"`
			Slug          string `json:"slug"`
			ShortIDPrefix string `json:"short_id_prefix"`
			Platform      string `json:"platform"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "name is required", nil)
			return
		}
		if req.Slug == "" {
			req.Slug = strings.ToLower(strings.ReplaceAll(req.Name, " ", "-"))
		}
		if req.ShortIDPrefix == "" {
			req.ShortIDPrefix = strings.ToUpper(req.Slug)
			if len(req.ShortIDPrefix) > 8 {
				req.ShortIDPrefix = req.ShortIDPrefix[:8]
			}
		}

		now := time.Now().UTC()
		project := &models.Project{
			ID:            uuid.New(),
			Name:          req.Name,
			Slug:          req.Slug,
			ShortIDPrefix: req.ShortIDPrefix,
			Platform:      req.Platform,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.CreateProject(r.Context(), project); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, response.CodeConflict, "A project with this slug already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to create project", nil)
			return
		}

		rawKey, key, err := mintIngestKey(project.ID, "default", []string{"ingest", "read"})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to mint ingest key", nil)
			return
		}
		if err := s.CreateIngestKey(r.Context(), key); err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to store ingest key", nil)
			return
		}

		response.Created(w, map[string]any{
			"project":    project,
			"ingest_key": key,
			"raw_key":    rawKey,
		})
	}
}

// NewCreateIngestKeyHandler serves POST /api/v1/admin/projects/{projectID}/keys.
func NewCreateIngestKeyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid project id", nil)
			return
		}
		if _, err := s.GetProject(r.Context(), projectID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to load project", nil)
			return
		}

		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{"ingest"}
		}

		rawKey, key, err := mintIngestKey(projectID, req.Name, req.Scopes)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to mint ingest key", nil)
			return
		}
		if err := s.CreateIngestKey(r.Context(), key); err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError, "Failed to store ingest key", nil)
			return
		}
		response.Created(w, map[string]any{
			"ingest_key": key,
			"raw_key":    rawKey,
		})
	}
}

// mintIngestKey generates a raw key plus its stored record. The raw value is
// "fl_" + 32 hex chars; the first 8 chars index the bcrypt-hashed lookup.
func mintIngestKey(projectID uuid.UUID, name string, scopes []string) (string, *models.IngestKey, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key material: %w", err)
	}
	rawKey := "fl_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return rawKey, &models.IngestKey{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
