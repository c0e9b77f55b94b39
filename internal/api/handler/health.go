package handler

import (
	"net/http"

	"github.com/vikramshenoy/faultline/internal/api/response"
	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/store"
)

// NewHealthHandler serves GET /api/v1/health. Redis being down reports
// degraded, not unhealthy; the service keeps ingesting without it.
func NewHealthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = err.Error()
		}
		if err := c.Ping(r.Context()); err != nil {
			if status == "ok" {
				status = "degraded"
			}
			checks["redis"] = err.Error()
		}

		code := http.StatusOK
		if status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		response.Status(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
