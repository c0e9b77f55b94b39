package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricWindow is one minute of rolled-up traffic for a project. Keyed by
// (project_id, window_start); re-running the rollup for the same minute
// replaces the row wholesale, it never accumulates.
type MetricWindow struct {
	ProjectID    uuid.UUID `db:"project_id"    json:"project_id"`
	WindowStart  time.Time `db:"window_start"  json:"window_start"`
	ErrorCount   int64     `db:"error_count"   json:"error_count"`
	WarningCount int64     `db:"warning_count" json:"warning_count"`
	LogCount     int64     `db:"log_count"     json:"log_count"`
	RequestCount int64     `db:"request_count" json:"request_count"`
	AvgDuration  float64   `db:"avg_duration"  json:"avg_duration_ms"`
	P50Duration  float64   `db:"p50_duration"  json:"p50_duration_ms"`
	P95Duration  float64   `db:"p95_duration"  json:"p95_duration_ms"`
	P99Duration  float64   `db:"p99_duration"  json:"p99_duration_ms"`
	Status2xx    int64     `db:"status_2xx"    json:"status_2xx"`
	Status3xx    int64     `db:"status_3xx"    json:"status_3xx"`
	Status4xx    int64     `db:"status_4xx"    json:"status_4xx"`
	Status5xx    int64     `db:"status_5xx"    json:"status_5xx"`
	ErrorRate    float64   `db:"error_rate"    json:"error_rate"`
}
