// Package rollup computes fixed one-minute traffic summaries from the raw
// event/log/span stores. A window's row is replaced wholesale on every run,
// so re-running the same window under at-least-once job delivery never
// double-counts.
package rollup

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/internal/telemetry"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// KindWindow is the job kind for minute rollups.
const KindWindow = "rollup.window"

// WindowJob is the dispatch payload for one minute rollup.
type WindowJob struct {
	ProjectID uuid.UUID `json:"project_id"`
	Minute    time.Time `json:"minute"`
}

// JobID keys rollup jobs by project and minute bucket so a burst of triggers
// for the same window collapses into one scheduled job.
func JobID(projectID uuid.UUID, minute time.Time) string {
	return fmt.Sprintf("rollup:%s:%d", projectID, minute.Truncate(time.Minute).Unix())
}

// Aggregator rolls raw rows into metric windows.
type Aggregator struct {
	store        store.Store
	queryTimeout time.Duration
}

func NewAggregator(s store.Store, queryTimeout time.Duration) *Aggregator {
	return &Aggregator{store: s, queryTimeout: queryTimeout}
}

// Run computes and stores the window for [minute, minute+1m). Idempotent:
// the same raw rows always produce the same stored row.
func (a *Aggregator) Run(ctx context.Context, projectID uuid.UUID, minute time.Time) error {
	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}

	start := minute.Truncate(time.Minute).UTC()
	end := start.Add(time.Minute)

	levelCounts, err := a.store.EventLevelCounts(ctx, projectID, start, end)
	if err != nil {
		telemetry.RollupsRun.WithLabelValues("error").Inc()
		return fmt.Errorf("event level counts: %w", err)
	}

	logCount, err := a.store.CountLogs(ctx, projectID, start, end)
	if err != nil {
		telemetry.RollupsRun.WithLabelValues("error").Inc()
		return fmt.Errorf("count logs: %w", err)
	}

	spans, err := a.store.ListSpans(ctx, projectID, start, end)
	if err != nil {
		telemetry.RollupsRun.WithLabelValues("error").Inc()
		return fmt.Errorf("list spans: %w", err)
	}

	window := &models.MetricWindow{
		ProjectID:    projectID,
		WindowStart:  start,
		ErrorCount:   levelCounts[models.LevelFatal] + levelCounts[models.LevelError],
		WarningCount: levelCounts[models.LevelWarning],
		LogCount:     logCount,
		RequestCount: int64(len(spans)),
	}

	durations := make([]float64, 0, len(spans))
	for _, sp := range spans {
		durations = append(durations, sp.DurationMs)
		switch sp.StatusCode / 100 {
		case 2:
			window.Status2xx++
		case 3:
			window.Status3xx++
		case 4:
			window.Status4xx++
		case 5:
			window.Status5xx++
		}
	}

	if len(durations) > 0 {
		sort.Float64s(durations)
		var sum float64
		for _, d := range durations {
			sum += d
		}
		window.AvgDuration = sum / float64(len(durations))
		window.P50Duration = percentile(durations, 50)
		window.P95Duration = percentile(durations, 95)
		window.P99Duration = percentile(durations, 99)
	}

	if window.RequestCount > 0 {
		window.ErrorRate = float64(window.Status4xx+window.Status5xx) / float64(window.RequestCount)
	}

	if err := a.store.ReplaceMetricWindow(ctx, window); err != nil {
		telemetry.RollupsRun.WithLabelValues("error").Inc()
		return fmt.Errorf("replace metric window: %w", err)
	}
	telemetry.RollupsRun.WithLabelValues("ok").Inc()
	return nil
}

// percentile is nearest-rank over an ascending sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
