// Package queue decouples the ingestion surface from pipeline execution.
// Jobs carry a priority and a caller-chosen id used for per-window
// deduplication; failed jobs are retried with exponential backoff and parked
// in a dead set after the attempt budget, never silently dropped.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vikramshenoy/faultline/pkg/models"
)

// Logical queue names, each consumed by its own worker pool.
const (
	QueueEvents  = "events"
	QueueLogs    = "logs"
	QueueTraces  = "traces"
	QueueRollups = "rollups"
)

// ErrDuplicateJob signals that a live job with the same id already exists;
// the enqueue was a no-op.
var ErrDuplicateJob = errors.New("duplicate job")

// Priorities, lower numbers first. Ties break by arrival order.
const (
	PriorityFatal   = 1
	PriorityWarning = 2
	PriorityInfo    = 3
	PriorityDebug   = 4
)

// PriorityForLevel maps event severity to queue priority.
func PriorityForLevel(level string) int {
	switch level {
	case models.LevelFatal, models.LevelError:
		return PriorityFatal
	case models.LevelWarning:
		return PriorityWarning
	case models.LevelInfo:
		return PriorityInfo
	default:
		return PriorityDebug
	}
}

// Job is one unit of deferred work.
type Job struct {
	// ID is the dedupe key: an event's own id, or project:minute for rollups.
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler processes one job. Returning an error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// Dispatcher is the queue surface the pipeline talks to. The Redis
// implementation processes asynchronously; the inline implementation runs
// handlers synchronously so an unconfigured broker degrades rather than
// breaks.
type Dispatcher interface {
	Register(kind string, h Handler)
	Enqueue(ctx context.Context, job Job) error
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error
}
