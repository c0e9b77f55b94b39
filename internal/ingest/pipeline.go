// Package ingest orchestrates event intake: validation, persistence,
// fingerprinting, issue aggregation, and alert signalling, one event at a
// time. After validation passes, downstream failures degrade silently; an
// ingestion call never fails because a backing store is down.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/alert"
	"github.com/vikramshenoy/faultline/internal/fingerprint"
	"github.com/vikramshenoy/faultline/internal/issue"
	"github.com/vikramshenoy/faultline/internal/queue"
	"github.com/vikramshenoy/faultline/internal/rollup"
	"github.com/vikramshenoy/faultline/internal/session"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/internal/telemetry"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// ErrValidation marks rejects that are the caller's responsibility.
var ErrValidation = errors.New("validation failed")

// Job kinds handled by this package's workers.
const (
	KindEvent = "event.process"
	KindLog   = "log.process"
	KindTrace = "trace.process"
)

var validLevels = map[string]bool{
	models.LevelFatal:   true,
	models.LevelError:   true,
	models.LevelWarning: true,
	models.LevelInfo:    true,
	models.LevelDebug:   true,
}

// Pipeline runs the ingestion steps. Submit* methods enqueue through the
// dispatcher; Ingest* methods execute. With the inline dispatcher the two
// collapse into synchronous processing.
type Pipeline struct {
	store       store.Store
	issues      *issue.Aggregator
	alerts      *alert.Engine
	sessions    *session.Tracker
	dispatcher  queue.Dispatcher
	rollupDelay time.Duration
}

func NewPipeline(s store.Store, issues *issue.Aggregator, alerts *alert.Engine, sessions *session.Tracker, d queue.Dispatcher, rollupDelay time.Duration) *Pipeline {
	return &Pipeline{
		store:       s,
		issues:      issues,
		alerts:      alerts,
		sessions:    sessions,
		dispatcher:  d,
		rollupDelay: rollupDelay,
	}
}

// RegisterHandlers wires this pipeline's job kinds plus the rollup kind into
// the dispatcher's worker pools.
func (p *Pipeline) RegisterHandlers(ra *rollup.Aggregator) {
	p.dispatcher.Register(KindEvent, func(ctx context.Context, job queue.Job) error {
		var event models.RawEvent
		if err := json.Unmarshal(job.Payload, &event); err != nil {
			return fmt.Errorf("decode event job: %w", err)
		}
		_, err := p.Ingest(ctx, event.ProjectID, &event)
		return err
	})
	p.dispatcher.Register(KindLog, func(ctx context.Context, job queue.Job) error {
		var entry models.LogEntry
		if err := json.Unmarshal(job.Payload, &entry); err != nil {
			return fmt.Errorf("decode log job: %w", err)
		}
		_, err := p.IngestLog(ctx, entry.ProjectID, &entry)
		return err
	})
	p.dispatcher.Register(KindTrace, func(ctx context.Context, job queue.Job) error {
		var span models.Span
		if err := json.Unmarshal(job.Payload, &span); err != nil {
			return fmt.Errorf("decode trace job: %w", err)
		}
		_, err := p.IngestSpan(ctx, span.ProjectID, &span)
		return err
	})
	p.dispatcher.Register(rollup.KindWindow, func(ctx context.Context, job queue.Job) error {
		var wj rollup.WindowJob
		if err := json.Unmarshal(job.Payload, &wj); err != nil {
			return fmt.Errorf("decode rollup job: %w", err)
		}
		return ra.Run(ctx, wj.ProjectID, wj.Minute)
	})
}

// Submit validates an event and places it on the events queue. The event's
// own id doubles as the job id, so producer retries dedupe to one processing.
func (p *Pipeline) Submit(ctx context.Context, projectID uuid.UUID, event *models.RawEvent) (uuid.UUID, error) {
	if err := p.prepare(projectID, event); err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal event: %w", err)
	}
	err = p.dispatcher.Enqueue(ctx, queue.Job{
		ID:       event.ID.String(),
		Queue:    queue.QueueEvents,
		Kind:     KindEvent,
		Payload:  payload,
		Priority: queue.PriorityForLevel(event.Level),
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		slog.Debug("duplicate event submission", "event_id", event.ID)
		return event.ID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return event.ID, nil
}

// Ingest runs the pipeline for one event: persist raw row, fingerprint,
// aggregate into an issue, raise alert signals, and schedule the minute
// rollup for the event's window.
func (p *Pipeline) Ingest(ctx context.Context, projectID uuid.UUID, event *models.RawEvent) (uuid.UUID, error) {
	if err := p.prepare(projectID, event); err != nil {
		return uuid.Nil, err
	}

	fp := fingerprint.Compute(event)
	event.FingerprintHash = fp.Hash

	if err := p.store.InsertEvent(ctx, event); err != nil {
		// Availability over consistency: the event is acknowledged even when
		// the raw store is down.
		slog.Error("raw event persist failed", "event_id", event.ID, "error", err)
	}
	telemetry.EventsIngested.WithLabelValues("event").Inc()

	if err := p.sessions.Record(ctx, projectID, event.UserID); err != nil {
		slog.Debug("session sighting failed", "event_id", event.ID, "error", err)
	}

	iss, signal, err := p.issues.Upsert(ctx, projectID, fp, issue.EventMeta{
		Timestamp:   event.Timestamp,
		Level:       event.Level,
		Environment: event.Environment,
		Release:     event.Release,
		UserID:      event.UserID,
	})
	if err != nil {
		slog.Error("issue aggregation failed", "event_id", event.ID, "error", err)
		p.scheduleRollup(ctx, projectID, event.Timestamp)
		return event.ID, nil
	}
	telemetry.IssueSignals.WithLabelValues(signal.String()).Inc()

	switch signal {
	case issue.SignalCreated:
		p.alerts.CheckNewIssue(ctx, iss, event)
	case issue.SignalRegressed:
		p.alerts.CheckRegression(ctx, iss, event)
	}

	p.scheduleRollup(ctx, projectID, event.Timestamp)
	return event.ID, nil
}

// SubmitLog enqueues a log row.
func (p *Pipeline) SubmitLog(ctx context.Context, projectID uuid.UUID, entry *models.LogEntry) (uuid.UUID, error) {
	if err := p.prepareLog(projectID, entry); err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal log: %w", err)
	}
	err = p.dispatcher.Enqueue(ctx, queue.Job{
		ID:       entry.ID.String(),
		Queue:    queue.QueueLogs,
		Kind:     KindLog,
		Payload:  payload,
		Priority: queue.PriorityForLevel(entry.Level),
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return entry.ID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

// IngestLog persists a log row and schedules its window's rollup.
func (p *Pipeline) IngestLog(ctx context.Context, projectID uuid.UUID, entry *models.LogEntry) (uuid.UUID, error) {
	if err := p.prepareLog(projectID, entry); err != nil {
		return uuid.Nil, err
	}

	if err := p.store.InsertLog(ctx, entry); err != nil {
		slog.Error("log persist failed", "log_id", entry.ID, "error", err)
	}
	telemetry.EventsIngested.WithLabelValues("log").Inc()

	p.scheduleRollup(ctx, projectID, entry.Timestamp)
	return entry.ID, nil
}

// SubmitSpan enqueues a trace span.
func (p *Pipeline) SubmitSpan(ctx context.Context, projectID uuid.UUID, span *models.Span) (uuid.UUID, error) {
	if err := p.prepareSpan(projectID, span); err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(span)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal span: %w", err)
	}
	err = p.dispatcher.Enqueue(ctx, queue.Job{
		ID:       span.ID.String(),
		Queue:    queue.QueueTraces,
		Kind:     KindTrace,
		Payload:  payload,
		Priority: queue.PriorityInfo,
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return span.ID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return span.ID, nil
}

// IngestSpan persists a span row and schedules its window's rollup.
func (p *Pipeline) IngestSpan(ctx context.Context, projectID uuid.UUID, span *models.Span) (uuid.UUID, error) {
	if err := p.prepareSpan(projectID, span); err != nil {
		return uuid.Nil, err
	}

	if err := p.store.InsertSpan(ctx, span); err != nil {
		slog.Error("span persist failed", "span_id", span.ID, "error", err)
	}
	telemetry.EventsIngested.WithLabelValues("trace").Inc()

	p.scheduleRollup(ctx, projectID, span.Timestamp)
	return span.ID, nil
}

// scheduleRollup queues the delayed minute rollup for a row's window.
// Duplicate triggers for one window collapse on the job id.
func (p *Pipeline) scheduleRollup(ctx context.Context, projectID uuid.UUID, ts time.Time) {
	minute := ts.Truncate(time.Minute)
	wj := rollup.WindowJob{ProjectID: projectID, Minute: minute}
	payload, err := json.Marshal(wj)
	if err != nil {
		slog.Error("rollup payload marshal failed", "project_id", projectID, "error", err)
		return
	}

	err = p.dispatcher.EnqueueDelayed(ctx, queue.Job{
		ID:       rollup.JobID(projectID, minute),
		Queue:    queue.QueueRollups,
		Kind:     rollup.KindWindow,
		Payload:  payload,
		Priority: queue.PriorityInfo,
	}, p.rollupDelay)
	if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		slog.Error("rollup scheduling failed", "project_id", projectID, "error", err)
	}
}

func (p *Pipeline) prepare(projectID uuid.UUID, event *models.RawEvent) error {
	if projectID == uuid.Nil {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if event.ExceptionType == "" && event.ExceptionMessage == "" && event.Message == "" && len(event.Fingerprint) == 0 {
		return fmt.Errorf("%w: event carries no exception, message, or fingerprint", ErrValidation)
	}
	if event.Level == "" {
		event.Level = models.LevelError
	}
	if !validLevels[event.Level] {
		return fmt.Errorf("%w: unknown level %q", ErrValidation, event.Level)
	}

	event.ProjectID = projectID
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.ReceivedAt = time.Now().UTC()
	return nil
}

func (p *Pipeline) prepareLog(projectID uuid.UUID, entry *models.LogEntry) error {
	if projectID == uuid.Nil {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if entry.Message == "" {
		return fmt.Errorf("%w: log message is required", ErrValidation)
	}
	if entry.Level == "" {
		entry.Level = models.LevelInfo
	}
	if !validLevels[entry.Level] {
		return fmt.Errorf("%w: unknown level %q", ErrValidation, entry.Level)
	}

	entry.ProjectID = projectID
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return nil
}

func (p *Pipeline) prepareSpan(projectID uuid.UUID, span *models.Span) error {
	if projectID == uuid.Nil {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if span.Name == "" {
		return fmt.Errorf("%w: span name is required", ErrValidation)
	}
	if span.DurationMs < 0 {
		return fmt.Errorf("%w: negative span duration", ErrValidation)
	}

	span.ProjectID = projectID
	if span.ID == uuid.Nil {
		span.ID = uuid.New()
	}
	if span.Timestamp.IsZero() {
		span.Timestamp = time.Now().UTC()
	}
	return nil
}
