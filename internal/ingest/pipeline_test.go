package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikramshenoy/faultline/internal/alert"
	"github.com/vikramshenoy/faultline/internal/alert/notify"
	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/issue"
	"github.com/vikramshenoy/faultline/internal/queue"
	"github.com/vikramshenoy/faultline/internal/rollup"
	"github.com/vikramshenoy/faultline/internal/session"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// pipelineStore captures writes from a full inline ingestion run.
type pipelineStore struct {
	store.NullStore

	events []*models.RawEvent
	logs   []*models.LogEntry
	spans  []*models.Span

	issues  map[string]*models.Issue
	seq     int64
	windows []*models.MetricWindow
}

func newPipelineStore() *pipelineStore {
	return &pipelineStore{issues: make(map[string]*models.Issue)}
}

func (s *pipelineStore) InsertEvent(ctx context.Context, event *models.RawEvent) error {
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *pipelineStore) InsertLog(ctx context.Context, entry *models.LogEntry) error {
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *pipelineStore) InsertSpan(ctx context.Context, span *models.Span) error {
	cp := *span
	s.spans = append(s.spans, &cp)
	return nil
}

func (s *pipelineStore) GetIssueByFingerprint(ctx context.Context, projectID uuid.UUID, hash string) (*models.Issue, error) {
	iss, ok := s.issues[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *iss
	return &cp, nil
}

func (s *pipelineStore) ReplaceIssue(ctx context.Context, iss *models.Issue) error {
	cp := *iss
	s.issues[iss.FingerprintHash] = &cp
	return nil
}

func (s *pipelineStore) NextIssueSeq(ctx context.Context, projectID uuid.UUID) (int64, error) {
	s.seq++
	return s.seq, nil
}

func (s *pipelineStore) EventLevelCounts(ctx context.Context, projectID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range s.events {
		counts[e.Level]++
	}
	return counts, nil
}

func (s *pipelineStore) CountLogs(ctx context.Context, projectID uuid.UUID, start, end time.Time) (int64, error) {
	return int64(len(s.logs)), nil
}

func (s *pipelineStore) ListSpans(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.Span, error) {
	return s.spans, nil
}

func (s *pipelineStore) ReplaceMetricWindow(ctx context.Context, w *models.MetricWindow) error {
	cp := *w
	s.windows = append(s.windows, &cp)
	return nil
}

// newInlinePipeline wires a pipeline end to end on the inline dispatcher, so
// Submit runs the whole chain synchronously.
func newInlinePipeline(st *pipelineStore) *Pipeline {
	issues := issue.NewAggregator(st, cache.NullLocker{})
	alerts := alert.NewEngine(st, cache.NullLocker{}, notify.Config{}, 30*time.Minute)
	sessions := session.NewTracker(session.NullStore{}, 5*time.Minute)
	dispatcher := queue.NewInlineDispatcher()

	p := NewPipeline(st, issues, alerts, sessions, dispatcher, 0)
	p.RegisterHandlers(rollup.NewAggregator(st, 0))
	return p
}

func TestSubmitRunsFullChainInline(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	projectID := uuid.New()

	event := &models.RawEvent{
		ExceptionType:    "ValueError",
		ExceptionMessage: "invalid literal",
		Level:            models.LevelError,
		Environment:      "production",
	}
	id, err := p.Submit(context.Background(), projectID, event)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.Len(t, st.events, 1, "raw row persisted")
	assert.Equal(t, projectID, st.events[0].ProjectID)
	assert.NotEmpty(t, st.events[0].FingerprintHash)
	assert.False(t, st.events[0].ReceivedAt.IsZero())

	require.Len(t, st.issues, 1, "issue aggregated")
	for _, iss := range st.issues {
		assert.Equal(t, int64(1), iss.EventCount)
		assert.Equal(t, models.IssueUnresolved, iss.Status)
	}

	require.Len(t, st.windows, 1, "minute rollup ran")
	assert.Equal(t, st.events[0].Timestamp.Truncate(time.Minute), st.windows[0].WindowStart)
}

func TestSubmitRepeatedEventsFoldIntoOneIssue(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	projectID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Submit(ctx, projectID, &models.RawEvent{
			ExceptionType:    "TimeoutError",
			ExceptionMessage: "deadline exceeded",
		})
		require.NoError(t, err)
	}

	assert.Len(t, st.events, 3)
	require.Len(t, st.issues, 1)
	for _, iss := range st.issues {
		assert.Equal(t, int64(3), iss.EventCount)
	}
}

func TestSubmitValidation(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	ctx := context.Background()

	tests := []struct {
		name      string
		projectID uuid.UUID
		event     *models.RawEvent
	}{
		{"missing project", uuid.Nil, &models.RawEvent{Message: "boom"}},
		{"empty event", uuid.New(), &models.RawEvent{}},
		{"unknown level", uuid.New(), &models.RawEvent{Message: "boom", Level: "shrug"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Submit(ctx, tt.projectID, tt.event)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, st.events, "rejected events never reach the store")
}

func TestSubmitDefaults(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)

	event := &models.RawEvent{Message: "something broke"}
	_, err := p.Submit(context.Background(), uuid.New(), event)
	require.NoError(t, err)

	require.Len(t, st.events, 1)
	assert.Equal(t, models.LevelError, st.events[0].Level, "events default to error")
	assert.NotEqual(t, uuid.Nil, st.events[0].ID)
	assert.False(t, st.events[0].Timestamp.IsZero())
}

func TestSubmitExplicitFingerprintOverride(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	projectID := uuid.New()
	ctx := context.Background()

	_, err := p.Submit(ctx, projectID, &models.RawEvent{
		Message:     "worker 12 crashed",
		Fingerprint: []string{"worker-crash"},
	})
	require.NoError(t, err)
	_, err = p.Submit(ctx, projectID, &models.RawEvent{
		Message:     "totally different message",
		Fingerprint: []string{"worker-crash"},
	})
	require.NoError(t, err)

	require.Len(t, st.issues, 1, "caller-chosen fingerprints group explicitly")
}

func TestSubmitLogInline(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	projectID := uuid.New()
	ctx := context.Background()

	id, err := p.SubmitLog(ctx, projectID, &models.LogEntry{Message: "request handled"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.Len(t, st.logs, 1)
	assert.Equal(t, models.LevelInfo, st.logs[0].Level, "logs default to info")
	assert.Empty(t, st.issues, "logs never create issues")
	assert.Len(t, st.windows, 1)

	_, err = p.SubmitLog(ctx, projectID, &models.LogEntry{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitSpanInline(t *testing.T) {
	st := newPipelineStore()
	p := newInlinePipeline(st)
	projectID := uuid.New()
	ctx := context.Background()

	id, err := p.SubmitSpan(ctx, projectID, &models.Span{
		Name: "GET /api/users", DurationMs: 42.5, StatusCode: 200,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.Len(t, st.spans, 1)

	_, err = p.SubmitSpan(ctx, projectID, &models.Span{DurationMs: 1})
	assert.ErrorIs(t, err, ErrValidation, "span name is required")

	_, err = p.SubmitSpan(ctx, projectID, &models.Span{Name: "x", DurationMs: -1})
	assert.ErrorIs(t, err, ErrValidation, "negative duration rejected")
}
