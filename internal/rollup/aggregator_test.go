package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

type rollupStore struct {
	store.NullStore

	levels   map[string]int64
	logCount int64
	spans    []*models.Span

	replaced []*models.MetricWindow
}

func (s *rollupStore) EventLevelCounts(ctx context.Context, projectID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	return s.levels, nil
}

func (s *rollupStore) CountLogs(ctx context.Context, projectID uuid.UUID, start, end time.Time) (int64, error) {
	return s.logCount, nil
}

func (s *rollupStore) ListSpans(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.Span, error) {
	return s.spans, nil
}

func (s *rollupStore) ReplaceMetricWindow(ctx context.Context, w *models.MetricWindow) error {
	cp := *w
	s.replaced = append(s.replaced, &cp)
	return nil
}

func span(durationMs float64, status int) *models.Span {
	return &models.Span{ID: uuid.New(), DurationMs: durationMs, StatusCode: status}
}

func TestAggregatorRun(t *testing.T) {
	st := &rollupStore{
		levels:   map[string]int64{models.LevelFatal: 2, models.LevelError: 3, models.LevelWarning: 4, models.LevelInfo: 9},
		logCount: 17,
		spans: []*models.Span{
			span(10, 200), span(20, 200), span(30, 301),
			span(40, 404), span(50, 500),
		},
	}
	agg := NewAggregator(st, 0)

	projectID := uuid.New()
	minute := time.Date(2026, 3, 1, 12, 30, 42, 0, time.UTC)
	require.NoError(t, agg.Run(context.Background(), projectID, minute))
	require.Len(t, st.replaced, 1)

	w := st.replaced[0]
	assert.Equal(t, projectID, w.ProjectID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), w.WindowStart, "window start truncates to the minute")

	assert.Equal(t, int64(5), w.ErrorCount, "fatal plus error")
	assert.Equal(t, int64(4), w.WarningCount)
	assert.Equal(t, int64(17), w.LogCount)
	assert.Equal(t, int64(5), w.RequestCount)

	assert.Equal(t, int64(2), w.Status2xx)
	assert.Equal(t, int64(1), w.Status3xx)
	assert.Equal(t, int64(1), w.Status4xx)
	assert.Equal(t, int64(1), w.Status5xx)
	assert.InDelta(t, 0.4, w.ErrorRate, 1e-9, "4xx and 5xx over request count")

	assert.InDelta(t, 30, w.AvgDuration, 1e-9)
	assert.InDelta(t, 30, w.P50Duration, 1e-9)
	assert.InDelta(t, 50, w.P95Duration, 1e-9)
	assert.InDelta(t, 50, w.P99Duration, 1e-9)
}

func TestAggregatorRunEmptyWindow(t *testing.T) {
	st := &rollupStore{levels: map[string]int64{}}
	agg := NewAggregator(st, 0)

	require.NoError(t, agg.Run(context.Background(), uuid.New(), time.Now().UTC()))
	require.Len(t, st.replaced, 1)

	w := st.replaced[0]
	assert.Zero(t, w.RequestCount)
	assert.Zero(t, w.ErrorRate)
	assert.Zero(t, w.AvgDuration)
	assert.Zero(t, w.P99Duration)
}

func TestAggregatorRunIdempotent(t *testing.T) {
	st := &rollupStore{
		levels:   map[string]int64{models.LevelError: 1},
		logCount: 3,
		spans:    []*models.Span{span(12.5, 200), span(90, 503)},
	}
	agg := NewAggregator(st, 0)

	projectID := uuid.New()
	minute := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, agg.Run(context.Background(), projectID, minute))
	require.NoError(t, agg.Run(context.Background(), projectID, minute))
	require.Len(t, st.replaced, 2)

	assert.Equal(t, st.replaced[0], st.replaced[1], "same raw rows produce the same window")
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5},
		{90, 9},
		{95, 10},
		{99, 10},
		{100, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentile(sorted, tt.p), "p%.0f", tt.p)
	}

	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 1), "rank floors at one")
}

func TestJobIDCollapsesToMinute(t *testing.T) {
	projectID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, JobID(projectID, base), JobID(projectID, base.Add(59*time.Second)))
	assert.NotEqual(t, JobID(projectID, base), JobID(projectID, base.Add(time.Minute)))
	assert.NotEqual(t, JobID(projectID, base), JobID(uuid.New(), base))
}
