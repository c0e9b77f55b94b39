package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// NullStore is the degraded-mode Store: writes vanish, reads come back empty.
// It lets the pipeline run with no backing database configured without any
// call site branching on "is the store real".
type NullStore struct{}

var _ Store = NullStore{}

func (NullStore) Ping(ctx context.Context) error { return nil }

func (NullStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return nil, ErrNotFound
}

func (NullStore) ListProjects(ctx context.Context) ([]*models.Project, error) { return nil, nil }

func (NullStore) CreateProject(ctx context.Context, p *models.Project) error { return nil }

func (NullStore) NextIssueSeq(ctx context.Context, projectID uuid.UUID) (int64, error) {
	return 0, nil
}

func (NullStore) GetIngestKeyByPrefix(ctx context.Context, prefix string) ([]*models.IngestKey, error) {
	return nil, nil
}

func (NullStore) UpdateIngestKeyLastUsed(ctx context.Context, id uuid.UUID) error { return nil }

func (NullStore) CreateIngestKey(ctx context.Context, key *models.IngestKey) error { return nil }

func (NullStore) InsertEvent(ctx context.Context, event *models.RawEvent) error { return nil }

func (NullStore) InsertLog(ctx context.Context, entry *models.LogEntry) error { return nil }

func (NullStore) InsertSpan(ctx context.Context, span *models.Span) error { return nil }

func (NullStore) CountEvents(ctx context.Context, f EventFilter) (int64, error) { return 0, nil }

func (NullStore) EventLevelCounts(ctx context.Context, projectID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (NullStore) CountLogs(ctx context.Context, projectID uuid.UUID, start, end time.Time) (int64, error) {
	return 0, nil
}

func (NullStore) ListSpans(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.Span, error) {
	return nil, nil
}

func (NullStore) ReassignEventFingerprints(ctx context.Context, projectID uuid.UUID, fromHashes []string, toHash string) (int64, error) {
	return 0, nil
}

func (NullStore) GetIssueByFingerprint(ctx context.Context, projectID uuid.UUID, hash string) (*models.Issue, error) {
	return nil, ErrNotFound
}

func (NullStore) ReplaceIssue(ctx context.Context, issue *models.Issue) error { return nil }

func (NullStore) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	return nil, ErrNotFound
}

func (NullStore) ListIssues(ctx context.Context, f IssueFilter) ([]*models.Issue, int, error) {
	return nil, 0, nil
}

func (NullStore) UpdateIssueStatus(ctx context.Context, id uuid.UUID, status string) error {
	return nil
}

func (NullStore) DeleteIssue(ctx context.Context, id uuid.UUID) error { return nil }

func (NullStore) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error { return nil }

func (NullStore) GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	return nil, ErrNotFound
}

func (NullStore) ListAlertRules(ctx context.Context, projectID uuid.UUID, enabledOnly bool) ([]*models.AlertRule, error) {
	return nil, nil
}

func (NullStore) ProjectIDsWithTrigger(ctx context.Context, triggerType string) ([]uuid.UUID, error) {
	return nil, nil
}

func (NullStore) UpdateRuleLastTriggered(ctx context.Context, ruleID uuid.UUID, at time.Time) error {
	return nil
}

func (NullStore) CreateAlert(ctx context.Context, alert *models.Alert) error { return nil }

func (NullStore) UpdateAlertDeliveries(ctx context.Context, alertID uuid.UUID, deliveries []models.Delivery, deliveredAt *time.Time) error {
	return nil
}

func (NullStore) ListAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, int, error) {
	return nil, 0, nil
}

func (NullStore) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status string) error {
	return nil
}

func (NullStore) ReplaceMetricWindow(ctx context.Context, w *models.MetricWindow) error { return nil }

func (NullStore) ListMetricWindows(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.MetricWindow, error) {
	return nil, nil
}
