package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Projects and ingest keys.
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	NextIssueSeq(ctx context.Context, projectID uuid.UUID) (int64, error)
	GetIngestKeyByPrefix(ctx context.Context, prefix string) ([]*models.IngestKey, error)
	UpdateIngestKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateIngestKey(ctx context.Context, key *models.IngestKey) error

	// Raw traffic rows. Immutable once written, except fingerprint
	// reassignment during an issue merge.
	InsertEvent(ctx context.Context, event *models.RawEvent) error
	InsertLog(ctx context.Context, entry *models.LogEntry) error
	InsertSpan(ctx context.Context, span *models.Span) error
	CountEvents(ctx context.Context, f EventFilter) (int64, error)
	EventLevelCounts(ctx context.Context, projectID uuid.UUID, start, end time.Time) (map[string]int64, error)
	CountLogs(ctx context.Context, projectID uuid.UUID, start, end time.Time) (int64, error)
	ListSpans(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.Span, error)
	ReassignEventFingerprints(ctx context.Context, projectID uuid.UUID, fromHashes []string, toHash string) (int64, error)

	// Issues. ReplaceIssue is a full-row replace keyed by
	// (project_id, fingerprint_hash): the last writer wins.
	GetIssueByFingerprint(ctx context.Context, projectID uuid.UUID, hash string) (*models.Issue, error)
	ReplaceIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	ListIssues(ctx context.Context, f IssueFilter) ([]*models.Issue, int, error)
	UpdateIssueStatus(ctx context.Context, id uuid.UUID, status string) error
	DeleteIssue(ctx context.Context, id uuid.UUID) error

	// Alert rules and alerts.
	CreateAlertRule(ctx context.Context, rule *models.AlertRule) error
	GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, projectID uuid.UUID, enabledOnly bool) ([]*models.AlertRule, error)
	ProjectIDsWithTrigger(ctx context.Context, triggerType string) ([]uuid.UUID, error)
	UpdateRuleLastTriggered(ctx context.Context, ruleID uuid.UUID, at time.Time) error
	CreateAlert(ctx context.Context, alert *models.Alert) error
	UpdateAlertDeliveries(ctx context.Context, alertID uuid.UUID, deliveries []models.Delivery, deliveredAt *time.Time) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, int, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status string) error

	// Metric windows. Replace-on-write per (project_id, window_start).
	ReplaceMetricWindow(ctx context.Context, w *models.MetricWindow) error
	ListMetricWindows(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.MetricWindow, error)
}

// EventFilter selects raw events for counting and threshold evaluation.
type EventFilter struct {
	ProjectID   uuid.UUID
	Environment string
	Level       string
	Since       time.Time
	Until       time.Time
}

// IssueFilter selects issues for listing.
type IssueFilter struct {
	ProjectID   uuid.UUID
	Status      string
	Level       string
	Environment string
	Query       string
	Page        int
	Limit       int
}

// AlertFilter selects alerts for listing.
type AlertFilter struct {
	ProjectID uuid.UUID
	Status    string
	Page      int
	Limit     int
}
