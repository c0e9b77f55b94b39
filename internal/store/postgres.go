package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Projects ---

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, short_id_prefix, platform, created_at, updated_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.ShortIDPrefix, &p.Platform, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, slug, short_id_prefix, platform, created_at, updated_at
		 FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.ShortIDPrefix, &p.Platform, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, slug, short_id_prefix, platform, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Slug, p.ShortIDPrefix, p.Platform, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// NextIssueSeq atomically claims the next short-id number for a project.
func (s *PostgresStore) NextIssueSeq(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`UPDATE projects SET issue_seq = issue_seq + 1, updated_at = NOW()
		 WHERE id = $1 RETURNING issue_seq`, projectID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("next issue seq: %w", err)
	}
	return seq, nil
}

// --- Ingest keys ---

func (s *PostgresStore) GetIngestKeyByPrefix(ctx context.Context, prefix string) ([]*models.IngestKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM ingest_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get ingest key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.IngestKey
	for rows.Next() {
		var k models.IngestKey
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ingest key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateIngestKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingest_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update ingest key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateIngestKey(ctx context.Context, key *models.IngestKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_keys (id, project_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.ProjectID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create ingest key: %w", err)
	}
	return nil
}

// --- Raw events, logs, spans ---

func (s *PostgresStore) InsertEvent(ctx context.Context, event *models.RawEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, project_id, timestamp, level, platform, exception_type, exception_message,
		                     message, stack_frames, fingerprint_hash, environment, release, user_id, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.ProjectID, event.Timestamp, event.Level, event.Platform,
		event.ExceptionType, event.ExceptionMessage, event.Message, event.StackFrames,
		event.FingerprintHash, event.Environment, event.Release, event.UserID, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLog(ctx context.Context, entry *models.LogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO logs (id, project_id, timestamp, level, message, service)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.ProjectID, entry.Timestamp, entry.Level, entry.Message, entry.Service)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSpan(ctx context.Context, span *models.Span) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spans (id, project_id, timestamp, name, duration_ms, status_code)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		span.ID, span.ProjectID, span.Timestamp, span.Name, span.DurationMs, span.StatusCode)
	if err != nil {
		return fmt.Errorf("insert span: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM events WHERE project_id = $1 AND timestamp >= $2`
	args := []any{f.ProjectID, f.Since}
	idx := 3

	if !f.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp < $%d", idx)
		args = append(args, f.Until)
		idx++
	}
	if f.Environment != "" {
		query += fmt.Sprintf(" AND environment = $%d", idx)
		args = append(args, f.Environment)
		idx++
	}
	if f.Level != "" {
		query += fmt.Sprintf(" AND level = $%d", idx)
		args = append(args, f.Level)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) EventLevelCounts(ctx context.Context, projectID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT level, COUNT(*) FROM events
		 WHERE project_id = $1 AND timestamp >= $2 AND timestamp < $3
		 GROUP BY level`, projectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("event level counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountLogs(ctx context.Context, projectID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM logs WHERE project_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		projectID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListSpans(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.Span, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, timestamp, name, duration_ms, status_code FROM spans
		 WHERE project_id = $1 AND timestamp >= $2 AND timestamp < $3
		 ORDER BY timestamp`, projectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var spans []*models.Span
	for rows.Next() {
		var sp models.Span
		if err := rows.Scan(&sp.ID, &sp.ProjectID, &sp.Timestamp, &sp.Name, &sp.DurationMs, &sp.StatusCode); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		spans = append(spans, &sp)
	}
	return spans, rows.Err()
}

func (s *PostgresStore) ReassignEventFingerprints(ctx context.Context, projectID uuid.UUID, fromHashes []string, toHash string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET fingerprint_hash = $1
		 WHERE project_id = $2 AND fingerprint_hash = ANY($3)`,
		toHash, projectID, fromHashes)
	if err != nil {
		return 0, fmt.Errorf("reassign event fingerprints: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Issues ---

const issueColumns = `id, project_id, short_id, fingerprint_hash, title, culprit, level, status,
	first_seen, last_seen, event_count, user_count, user_sketch, environments, releases, created_at, updated_at`

func (s *PostgresStore) scanIssue(row pgx.Row) (*models.Issue, error) {
	var i models.Issue
	err := row.Scan(&i.ID, &i.ProjectID, &i.ShortID, &i.FingerprintHash, &i.Title, &i.Culprit,
		&i.Level, &i.Status, &i.FirstSeen, &i.LastSeen, &i.EventCount, &i.UserCount,
		&i.UserSketch, &i.Environments, &i.Releases, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *PostgresStore) GetIssueByFingerprint(ctx context.Context, projectID uuid.UUID, hash string) (*models.Issue, error) {
	issue, err := s.scanIssue(s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE project_id = $1 AND fingerprint_hash = $2`,
		projectID, hash))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get issue by fingerprint: %w", err)
	}
	return issue, err
}

// ReplaceIssue writes the whole aggregate row, superseding any earlier write
// for the same (project_id, fingerprint_hash). Concurrent writers collapse to
// the most recent row.
func (s *PostgresStore) ReplaceIssue(ctx context.Context, issue *models.Issue) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO issues (`+issueColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (project_id, fingerprint_hash) DO UPDATE SET
		   title = EXCLUDED.title,
		   culprit = EXCLUDED.culprit,
		   level = EXCLUDED.level,
		   status = EXCLUDED.status,
		   first_seen = EXCLUDED.first_seen,
		   last_seen = GREATEST(issues.last_seen, EXCLUDED.last_seen),
		   event_count = EXCLUDED.event_count,
		   user_count = EXCLUDED.user_count,
		   user_sketch = EXCLUDED.user_sketch,
		   environments = EXCLUDED.environments,
		   releases = EXCLUDED.releases,
		   updated_at = NOW()`,
		issue.ID, issue.ProjectID, issue.ShortID, issue.FingerprintHash, issue.Title, issue.Culprit,
		issue.Level, issue.Status, issue.FirstSeen, issue.LastSeen, issue.EventCount, issue.UserCount,
		issue.UserSketch, issue.Environments, issue.Releases, issue.CreatedAt, issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace issue: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	issue, err := s.scanIssue(s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, err
}

func (s *PostgresStore) ListIssues(ctx context.Context, f IssueFilter) ([]*models.Issue, int, error) {
	where := []string{"project_id = $1"}
	args := []any{f.ProjectID}
	idx := 2

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Level != "" {
		where = append(where, fmt.Sprintf("level = $%d", idx))
		args = append(args, f.Level)
		idx++
	}
	if f.Environment != "" {
		where = append(where, fmt.Sprintf("$%d = ANY(environments)", idx))
		args = append(args, f.Environment)
		idx++
	}
	if f.Query != "" {
		where = append(where, fmt.Sprintf("title ILIKE $%d", idx))
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE `+clause+
			fmt.Sprintf(` ORDER BY last_seen DESC LIMIT $%d OFFSET $%d`, idx, idx+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := s.scanIssue(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, total, rows.Err()
}

func (s *PostgresStore) UpdateIssueStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteIssue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Alert rules ---

const ruleColumns = `id, project_id, name, trigger_type, threshold, time_window_seconds,
	environment, level, actions, cooldown_minutes, last_triggered_at, enabled, created_at, updated_at`

func (s *PostgresStore) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rule.ID, rule.ProjectID, rule.Name, rule.TriggerType, rule.Threshold, rule.TimeWindowSeconds,
		rule.Environment, rule.Level, rule.Actions, rule.CooldownMinutes, rule.LastTriggeredAt,
		rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create alert rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	var r models.AlertRule
	err := s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id).
		Scan(&r.ID, &r.ProjectID, &r.Name, &r.TriggerType, &r.Threshold,
			&r.TimeWindowSeconds, &r.Environment, &r.Level, &r.Actions, &r.CooldownMinutes,
			&r.LastTriggeredAt, &r.Enabled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert rule: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListAlertRules(ctx context.Context, projectID uuid.UUID, enabledOnly bool) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE project_id = $1`
	if enabledOnly {
		query += ` AND enabled`
	}
	rows, err := s.pool.Query(ctx, query+` ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.TriggerType, &r.Threshold,
			&r.TimeWindowSeconds, &r.Environment, &r.Level, &r.Actions, &r.CooldownMinutes,
			&r.LastTriggeredAt, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) ProjectIDsWithTrigger(ctx context.Context, triggerType string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT project_id FROM alert_rules WHERE trigger_type = $1 AND enabled`,
		triggerType)
	if err != nil {
		return nil, fmt.Errorf("project ids with trigger: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) UpdateRuleLastTriggered(ctx context.Context, ruleID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_rules SET last_triggered_at = $1, updated_at = NOW() WHERE id = $2`, at, ruleID)
	if err != nil {
		return fmt.Errorf("update rule last triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Alerts ---

func (s *PostgresStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, rule_id, project_id, issue_id, title, message, status, deliveries, delivered_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		alert.ID, alert.RuleID, alert.ProjectID, alert.IssueID, alert.Title, alert.Message,
		alert.Status, alert.Deliveries, alert.DeliveredAt, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAlertDeliveries(ctx context.Context, alertID uuid.UUID, deliveries []models.Delivery, deliveredAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET deliveries = $1, delivered_at = $2 WHERE id = $3`,
		deliveries, deliveredAt, alertID)
	if err != nil {
		return fmt.Errorf("update alert deliveries: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, int, error) {
	where := []string{"project_id = $1"}
	args := []any{f.ProjectID}
	idx := 2

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_id, project_id, issue_id, title, message, status, deliveries, delivered_at, created_at
		 FROM alerts WHERE `+clause+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.RuleID, &a.ProjectID, &a.IssueID, &a.Title, &a.Message,
			&a.Status, &a.Deliveries, &a.DeliveredAt, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, total, rows.Err()
}

func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Metric windows ---

func (s *PostgresStore) ReplaceMetricWindow(ctx context.Context, w *models.MetricWindow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metric_windows (project_id, window_start, error_count, warning_count, log_count,
		   request_count, avg_duration, p50_duration, p95_duration, p99_duration,
		   status_2xx, status_3xx, status_4xx, status_5xx, error_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (project_id, window_start) DO UPDATE SET
		   error_count = EXCLUDED.error_count,
		   warning_count = EXCLUDED.warning_count,
		   log_count = EXCLUDED.log_count,
		   request_count = EXCLUDED.request_count,
		   avg_duration = EXCLUDED.avg_duration,
		   p50_duration = EXCLUDED.p50_duration,
		   p95_duration = EXCLUDED.p95_duration,
		   p99_duration = EXCLUDED.p99_duration,
		   status_2xx = EXCLUDED.status_2xx,
		   status_3xx = EXCLUDED.status_3xx,
		   status_4xx = EXCLUDED.status_4xx,
		   status_5xx = EXCLUDED.status_5xx,
		   error_rate = EXCLUDED.error_rate`,
		w.ProjectID, w.WindowStart, w.ErrorCount, w.WarningCount, w.LogCount,
		w.RequestCount, w.AvgDuration, w.P50Duration, w.P95Duration, w.P99Duration,
		w.Status2xx, w.Status3xx, w.Status4xx, w.Status5xx, w.ErrorRate)
	if err != nil {
		return fmt.Errorf("replace metric window: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMetricWindows(ctx context.Context, projectID uuid.UUID, start, end time.Time) ([]*models.MetricWindow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, window_start, error_count, warning_count, log_count, request_count,
		   avg_duration, p50_duration, p95_duration, p99_duration,
		   status_2xx, status_3xx, status_4xx, status_5xx, error_rate
		 FROM metric_windows
		 WHERE project_id = $1 AND window_start >= $2 AND window_start < $3
		 ORDER BY window_start`, projectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list metric windows: %w", err)
	}
	defer rows.Close()

	var windows []*models.MetricWindow
	for rows.Next() {
		var w models.MetricWindow
		if err := rows.Scan(&w.ProjectID, &w.WindowStart, &w.ErrorCount, &w.WarningCount, &w.LogCount,
			&w.RequestCount, &w.AvgDuration, &w.P50Duration, &w.P95Duration, &w.P99Duration,
			&w.Status2xx, &w.Status3xx, &w.Status4xx, &w.Status5xx, &w.ErrorRate); err != nil {
			return nil, fmt.Errorf("scan metric window: %w", err)
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
