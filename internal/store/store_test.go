package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("faultline_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// createProject inserts a project row for foreign keys to hang off.
func createProject(t *testing.T, s store.Store) *models.Project {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Project{
		ID:            uuid.New(),
		Name:          "test project " + uuid.NewString()[:8],
		Slug:          "test-" + uuid.NewString()[:8],
		ShortIDPrefix: "TEST",
		Platform:      "go",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func testIssueRow(projectID uuid.UUID) *models.Issue {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Issue{
		ID:              uuid.New(),
		ProjectID:       projectID,
		ShortID:         "TEST-1",
		FingerprintHash: "fp-" + uuid.NewString(),
		Title:           "ValueError: invalid literal",
		Culprit:         "parse (app/parser.go:42)",
		Level:           models.LevelError,
		Status:          models.IssueUnresolved,
		FirstSeen:       now.Add(-time.Hour),
		LastSeen:        now,
		EventCount:      1,
		UserCount:       1,
		Environments:    []string{"production"},
		Releases:        []string{"1.4.2"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// --- Project Tests ---

func TestProject_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	p := createProject(t, s)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Slug, got.Slug)
	assert.Equal(t, "TEST", got.ShortIDPrefix)

	listed, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestProject_DuplicateSlug(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	p := createProject(t, s)
	dup := *p
	dup.ID = uuid.New()

	err := s.CreateProject(ctx, &dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestProject_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetProject(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNextIssueSeq_Monotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	for want := int64(1); want <= 3; want++ {
		seq, err := s.NextIssueSeq(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	other := createProject(t, s)
	seq, err := s.NextIssueSeq(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "sequences are per project")
}

// --- Ingest Key Tests ---

func TestIngestKey_CreateAndGetByPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.IngestKey{
		ID:        uuid.New(),
		ProjectID: p.ID,
		Name:      "default",
		KeyHash:   "$2a$10$fakehashfakehashfakehash",
		KeyPrefix: "fl_abc12",
		Scopes:    []string{"ingest", "read"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateIngestKey(ctx, key))

	keys, err := s.GetIngestKeyByPrefix(ctx, "fl_abc12")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, p.ID, keys[0].ProjectID)
	assert.Equal(t, []string{"ingest", "read"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)

	keys, err = s.GetIngestKeyByPrefix(ctx, "fl_nope1")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIngestKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	key := &models.IngestKey{
		ID: uuid.New(), ProjectID: p.ID, Name: "k", KeyHash: "h", KeyPrefix: "fl_used1",
		Scopes: []string{"ingest"}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateIngestKey(ctx, key))
	require.NoError(t, s.UpdateIngestKeyLastUsed(ctx, key.ID))

	keys, err := s.GetIngestKeyByPrefix(ctx, "fl_used1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

// --- Raw Row Tests ---

func TestEvents_InsertAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	base := time.Now().UTC().Truncate(time.Minute)
	insert := func(level, env string, at time.Time) {
		require.NoError(t, s.InsertEvent(ctx, &models.RawEvent{
			ID:               uuid.New(),
			ProjectID:        p.ID,
			Timestamp:        at,
			Level:            level,
			Platform:         "go",
			ExceptionType:    "ValueError",
			ExceptionMessage: "bad input",
			StackFrames:      []models.StackFrame{{File: "app/parser.go", Function: "parse", Line: 42, InApp: true}},
			FingerprintHash:  "fp-count",
			Environment:      env,
			ReceivedAt:       at,
		}))
	}
	insert(models.LevelError, "production", base.Add(5*time.Second))
	insert(models.LevelError, "production", base.Add(10*time.Second))
	insert(models.LevelFatal, "production", base.Add(20*time.Second))
	insert(models.LevelWarning, "staging", base.Add(30*time.Second))
	insert(models.LevelError, "production", base.Add(-time.Hour))

	n, err := s.CountEvents(ctx, store.EventFilter{
		ProjectID: p.ID, Since: base, Until: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = s.CountEvents(ctx, store.EventFilter{
		ProjectID: p.ID, Level: models.LevelError, Environment: "production",
		Since: base, Until: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err := s.EventLevelCounts(ctx, p.ID, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.LevelError])
	assert.Equal(t, int64(1), counts[models.LevelFatal])
	assert.Equal(t, int64(1), counts[models.LevelWarning])
}

func TestEvents_ReassignFingerprints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC()
	for _, hash := range []string{"fp-old-a", "fp-old-a", "fp-old-b", "fp-keep"} {
		require.NoError(t, s.InsertEvent(ctx, &models.RawEvent{
			ID: uuid.New(), ProjectID: p.ID, Timestamp: now, Level: models.LevelError,
			Message: "m", FingerprintHash: hash, ReceivedAt: now,
		}))
	}

	moved, err := s.ReassignEventFingerprints(ctx, p.ID, []string{"fp-old-a", "fp-old-b"}, "fp-new")
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)
}

func TestLogsAndSpans(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	base := time.Now().UTC().Truncate(time.Minute)
	require.NoError(t, s.InsertLog(ctx, &models.LogEntry{
		ID: uuid.New(), ProjectID: p.ID, Timestamp: base.Add(time.Second),
		Level: models.LevelInfo, Message: "served", Service: "checkout",
	}))
	require.NoError(t, s.InsertLog(ctx, &models.LogEntry{
		ID: uuid.New(), ProjectID: p.ID, Timestamp: base.Add(-time.Hour),
		Level: models.LevelInfo, Message: "old",
	}))

	n, err := s.CountLogs(ctx, p.ID, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.InsertSpan(ctx, &models.Span{
		ID: uuid.New(), ProjectID: p.ID, Timestamp: base.Add(2 * time.Second),
		Name: "GET /checkout", DurationMs: 123.4, StatusCode: 200,
	}))
	require.NoError(t, s.InsertSpan(ctx, &models.Span{
		ID: uuid.New(), ProjectID: p.ID, Timestamp: base.Add(3 * time.Second),
		Name: "GET /cart", DurationMs: 45.6, StatusCode: 500,
	}))

	spans, err := s.ListSpans(ctx, p.ID, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /checkout", spans[0].Name)
	assert.InDelta(t, 123.4, spans[0].DurationMs, 1e-9)
	assert.Equal(t, 500, spans[1].StatusCode)
}

// --- Issue Tests ---

func TestIssue_ReplaceRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	iss := testIssueRow(p.ID)
	iss.UserSketch = []byte{0x01, 0x02, 0x03}
	require.NoError(t, s.ReplaceIssue(ctx, iss))

	got, err := s.GetIssueByFingerprint(ctx, p.ID, iss.FingerprintHash)
	require.NoError(t, err)
	assert.Equal(t, iss.ID, got.ID)
	assert.Equal(t, "TEST-1", got.ShortID)
	assert.Equal(t, iss.Title, got.Title)
	assert.Equal(t, iss.Culprit, got.Culprit)
	assert.Equal(t, []string{"production"}, got.Environments)
	assert.Equal(t, []string{"1.4.2"}, got.Releases)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.UserSketch)
	assert.WithinDuration(t, iss.LastSeen, got.LastSeen, time.Millisecond)

	byID, err := s.GetIssue(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, got.FingerprintHash, byID.FingerprintHash)
}

func TestIssue_ReplaceUpsertsOnFingerprint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	iss := testIssueRow(p.ID)
	require.NoError(t, s.ReplaceIssue(ctx, iss))

	update := *iss
	update.EventCount = 9
	update.Level = models.LevelFatal
	update.LastSeen = iss.LastSeen.Add(time.Minute)
	require.NoError(t, s.ReplaceIssue(ctx, &update))

	_, total, err := s.ListIssues(ctx, store.IssueFilter{ProjectID: p.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "same fingerprint stays one row")

	got, err := s.GetIssueByFingerprint(ctx, p.ID, iss.FingerprintHash)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.EventCount)
	assert.Equal(t, models.LevelFatal, got.Level)
}

func TestIssue_LastSeenNeverRewindsOnReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	iss := testIssueRow(p.ID)
	require.NoError(t, s.ReplaceIssue(ctx, iss))

	stale := *iss
	stale.LastSeen = iss.LastSeen.Add(-30 * time.Minute)
	require.NoError(t, s.ReplaceIssue(ctx, &stale))

	got, err := s.GetIssueByFingerprint(ctx, p.ID, iss.FingerprintHash)
	require.NoError(t, err)
	assert.WithinDuration(t, iss.LastSeen, got.LastSeen, time.Millisecond,
		"stale writer cannot move last_seen backwards")
}

func TestIssue_ListFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	a := testIssueRow(p.ID)
	a.Title = "ValueError: invalid literal"
	require.NoError(t, s.ReplaceIssue(ctx, a))

	b := testIssueRow(p.ID)
	b.ShortID = "TEST-2"
	b.Title = "TimeoutError: deadline exceeded"
	b.Level = models.LevelWarning
	b.Status = models.IssueResolved
	require.NoError(t, s.ReplaceIssue(ctx, b))

	issues, total, err := s.ListIssues(ctx, store.IssueFilter{ProjectID: p.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, issues, 2)

	issues, total, err = s.ListIssues(ctx, store.IssueFilter{
		ProjectID: p.ID, Status: models.IssueResolved, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, issues, 1)
	assert.Equal(t, b.ID, issues[0].ID)

	issues, _, err = s.ListIssues(ctx, store.IssueFilter{
		ProjectID: p.ID, Level: models.LevelWarning, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, b.ID, issues[0].ID)

	issues, _, err = s.ListIssues(ctx, store.IssueFilter{
		ProjectID: p.ID, Query: "timeout", Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, b.ID, issues[0].ID, "query matches title case-insensitively")

	issues, total, err = s.ListIssues(ctx, store.IssueFilter{ProjectID: p.ID, Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, issues, 1)
}

func TestIssue_UpdateStatusAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	iss := testIssueRow(p.ID)
	require.NoError(t, s.ReplaceIssue(ctx, iss))

	require.NoError(t, s.UpdateIssueStatus(ctx, iss.ID, models.IssueIgnored))
	got, err := s.GetIssue(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueIgnored, got.Status)

	assert.ErrorIs(t, s.UpdateIssueStatus(ctx, uuid.New(), models.IssueResolved), store.ErrNotFound)

	require.NoError(t, s.DeleteIssue(ctx, iss.ID))
	_, err = s.GetIssue(ctx, iss.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteIssue(ctx, iss.ID), store.ErrNotFound)
}

// --- Alert Rule Tests ---

func TestAlertRule_CreateAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rule := &models.AlertRule{
		ID:                uuid.New(),
		ProjectID:         p.ID,
		Name:              "error burst",
		TriggerType:       models.TriggerThreshold,
		Threshold:         100,
		TimeWindowSeconds: 300,
		Environment:       "production",
		Level:             models.LevelError,
		Actions: []models.AlertAction{
			{Channel: "slack", Target: "https://hooks.slack.example/T1"},
			{Channel: "email", Target: "oncall@example.com"},
		},
		CooldownMinutes: 15,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))

	disabled := &models.AlertRule{
		ID: uuid.New(), ProjectID: p.ID, Name: "muted", TriggerType: models.TriggerNewIssue,
		Enabled: false, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAlertRule(ctx, disabled))

	rules, err := s.ListAlertRules(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	rules, err = s.ListAlertRules(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "error burst", rules[0].Name)
	require.Len(t, rules[0].Actions, 2, "actions round-trip through jsonb")
	assert.Equal(t, "slack", rules[0].Actions[0].Channel)

	got, err := s.GetAlertRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "error burst", got.Name)

	_, err = s.GetAlertRule(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAlertRule_DuplicateName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC()
	rule := &models.AlertRule{
		ID: uuid.New(), ProjectID: p.ID, Name: "dup", TriggerType: models.TriggerNewIssue,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))

	again := *rule
	again.ID = uuid.New()
	assert.ErrorIs(t, s.CreateAlertRule(ctx, &again), store.ErrDuplicateKey)
}

func TestAlertRule_ProjectIDsWithTrigger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p1 := createProject(t, s)
	p2 := createProject(t, s)

	now := time.Now().UTC()
	mk := func(projectID uuid.UUID, name, trigger string, enabled bool) {
		require.NoError(t, s.CreateAlertRule(ctx, &models.AlertRule{
			ID: uuid.New(), ProjectID: projectID, Name: name, TriggerType: trigger,
			Threshold: 1, TimeWindowSeconds: 60, Enabled: enabled, CreatedAt: now, UpdatedAt: now,
		}))
	}
	mk(p1.ID, "t1", models.TriggerThreshold, true)
	mk(p1.ID, "t2", models.TriggerThreshold, true)
	mk(p2.ID, "t3", models.TriggerThreshold, false)
	mk(p2.ID, "n1", models.TriggerNewIssue, true)

	ids, err := s.ProjectIDsWithTrigger(ctx, models.TriggerThreshold)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p1.ID}, ids, "distinct, enabled rules only")
}

func TestAlertRule_UpdateLastTriggered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rule := &models.AlertRule{
		ID: uuid.New(), ProjectID: p.ID, Name: "r", TriggerType: models.TriggerNewIssue,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))
	require.NoError(t, s.UpdateRuleLastTriggered(ctx, rule.ID, now))

	rules, err := s.ListAlertRules(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.NotNil(t, rules[0].LastTriggeredAt)
	assert.WithinDuration(t, now, *rules[0].LastTriggeredAt, time.Millisecond)
}

// --- Alert Tests ---

func TestAlert_CreateListAndDeliveries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rule := &models.AlertRule{
		ID: uuid.New(), ProjectID: p.ID, Name: "r", TriggerType: models.TriggerNewIssue,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))

	alert := &models.Alert{
		ID:        uuid.New(),
		RuleID:    rule.ID,
		ProjectID: p.ID,
		Title:     "New issue: ValueError",
		Message:   "first seen just now",
		Status:    models.AlertTriggered,
		CreatedAt: now,
	}
	require.NoError(t, s.CreateAlert(ctx, alert))

	deliveries := []models.Delivery{
		{Channel: "slack", Status: models.DeliverySent, AttemptedAt: now},
		{Channel: "email", Status: models.DeliveryFailed, Error: "smtp 550", AttemptedAt: now},
	}
	require.NoError(t, s.UpdateAlertDeliveries(ctx, alert.ID, deliveries, &now))

	alerts, total, err := s.ListAlerts(ctx, store.AlertFilter{ProjectID: p.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, "New issue: ValueError", alerts[0].Title)
	require.Len(t, alerts[0].Deliveries, 2)
	assert.Equal(t, "smtp 550", alerts[0].Deliveries[1].Error)
	require.NotNil(t, alerts[0].DeliveredAt)

	require.NoError(t, s.UpdateAlertStatus(ctx, alert.ID, models.AlertAcknowledged))
	alerts, _, err = s.ListAlerts(ctx, store.AlertFilter{
		ProjectID: p.ID, Status: models.AlertAcknowledged, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	assert.ErrorIs(t, s.UpdateAlertStatus(ctx, uuid.New(), models.AlertResolved), store.ErrNotFound)
}

// --- Metric Window Tests ---

func TestMetricWindow_ReplaceAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	p := createProject(t, s)

	minute := time.Now().UTC().Truncate(time.Minute)
	w := &models.MetricWindow{
		ProjectID:    p.ID,
		WindowStart:  minute,
		ErrorCount:   5,
		WarningCount: 2,
		LogCount:     100,
		RequestCount: 50,
		AvgDuration:  32.5,
		P50Duration:  20,
		P95Duration:  120,
		P99Duration:  300,
		Status2xx:    45,
		Status4xx:    3,
		Status5xx:    2,
		ErrorRate:    0.1,
	}
	require.NoError(t, s.ReplaceMetricWindow(ctx, w))

	// Re-running the window replaces, never accumulates.
	w.ErrorCount = 7
	require.NoError(t, s.ReplaceMetricWindow(ctx, w))

	windows, err := s.ListMetricWindows(ctx, p.ID, minute.Add(-time.Minute), minute.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, int64(7), windows[0].ErrorCount)
	assert.InDelta(t, 120, windows[0].P95Duration, 1e-9)
	assert.InDelta(t, 0.1, windows[0].ErrorRate, 1e-9)

	windows, err = s.ListMetricWindows(ctx, p.ID, minute.Add(time.Minute), minute.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, windows)
}
