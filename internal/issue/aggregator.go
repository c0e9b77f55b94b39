// Package issue owns the mapping from fingerprint hash to durable issue and
// applies create/update/regression transitions as events arrive.
package issue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/fingerprint"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// ErrInvalidStatus marks status values outside the known lifecycle set.
var ErrInvalidStatus = errors.New("invalid issue status")

// Signal tells the caller what the upsert did to the issue's lifecycle.
type Signal int

const (
	SignalNone Signal = iota
	SignalCreated
	SignalRegressed
)

func (s Signal) String() string {
	switch s {
	case SignalCreated:
		return "created"
	case SignalRegressed:
		return "regressed"
	default:
		return "none"
	}
}

// upsertLockTTL bounds how long a crashed worker can hold an issue lock.
const upsertLockTTL = 10 * time.Second

// EventMeta is the slice of a raw event the aggregator folds into an issue.
type EventMeta struct {
	Timestamp   time.Time
	Level       string
	Environment string
	Release     string
	UserID      string
}

// Aggregator applies issue transitions. The read-modify-write is guarded by a
// best-effort advisory lock per (project, fingerprint); without the lock,
// concurrent counter bumps may overwrite each other, which is acceptable for
// approximate counts.
type Aggregator struct {
	store  store.Store
	locker cache.Locker
}

func NewAggregator(s store.Store, locker cache.Locker) *Aggregator {
	return &Aggregator{store: s, locker: locker}
}

// Upsert folds one event into the issue for its fingerprint hash.
// Creating an issue emits SignalCreated; reopening a resolved one emits
// SignalRegressed; everything else is SignalNone.
func (a *Aggregator) Upsert(ctx context.Context, projectID uuid.UUID, fp fingerprint.Result, meta EventMeta) (*models.Issue, Signal, error) {
	var (
		out    *models.Issue
		signal Signal
	)

	lockKey := cache.IssueLockKey(projectID, fp.Hash)
	err := a.locker.WithLock(ctx, lockKey, upsertLockTTL, func(ctx context.Context) error {
		existing, err := a.store.GetIssueByFingerprint(ctx, projectID, fp.Hash)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup issue: %w", err)
		}

		if existing == nil {
			out, err = a.create(ctx, projectID, fp, meta)
			if err != nil {
				return err
			}
			signal = SignalCreated
			return nil
		}

		signal = a.fold(existing, meta)
		out = existing
		if err := a.store.ReplaceIssue(ctx, existing); err != nil {
			return fmt.Errorf("replace issue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, SignalNone, err
	}
	return out, signal, nil
}

func (a *Aggregator) create(ctx context.Context, projectID uuid.UUID, fp fingerprint.Result, meta EventMeta) (*models.Issue, error) {
	now := time.Now().UTC()

	issue := &models.Issue{
		ID:              uuid.New(),
		ProjectID:       projectID,
		ShortID:         a.nextShortID(ctx, projectID),
		FingerprintHash: fp.Hash,
		Title:           fp.Title,
		Culprit:         fp.Culprit,
		Level:           meta.Level,
		Status:          models.IssueUnresolved,
		FirstSeen:       meta.Timestamp,
		LastSeen:        meta.Timestamp,
		EventCount:      1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if meta.Environment != "" {
		issue.Environments = []string{meta.Environment}
	}
	if meta.Release != "" {
		issue.Releases = []string{meta.Release}
	}
	if meta.UserID != "" {
		sk := hyperloglog.New14()
		sk.Insert([]byte(meta.UserID))
		issue.UserCount = int64(sk.Estimate())
		if data, err := sk.MarshalBinary(); err == nil {
			issue.UserSketch = data
		}
	}

	if err := a.store.ReplaceIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// fold mutates an existing issue in place and returns the resulting signal.
// A resolved issue regresses; ignored issues stay ignored quietly.
func (a *Aggregator) fold(issue *models.Issue, meta EventMeta) Signal {
	signal := SignalNone
	if issue.Status == models.IssueResolved {
		issue.Status = models.IssueUnresolved
		signal = SignalRegressed
	}

	if meta.Timestamp.After(issue.LastSeen) {
		issue.LastSeen = meta.Timestamp
	}
	issue.EventCount++
	if models.LevelSeverity(meta.Level) > models.LevelSeverity(issue.Level) {
		issue.Level = meta.Level
	}
	if meta.Environment != "" && !slices.Contains(issue.Environments, meta.Environment) {
		issue.Environments = append(issue.Environments, meta.Environment)
	}
	if meta.Release != "" && !slices.Contains(issue.Releases, meta.Release) {
		issue.Releases = append(issue.Releases, meta.Release)
	}
	if meta.UserID != "" {
		a.addUser(issue, meta.UserID)
	}
	issue.UpdatedAt = time.Now().UTC()
	return signal
}

// addUser folds one user id into the issue's distinct-user sketch.
func (a *Aggregator) addUser(issue *models.Issue, userID string) {
	sk := hyperloglog.New14()
	if len(issue.UserSketch) > 0 {
		if err := sk.UnmarshalBinary(issue.UserSketch); err != nil {
			// Corrupt sketch: start over rather than fail the event.
			slog.Warn("discarding unreadable user sketch", "issue_id", issue.ID, "error", err)
			sk = hyperloglog.New14()
		}
	}
	sk.Insert([]byte(userID))
	issue.UserCount = int64(sk.Estimate())
	if data, err := sk.MarshalBinary(); err == nil {
		issue.UserSketch = data
	}
}

// nextShortID allocates the next human-readable id, e.g. "API-42". Best
// effort: a store outage falls back to a non-sequenced placeholder instead of
// failing the ingestion.
func (a *Aggregator) nextShortID(ctx context.Context, projectID uuid.UUID) string {
	prefix := "ISSUE"
	if p, err := a.store.GetProject(ctx, projectID); err == nil && p.ShortIDPrefix != "" {
		prefix = p.ShortIDPrefix
	}
	seq, err := a.store.NextIssueSeq(ctx, projectID)
	if err != nil {
		slog.Warn("short id sequence unavailable", "project_id", projectID, "error", err)
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
	}
	return fmt.Sprintf("%s-%d", prefix, seq)
}

// UpdateStatus applies an explicit status change. Resolution only ever
// happens here; regressions only ever happen in Upsert.
func (a *Aggregator) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	switch status {
	case models.IssueUnresolved, models.IssueResolved, models.IssueIgnored:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return a.store.UpdateIssueStatus(ctx, id, status)
}

// Delete removes an issue. Raw events are retained.
func (a *Aggregator) Delete(ctx context.Context, id uuid.UUID) error {
	return a.store.DeleteIssue(ctx, id)
}

// Merge folds the source issues into target: events are repointed at the
// target's fingerprint hash, counters and sets are combined, sources removed.
// Administrative operation, not on the ingestion hot path.
func (a *Aggregator) Merge(ctx context.Context, projectID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error) {
	target, err := a.store.GetIssue(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load merge target: %w", err)
	}
	if target.ProjectID != projectID {
		return nil, store.ErrNotFound
	}

	targetSketch := hyperloglog.New14()
	if len(target.UserSketch) > 0 {
		if err := targetSketch.UnmarshalBinary(target.UserSketch); err != nil {
			targetSketch = hyperloglog.New14()
		}
	}

	var sourceHashes []string
	for _, srcID := range sourceIDs {
		if srcID == targetID {
			continue
		}
		src, err := a.store.GetIssue(ctx, srcID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load merge source: %w", err)
		}
		if src.ProjectID != projectID {
			continue
		}

		sourceHashes = append(sourceHashes, src.FingerprintHash)
		target.EventCount += src.EventCount
		if src.FirstSeen.Before(target.FirstSeen) {
			target.FirstSeen = src.FirstSeen
		}
		if src.LastSeen.After(target.LastSeen) {
			target.LastSeen = src.LastSeen
		}
		if models.LevelSeverity(src.Level) > models.LevelSeverity(target.Level) {
			target.Level = src.Level
		}
		for _, env := range src.Environments {
			if !slices.Contains(target.Environments, env) {
				target.Environments = append(target.Environments, env)
			}
		}
		for _, rel := range src.Releases {
			if !slices.Contains(target.Releases, rel) {
				target.Releases = append(target.Releases, rel)
			}
		}
		if len(src.UserSketch) > 0 {
			srcSketch := hyperloglog.New14()
			if err := srcSketch.UnmarshalBinary(src.UserSketch); err == nil {
				if err := targetSketch.Merge(srcSketch); err != nil {
					slog.Warn("user sketch merge failed", "source_id", srcID, "error", err)
				}
			}
		}
	}

	if len(sourceHashes) == 0 {
		return target, nil
	}

	if _, err := a.store.ReassignEventFingerprints(ctx, projectID, sourceHashes, target.FingerprintHash); err != nil {
		return nil, fmt.Errorf("reassign events: %w", err)
	}

	target.UserCount = int64(targetSketch.Estimate())
	if data, err := targetSketch.MarshalBinary(); err == nil {
		target.UserSketch = data
	}
	target.UpdatedAt = time.Now().UTC()
	if err := a.store.ReplaceIssue(ctx, target); err != nil {
		return nil, fmt.Errorf("replace merge target: %w", err)
	}

	for _, srcID := range sourceIDs {
		if srcID == targetID {
			continue
		}
		if err := a.store.DeleteIssue(ctx, srcID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("delete merge source: %w", err)
		}
	}
	return target, nil
}
