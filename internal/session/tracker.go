// Package session tracks which users of a project have been seen recently.
// Sightings live in a Redis sorted set per project, member = user id,
// score = last-seen unix time, so distinct-user counts over a trailing
// window are single ZCOUNT calls.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// Sightings older than this are pruned on write.
const retention = 31 * 24 * time.Hour

// Store is the recency index behind the tracker.
type Store interface {
	// Touch records that member was seen at the given time.
	Touch(ctx context.Context, key, member string, at time.Time) error
	// DistinctSince counts members last seen at or after since.
	DistinctSince(ctx context.Context, key string, since time.Time) (int64, error)
}

// RedisStore keeps sightings in sorted sets.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Touch(ctx context.Context, key, member string, at time.Time) error {
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", at.Add(-retention).Unix()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record sighting: %w", err)
	}
	return nil
}

func (s *RedisStore) DistinctSince(ctx context.Context, key string, since time.Time) (int64, error) {
	n, err := s.rdb.ZCount(ctx, key, fmt.Sprintf("%d", since.Unix()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return n, nil
}

// NullStore drops sightings and counts zero. Used when Redis is absent.
type NullStore struct{}

func (NullStore) Touch(ctx context.Context, key, member string, at time.Time) error { return nil }
func (NullStore) DistinctSince(ctx context.Context, key string, since time.Time) (int64, error) {
	return 0, nil
}

// Tracker answers "how many users were active" questions per project.
type Tracker struct {
	store           Store
	livenessTimeout time.Duration
	now             func() time.Time
}

func NewTracker(store Store, livenessTimeout time.Duration) *Tracker {
	return &Tracker{store: store, livenessTimeout: livenessTimeout, now: time.Now}
}

func sightingsKey(projectID uuid.UUID) string {
	return "sessions:" + projectID.String()
}

// Record marks userID as seen now. Blank user ids are ignored; anonymous
// traffic has no session identity.
func (t *Tracker) Record(ctx context.Context, projectID uuid.UUID, userID string) error {
	if userID == "" {
		return nil
	}
	return t.store.Touch(ctx, sightingsKey(projectID), userID, t.now().UTC())
}

// ActiveNow counts users seen within the liveness timeout.
func (t *Tracker) ActiveNow(ctx context.Context, projectID uuid.UUID) (int64, error) {
	now := t.now().UTC()
	return t.store.DistinctSince(ctx, sightingsKey(projectID), now.Add(-t.livenessTimeout))
}

// Counts returns distinct-user tallies over the standard trailing windows.
// Today is measured from UTC midnight, not a trailing 24 hours.
func (t *Tracker) Counts(ctx context.Context, projectID uuid.UUID) (models.ActiveUserCounts, error) {
	now := t.now().UTC()
	key := sightingsKey(projectID)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var counts models.ActiveUserCounts
	windows := []struct {
		since time.Time
		dst   *int64
	}{
		{now.Add(-5 * time.Minute), &counts.Last5m},
		{now.Add(-15 * time.Minute), &counts.Last15m},
		{now.Add(-30 * time.Minute), &counts.Last30m},
		{now.Add(-time.Hour), &counts.Last1h},
		{midnight, &counts.Today},
		{now.Add(-7 * 24 * time.Hour), &counts.Week},
		{now.Add(-30 * 24 * time.Hour), &counts.Month},
	}

	for _, w := range windows {
		n, err := t.store.DistinctSince(ctx, key, w.since)
		if err != nil {
			return models.ActiveUserCounts{}, err
		}
		*w.dst = n
	}
	return counts, nil
}
