package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vikramshenoy/faultline/internal/telemetry"
)

const (
	// dedupeTTL caps how long a stuck job id can block re-enqueues.
	dedupeTTL = 6 * time.Hour
	// popTimeout is how long a worker blocks waiting for work.
	popTimeout = 5 * time.Second
	// moverInterval is how often delayed jobs are promoted.
	moverInterval = time.Second
	// prioritySpan shifts priority above any realistic arrival sequence so
	// score = priority*2^40 + seq orders by priority first, arrival second.
	prioritySpan = 1 << 40
)

// RedisDispatcher runs the four logical queues on Redis sorted sets.
type RedisDispatcher struct {
	client *redis.Client

	maxAttempts    int
	retryBaseDelay time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRedisDispatcher creates a dispatcher on an existing Redis client.
func NewRedisDispatcher(client *redis.Client, maxAttempts int, retryBaseDelay time.Duration) *RedisDispatcher {
	return &RedisDispatcher{
		client:         client,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
		handlers:       make(map[string]Handler),
	}
}

func queueKey(name string) string   { return "queue:" + name }
func delayedKey(name string) string { return "queue:" + name + ":delayed" }
func deadKey(name string) string    { return "queue:" + name + ":dead" }
func dedupeKey(id string) string    { return "queue:dedupe:" + id }

func (d *RedisDispatcher) Register(kind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

func (d *RedisDispatcher) handler(kind string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Enqueue adds a job for immediate processing. A live job with the same id
// makes this a no-op returning ErrDuplicateJob.
func (d *RedisDispatcher) Enqueue(ctx context.Context, job Job) error {
	ok, err := d.client.SetNX(ctx, dedupeKey(job.ID), 1, dedupeTTL).Result()
	if err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if !ok {
		return ErrDuplicateJob
	}
	return d.push(ctx, job)
}

// EnqueueDelayed schedules a job to become runnable after delay. Duplicate
// ids for the same pending window collapse into the one scheduled job.
func (d *RedisDispatcher) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	ok, err := d.client.SetNX(ctx, dedupeKey(job.ID), 1, dedupeTTL).Result()
	if err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if !ok {
		return ErrDuplicateJob
	}

	job.EnqueuedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := d.client.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: readyAt, Member: data}).Err(); err != nil {
		return fmt.Errorf("schedule delayed job: %w", err)
	}
	return nil
}

// push puts a job on its queue's ready set, priority first, arrival second.
func (d *RedisDispatcher) push(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	seq, err := d.client.Incr(ctx, "queue:seq").Result()
	if err != nil {
		return fmt.Errorf("arrival sequence: %w", err)
	}
	score := float64(int64(job.Priority)*prioritySpan + seq)
	if err := d.client.ZAdd(ctx, queueKey(job.Queue), redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Run starts the worker pools and the delayed-job mover, blocking until ctx
// is cancelled. workers maps queue name to pool size.
func (d *RedisDispatcher) Run(ctx context.Context, workers map[string]int) {
	var wg sync.WaitGroup

	for queueName, n := range workers {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				d.workerLoop(ctx, name)
			}(queueName)
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			d.moverLoop(ctx, name)
		}(queueName)
	}

	wg.Wait()
}

func (d *RedisDispatcher) workerLoop(ctx context.Context, queueName string) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := d.client.BZPopMin(ctx, popTimeout, queueKey(queueName)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("queue pop failed", "queue", queueName, "error", err)
			time.Sleep(time.Second)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res.Member.(string)), &job); err != nil {
			slog.Error("dropping undecodable job", "queue", queueName, "error", err)
			continue
		}
		d.process(ctx, job)
	}
}

func (d *RedisDispatcher) process(ctx context.Context, job Job) {
	h, ok := d.handler(job.Kind)
	if !ok {
		slog.Error("no handler for job kind", "kind", job.Kind, "queue", job.Queue)
		d.park(ctx, job, fmt.Sprintf("no handler for kind %q", job.Kind))
		return
	}

	if err := h(ctx, job); err != nil {
		d.retryOrPark(ctx, job, err)
		return
	}

	telemetry.JobsProcessed.WithLabelValues(job.Queue, "ok").Inc()
	if err := d.client.Del(context.WithoutCancel(ctx), dedupeKey(job.ID)).Err(); err != nil {
		slog.Debug("dedupe key cleanup failed", "job_id", job.ID, "error", err)
	}
}

// retryOrPark reschedules a failed job with exponential backoff, or parks it
// in the dead set once the attempt budget is spent.
func (d *RedisDispatcher) retryOrPark(ctx context.Context, job Job, cause error) {
	job.Attempt++
	if job.Attempt >= d.maxAttempts {
		slog.Error("job exhausted retries", "queue", job.Queue, "kind", job.Kind,
			"job_id", job.ID, "attempts", job.Attempt, "error", cause)
		d.park(ctx, job, cause.Error())
		return
	}

	delay := d.retryBaseDelay * (1 << (job.Attempt - 1))
	slog.Warn("job failed, retrying", "queue", job.Queue, "kind", job.Kind,
		"job_id", job.ID, "attempt", job.Attempt, "retry_in", delay, "error", cause)
	telemetry.JobsProcessed.WithLabelValues(job.Queue, "retried").Inc()

	data, err := json.Marshal(job)
	if err != nil {
		d.park(ctx, job, "marshal for retry: "+err.Error())
		return
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := d.client.ZAdd(context.WithoutCancel(ctx), delayedKey(job.Queue),
		redis.Z{Score: readyAt, Member: data}).Err(); err != nil {
		slog.Error("retry scheduling failed", "job_id", job.ID, "error", err)
		d.park(ctx, job, "retry scheduling failed: "+err.Error())
	}
}

// park records an exhausted job for inspection and frees its dedupe slot.
func (d *RedisDispatcher) park(ctx context.Context, job Job, reason string) {
	ctx = context.WithoutCancel(ctx)
	telemetry.JobsProcessed.WithLabelValues(job.Queue, "dead").Inc()

	entry, err := json.Marshal(struct {
		Job    Job    `json:"job"`
		Reason string `json:"reason"`
		DiedAt string `json:"died_at"`
	}{job, reason, time.Now().UTC().Format(time.RFC3339)})
	if err == nil {
		if err := d.client.LPush(ctx, deadKey(job.Queue), entry).Err(); err != nil {
			slog.Error("dead set write failed", "job_id", job.ID, "error", err)
		}
	}
	if err := d.client.Del(ctx, dedupeKey(job.ID)).Err(); err != nil {
		slog.Debug("dedupe key cleanup failed", "job_id", job.ID, "error", err)
	}
}

// DeadJobs returns up to limit parked jobs from a queue's dead set, newest
// first, without removing them.
func (d *RedisDispatcher) DeadJobs(ctx context.Context, queueName string, limit int64) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := d.client.LRange(ctx, deadKey(queueName), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead set: %w", err)
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e))
	}
	return out, nil
}

// moverLoop promotes delayed jobs whose ready time has passed onto the ready
// set. Safe to run from every worker pool; ZRem arbitrates racing movers.
func (d *RedisDispatcher) moverLoop(ctx context.Context, queueName string) {
	ticker := time.NewTicker(moverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.promoteDue(ctx, queueName)
		}
	}
}

func (d *RedisDispatcher) promoteDue(ctx context.Context, queueName string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := d.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("delayed scan failed", "queue", queueName, "error", err)
		}
		return
	}

	for _, member := range due {
		removed, err := d.client.ZRem(ctx, delayedKey(queueName), member).Result()
		if err != nil || removed == 0 {
			// Another mover claimed it.
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			slog.Error("dropping undecodable delayed job", "queue", queueName, "error", err)
			continue
		}
		if err := d.push(ctx, job); err != nil {
			slog.Error("delayed promotion failed", "job_id", job.ID, "error", err)
		}
	}
}
