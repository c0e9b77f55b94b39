package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/queue"
)

// setupDispatcher spins up a Redis container and returns a dispatcher on it.
func setupDispatcher(t *testing.T, maxAttempts int, retryBaseDelay time.Duration) *queue.RedisDispatcher {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := cache.NewClient("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return queue.NewRedisDispatcher(client, maxAttempts, retryBaseDelay)
}

// runDispatcher starts the worker pools and stops them when the test ends.
func runDispatcher(t *testing.T, d *queue.RedisDispatcher, workers map[string]int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, workers)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, ch <-chan queue.Job, timeout time.Duration) queue.Job {
	t.Helper()
	select {
	case job := <-ch:
		return job
	case <-time.After(timeout):
		t.Fatal("timed out waiting for job")
		return queue.Job{}
	}
}

func TestRedisDispatcherProcessesJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 3, 10*time.Millisecond)

	processed := make(chan queue.Job, 1)
	d.Register("event.process", func(ctx context.Context, job queue.Job) error {
		processed <- job
		return nil
	})
	runDispatcher(t, d, map[string]int{queue.QueueEvents: 1})

	err := d.Enqueue(context.Background(), queue.Job{
		ID:       "evt-1",
		Queue:    queue.QueueEvents,
		Kind:     "event.process",
		Payload:  []byte(`{"n":1}`),
		Priority: queue.PriorityFatal,
	})
	require.NoError(t, err)

	job := waitFor(t, processed, 10*time.Second)
	assert.Equal(t, "evt-1", job.ID)
	assert.Equal(t, `{"n":1}`, string(job.Payload))
}

func TestRedisDispatcherDeduplicatesLiveJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 3, 10*time.Millisecond)
	ctx := context.Background()

	job := queue.Job{ID: "evt-dup", Queue: queue.QueueEvents, Kind: "event.process"}
	require.NoError(t, d.Enqueue(ctx, job))

	err := d.Enqueue(ctx, job)
	assert.ErrorIs(t, err, queue.ErrDuplicateJob)

	err = d.EnqueueDelayed(ctx, job, time.Minute)
	assert.ErrorIs(t, err, queue.ErrDuplicateJob, "delayed enqueue shares the dedupe window")
}

func TestRedisDispatcherDedupeClearsAfterCompletion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 3, 10*time.Millisecond)
	ctx := context.Background()

	processed := make(chan queue.Job, 2)
	d.Register("event.process", func(ctx context.Context, job queue.Job) error {
		processed <- job
		return nil
	})
	runDispatcher(t, d, map[string]int{queue.QueueEvents: 1})

	job := queue.Job{ID: "evt-again", Queue: queue.QueueEvents, Kind: "event.process"}
	require.NoError(t, d.Enqueue(ctx, job))
	waitFor(t, processed, 10*time.Second)

	// The id is free again once the first run completed.
	require.Eventually(t, func() bool {
		return d.Enqueue(ctx, job) == nil
	}, 5*time.Second, 50*time.Millisecond)
	waitFor(t, processed, 10*time.Second)
}

func TestRedisDispatcherPriorityOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 3, 10*time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	d.Register("event.process", func(ctx context.Context, job queue.Job) error {
		mu.Lock()
		order = append(order, job.ID)
		if len(order) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	// Fill the queue before any worker starts so the pop order is decided
	// purely by score.
	enqueue := func(id string, priority int) {
		require.NoError(t, d.Enqueue(ctx, queue.Job{
			ID: id, Queue: queue.QueueEvents, Kind: "event.process", Priority: priority,
		}))
	}
	enqueue("debug-1", queue.PriorityDebug)
	enqueue("fatal-1", queue.PriorityFatal)
	enqueue("info-1", queue.PriorityInfo)

	runDispatcher(t, d, map[string]int{queue.QueueEvents: 1})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"fatal-1", "info-1", "debug-1"}, order)
}

func TestRedisDispatcherDelayedPromotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 3, 10*time.Millisecond)

	processed := make(chan queue.Job, 1)
	d.Register("rollup.window", func(ctx context.Context, job queue.Job) error {
		processed <- job
		return nil
	})
	runDispatcher(t, d, map[string]int{queue.QueueRollups: 1})

	err := d.EnqueueDelayed(context.Background(), queue.Job{
		ID:    "rollup:p:1",
		Queue: queue.QueueRollups,
		Kind:  "rollup.window",
	}, 200*time.Millisecond)
	require.NoError(t, err)

	job := waitFor(t, processed, 15*time.Second)
	assert.Equal(t, "rollup:p:1", job.ID)
}

func TestRedisDispatcherRetriesThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	d := setupDispatcher(t, 5, 50*time.Millisecond)

	var mu sync.Mutex
	attempts := 0
	processed := make(chan queue.Job, 1)
	d.Register("event.process", func(ctx context.Context, job queue.Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient failure")
		}
		processed <- job
		return nil
	})
	runDispatcher(t, d, map[string]int{queue.QueueEvents: 1})

	require.NoError(t, d.Enqueue(context.Background(), queue.Job{
		ID: "evt-flaky", Queue: queue.QueueEvents, Kind: "event.process",
	}))

	job := waitFor(t, processed, 20*time.Second)
	assert.Equal(t, 2, job.Attempt, "two failed attempts before success")
}
