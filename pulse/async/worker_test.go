package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/errors"
	amstest "github.com/teranos/AMS/internal/testing"
)

func TestPoolConfigFromAm(t *testing.T) {
	cfg := &am.Config{}
	cfg.Pulse.Workers = 4
	cfg.Pulse.PollIntervalMS = 250
	cfg.Pulse.JobsPerSecond = 2.5

	poolCfg := PoolConfigFromAm(cfg)
	assert.Equal(t, 4, poolCfg.Workers)
	assert.Equal(t, 250*time.Millisecond, poolCfg.PollInterval)
	assert.Equal(t, 2.5, poolCfg.JobsPerSecond)

	assert.Equal(t, DefaultWorkerPoolConfig(), PoolConfigFromAm(nil))
}

func TestRunOnceDrainsQueue(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, amstest.CreateTestDB(t), DefaultWorkerPoolConfig(), nil)

	var ran int32
	pool.Registry().Register(HandlerFunc{HandlerName: "ams.count", Fn: func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}})
	failing := &mockHandler{name: "ams.fail", err: errors.New("bad payload")}
	pool.Registry().Register(failing)

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.GetQueue().Enqueue(ctx, newTestJob(t, "ams.count", "src")))
	}
	bad := newTestJob(t, "ams.fail", "src")
	require.NoError(t, pool.GetQueue().Enqueue(ctx, bad))

	n, err := pool.RunOnce(ctx)
	require.NoError(t, err, "handler failures fail the job, not the pool")
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))

	got, err := pool.GetQueue().GetJob(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "bad payload", got.Error)

	stats, err := pool.GetQueue().GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 0, stats.Queued)
}

func TestRunOnceRunsJobsEnqueuedByJobs(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, amstest.CreateTestDB(t), DefaultWorkerPoolConfig(), nil)

	var leaves int32
	pool.Registry().Register(HandlerFunc{HandlerName: "ams.fanout", Fn: func(ctx context.Context, job *Job) error {
		for i := 0; i < 2; i++ {
			child, err := NewJobWithPayload("ams.leaf", job.ID, nil)
			if err != nil {
				return err
			}
			if err := pool.GetQueue().Enqueue(ctx, child); err != nil {
				return err
			}
		}
		return nil
	}})
	pool.Registry().Register(HandlerFunc{HandlerName: "ams.leaf", Fn: func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&leaves, 1)
		return nil
	}})

	require.NoError(t, pool.GetQueue().Enqueue(ctx, newTestJob(t, "ams.fanout", "root")))

	n, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&leaves))
}

func TestUnregisteredHandlerFailsJob(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, amstest.CreateTestDB(t), DefaultWorkerPoolConfig(), nil)

	job := newTestJob(t, "ams.nobody", "src")
	require.NoError(t, pool.GetQueue().Enqueue(ctx, job))

	_, err := pool.RunOnce(ctx)
	require.NoError(t, err)

	got, err := pool.GetQueue().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no handler registered")
}

func TestRecoverOrphanedJobs(t *testing.T) {
	ctx := context.Background()
	database := amstest.CreateTestDB(t)
	pool := NewWorkerPool(ctx, database, DefaultWorkerPoolConfig(), nil)

	job := newTestJob(t, "ams.test", "src")
	require.NoError(t, pool.GetQueue().Enqueue(ctx, job))
	_, err := pool.GetQueue().Dequeue(ctx) // running, as if the process died mid-job
	require.NoError(t, err)

	n, err := pool.RecoverOrphanedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := pool.GetQueue().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)
}

func TestWorkerPoolStartStop(t *testing.T) {
	ctx := context.Background()
	poolCfg := WorkerPoolConfig{Workers: 2, PollInterval: 10 * time.Millisecond, StopTimeout: 5 * time.Second}
	pool := NewWorkerPool(ctx, amstest.CreateTestDB(t), poolCfg, nil)
	assert.Equal(t, 2, pool.Workers())

	done := make(chan string, 1)
	pool.Registry().Register(HandlerFunc{HandlerName: "ams.signal", Fn: func(ctx context.Context, job *Job) error {
		done <- job.ID
		return nil
	}})

	job := newTestJob(t, "ams.signal", "src")
	require.NoError(t, pool.GetQueue().Enqueue(ctx, job))

	pool.Start()
	select {
	case id := <-done:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up the job")
	}
	pool.Stop()

	assert.Eventually(t, func() bool {
		got, err := pool.GetQueue().GetJob(ctx, job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimiterSpacesJobs(t *testing.T) {
	ctx := context.Background()
	poolCfg := DefaultWorkerPoolConfig()
	poolCfg.JobsPerSecond = 20
	pool := NewWorkerPool(ctx, amstest.CreateTestDB(t), poolCfg, nil)
	pool.Registry().Register(&mockHandler{name: "ams.test"})

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.GetQueue().Enqueue(ctx, newTestJob(t, "ams.test", "src")))
	}

	start := time.Now()
	n, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// Burst of one, then 50ms per job
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
