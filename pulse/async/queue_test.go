package async

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/errors"
	amstest "github.com/teranos/AMS/internal/testing"
)

func newTestJob(t *testing.T, handler, source string) *Job {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"parent_id": source})
	require.NoError(t, err)
	job, err := NewJobWithPayload(handler, source, payload)
	require.NoError(t, err)
	return job
}

func TestNewJobWithPayload(t *testing.T) {
	job := newTestJob(t, "ams.test", "cpb-aacip-1")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, "cpb-aacip-1", job.Source)
	assert.JSONEq(t, `{"parent_id":"cpb-aacip-1"}`, string(job.Payload))

	other := newTestJob(t, "ams.test", "cpb-aacip-1")
	assert.NotEqual(t, job.ID, other.ID)

	_, err := NewJobWithPayload("", "x", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestJobStateTransitions(t *testing.T) {
	job := newTestJob(t, "ams.test", "src")

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Requeue()
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Nil(t, job.StartedAt)

	job.Start()
	job.Complete()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.Error)
	assert.True(t, job.Status.IsTerminal())

	failed := newTestJob(t, "ams.test", "src")
	failed.Fail(errors.New("boom"))
	assert.Equal(t, "boom", failed.Error)
	require.NotNil(t, failed.CompletedAt)
	assert.False(t, JobStatusRunning.IsTerminal())
}

func TestParseJobStatus(t *testing.T) {
	st, err := ParseJobStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, st)

	_, err = ParseJobStatus("paused")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(amstest.CreateTestDB(t))

	first := newTestJob(t, "ams.test", "first")
	require.NoError(t, queue.Enqueue(ctx, first))
	second := newTestJob(t, "ams.test", "second")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	require.NoError(t, queue.Enqueue(ctx, second))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "oldest job is dequeued first")
	assert.Equal(t, JobStatusRunning, got.Status)

	stored, err := queue.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, stored.Status)
	require.NotNil(t, stored.StartedAt)
	assert.JSONEq(t, string(first.Payload), string(stored.Payload))

	got, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty queue returns nil job")
}

func TestQueueEnqueueDuplicate(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(amstest.CreateTestDB(t))

	job := newTestJob(t, "ams.test", "src")
	require.NoError(t, queue.Enqueue(ctx, job))

	err := queue.Enqueue(ctx, job)
	require.Error(t, err)
	assert.Contains(t, errors.FlattenDetails(err), "Job ID: "+job.ID)
}

func TestQueueCompleteFailCancel(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(amstest.CreateTestDB(t))

	ok := newTestJob(t, "ams.test", "ok")
	bad := newTestJob(t, "ams.test", "bad")
	gone := newTestJob(t, "ams.test", "gone")
	for _, j := range []*Job{ok, bad, gone} {
		require.NoError(t, queue.Enqueue(ctx, j))
	}

	require.NoError(t, queue.CompleteJob(ctx, ok.ID))
	require.NoError(t, queue.FailJob(ctx, bad.ID, errors.New("parse failed")))
	require.NoError(t, queue.CancelJob(ctx, gone.ID, "operator request"))

	got, err := queue.GetJob(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "parse failed", got.Error)
	require.NotNil(t, got.CompletedAt)

	err = queue.CancelJob(ctx, ok.ID, "too late")
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "finished jobs cannot be cancelled")

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 3, stats.Total)

	_, err = queue.GetJob(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(queue.CompleteJob(ctx, "missing")))
}

func TestQueueListJobs(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(amstest.CreateTestDB(t))

	base := time.Now()
	for i, source := range []string{"cpb-aacip-1", "cpb-aacip-1", "cpb-aacip-2"} {
		job := newTestJob(t, "ams.test", source)
		job.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, queue.Enqueue(ctx, job))
	}
	done := newTestJob(t, "ams.test", "cpb-aacip-2")
	done.CreatedAt = base.Add(time.Second)
	require.NoError(t, queue.Enqueue(ctx, done))
	require.NoError(t, queue.CompleteJob(ctx, done.ID))

	all, err := queue.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, done.ID, all[0].ID, "newest first")

	queued, err := queue.ListJobs(ctx, JobFilter{Status: JobStatusQueued})
	require.NoError(t, err)
	assert.Len(t, queued, 3)

	bySource, err := queue.ListJobs(ctx, JobFilter{Source: "cpb-aacip-2"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	limited, err := queue.ListJobs(ctx, JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestQueueCleanup(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(amstest.CreateTestDB(t))

	old := newTestJob(t, "ams.test", "old")
	require.NoError(t, queue.Enqueue(ctx, old))
	require.NoError(t, queue.CompleteJob(ctx, old.ID))

	pending := newTestJob(t, "ams.test", "pending")
	require.NoError(t, queue.Enqueue(ctx, pending))

	removed, err := queue.Cleanup(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = queue.GetJob(ctx, pending.ID)
	assert.NoError(t, err, "unfinished jobs survive cleanup")
}
