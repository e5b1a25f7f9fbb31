package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/AMS/errors"
)

// MaxJobsLimit caps list queries
const MaxJobsLimit = 10000

// Queue serializes job state changes over a Store.
// Dequeue is FIFO by creation time.
type Queue struct {
	store *Store
	mu    sync.Mutex
}

// NewQueue creates a job queue on db
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// Enqueue adds a new job
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(ctx, job); err != nil {
		return withJobDetails(errors.Wrap(err, "failed to enqueue job"), job)
	}
	return nil
}

// Dequeue takes the oldest queued job and marks it running.
// Returns nil when nothing is queued.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.NextQueued(ctx)
	if err != nil || job == nil {
		return nil, err
	}
	job.Start()
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return nil, withJobDetails(errors.Wrap(err, "failed to mark job running"), job)
	}
	return job, nil
}

// GetJob returns a job by id
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// UpdateJob persists a job's state
func (q *Queue) UpdateJob(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(ctx, job); err != nil {
		return withJobDetails(err, job)
	}
	return nil
}

// CompleteJob marks a job completed
func (q *Queue) CompleteJob(ctx context.Context, id string) error {
	return q.transition(ctx, id, func(j *Job) error { j.Complete(); return nil })
}

// FailJob marks a job failed with jobErr
func (q *Queue) FailJob(ctx context.Context, id string, jobErr error) error {
	return q.transition(ctx, id, func(j *Job) error { j.Fail(jobErr); return nil })
}

// CancelJob cancels a job that has not finished
func (q *Queue) CancelJob(ctx context.Context, id string, reason string) error {
	return q.transition(ctx, id, func(j *Job) error {
		if j.Status.IsTerminal() {
			return errors.Wrapf(errors.ErrInvalidTransition, "job %s already %s", id, j.Status)
		}
		j.Cancel(reason)
		return nil
	})
}

func (q *Queue) transition(ctx context.Context, id string, apply func(*Job) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := apply(job); err != nil {
		return withJobDetails(err, job)
	}
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return withJobDetails(err, job)
	}
	return nil
}

// ListJobs returns jobs matching f, newest first
func (q *Queue) ListJobs(ctx context.Context, f JobFilter) ([]*Job, error) {
	return q.store.ListJobs(ctx, f)
}

// Cleanup removes finished jobs last updated more than olderThan ago
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.DeleteFinished(ctx, time.Now().Add(-olderThan))
}

// QueueStats counts jobs by status
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func withJobDetails(err error, job *Job) error {
	err = errors.WithDetailf(err, "Job ID: %s", job.ID)
	err = errors.WithDetailf(err, "Handler: %s", job.HandlerName)
	return errors.WithDetailf(err, "Source: %s", job.Source)
}
