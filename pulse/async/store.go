package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/AMS/errors"
)

const jobColumns = `id, handler_name, source, status, error, payload,
	created_at, started_at, completed_at, updated_at`

// Store persists jobs in the async_jobs table
type Store struct {
	db *sql.DB
}

// NewStore creates a job store on db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	Source string
	Limit  int
}

// CreateJob inserts a new job
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO async_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.HandlerName, job.Source, job.Status,
		nullText(job.Error), nullText(string(job.Payload)),
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert job %s", job.ID)
	}
	return nil
}

// GetJob returns a job by id
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM async_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// UpdateJob writes the mutable fields of job
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE async_jobs
		SET status = ?, error = ?, payload = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		job.Status, nullText(job.Error), nullText(string(job.Payload)),
		job.StartedAt, job.CompletedAt, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", job.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %s", job.ID)
	}
	return nil
}

// NextQueued returns the oldest queued job, or nil when none is queued
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM async_jobs
		WHERE status = ?
		ORDER BY created_at, rowid
		LIMIT 1
	`, JobStatusQueued))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read next queued job")
	}
	return job, nil
}

// ListJobs returns jobs matching f, newest first
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM async_jobs WHERE 1 = 1`
	var args []interface{}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	limit := f.Limit
	if limit <= 0 || limit > MaxJobsLimit {
		limit = MaxJobsLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Wrap(rows.Err(), "failed to read jobs")
}

// CountByStatus returns the number of jobs in each status
func (s *Store) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM async_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to read job counts")
}

// DeleteFinished removes terminal jobs last touched before cutoff
func (s *Store) DeleteFinished(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM async_jobs
		WHERE status IN (?, ?, ?) AND updated_at < ?
	`, JobStatusCompleted, JobStatusFailed, JobStatusCancelled, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete finished jobs")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "failed to count deleted jobs")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var errMsg, payload sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&job.ID, &job.HandlerName, &job.Source, &job.Status, &errMsg, &payload,
		&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Error = errMsg.String
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
