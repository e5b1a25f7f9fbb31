// Package async provides the SQLite-backed job queue and worker pool that
// runs AMS background work, such as re-creating instantiations after a reset.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/AMS/errors"
)

// JobStatus is where a job is in its lifecycle
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus validates a status given on the command line
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return st, nil
	}
	return "", errors.NewInvalidRequestError("unknown job status %q", s)
}

// IsTerminal reports whether no further work will happen for the job
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is one unit of background work.
//
// HandlerName routes the job to a registered JobHandler, which owns the
// structure of Payload. Source names the object the job works on.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source"`
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJobWithPayload creates a queued job for handlerName.
//
//	payload, _ := json.Marshal(ingest.InstantiationPayload{ParentID: asset.ID, XML: xml, BatchItemID: item.ID})
//	job, _ := async.NewJobWithPayload(ingest.DigitalHandlerName, asset.ID, payload)
func NewJobWithPayload(handlerName string, source string, payload json.RawMessage) (*Job, error) {
	if handlerName == "" {
		return nil, errors.NewInvalidRequestError("handlerName cannot be empty")
	}
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() { j.finish(JobStatusCompleted, "") }

// Fail marks the job as failed with err's message
func (j *Job) Fail(err error) { j.finish(JobStatusFailed, err.Error()) }

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) { j.finish(JobStatusCancelled, reason) }

// Requeue puts an interrupted job back in line
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.StartedAt = nil
	j.Error = ""
	j.UpdatedAt = time.Now()
}

func (j *Job) finish(status JobStatus, msg string) {
	now := time.Now()
	j.Status = status
	j.Error = msg
	j.CompletedAt = &now
	j.UpdatedAt = now
}
