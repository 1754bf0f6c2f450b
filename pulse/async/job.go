// Package async provides the queued sync job system: a SQLite-backed job
// queue, a handler registry, and a worker pool that drains the queue.
package async

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcline/adsync/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status is a valid JobStatus
func IsValidStatus(s JobStatus) bool {
	switch s {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one unit of queued work. The infrastructure is domain-agnostic:
// HandlerName routes the job to a registered handler and Payload carries
// handler-specific data the handler decodes itself. Source identifies what
// the job operates on ("tenant:account") and drives deduplication.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source"`
	Status      JobStatus       `json:"status"`
	Progress    Progress        `json:"progress,omitempty"`
	Error       string          `json:"error,omitempty"`
	ParentJobID string          `json:"parent_job_id,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob creates a queued job for the named handler
func NewJob(handlerName, source string, payload json.RawMessage, totalOps int) (*Job, error) {
	return NewChildJob(handlerName, source, payload, totalOps, "")
}

// NewChildJob creates a job grouped under a parent orchestrator job
func NewChildJob(handlerName, source string, payload json.RawMessage, totalOps int, parentJobID string) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}

	now := time.Now()
	return &Job{
		ID:          fmt.Sprintf("job-%s", uuid.NewString()),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Status:      JobStatusQueued,
		Progress:    Progress{Current: 0, Total: totalOps},
		ParentJobID: parentJobID,
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
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue puts a job back in the queue for another attempt, counting the
// attempt and keeping the last error visible until the retry overwrites it
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.RetryCount++
	j.StartedAt = nil
	j.UpdatedAt = time.Now()
}

// UpdateProgress updates the job's progress
func (j *Job) UpdateProgress(current int) {
	j.Progress.Current = current
	j.UpdatedAt = time.Now()
}

// Active reports whether the job is still waiting for or doing work
func (j *Job) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}
