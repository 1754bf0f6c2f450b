package async

import (
	"database/sql"
	"sync"
	"time"

	"github.com/arcline/adsync/errors"
)

const (
	// MaxJobsLimit is the maximum number of jobs that can be listed at once
	MaxJobsLimit = 10000
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue is the serialized front door to the job store. Every mutation
// notifies subscribers, which feeds the job event websocket.
type Queue struct {
	store       *Store
	mu          sync.RWMutex
	subscribers []chan *Job
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:       NewStore(db),
		subscribers: make([]chan *Job, 0),
	}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		return errors.Wrapf(err, "failed to enqueue job %s (handler %s, source %s)",
			job.ID, job.HandlerName, job.Source)
	}

	q.notifySubscribers(job)
	return nil
}

// Dequeue gets the next queued job and marks it as running.
// Returns nil when no job is available.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queuedStatus := JobStatusQueued
	jobs, err := q.store.ListJobs(&queuedStatus, 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued jobs")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	job := jobs[0]
	job.Start()

	if err := q.store.UpdateJob(job); err != nil {
		return nil, errors.Wrapf(err, "failed to mark job %s as running", job.ID)
	}

	q.notifySubscribers(job)
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		return errors.Wrapf(err, "failed to update job %s (status %s)", job.ID, job.Status)
	}

	q.notifySubscribers(job)
	return nil
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}

	job.Complete()

	if err := q.store.UpdateJob(job); err != nil {
		return errors.Wrapf(err, "failed to complete job %s", job.ID)
	}

	q.notifySubscribers(job)
	return nil
}

// FailJob marks a job as failed with an error
func (q *Queue) FailJob(id string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", id)
	}

	job.Fail(jobErr)

	if err := q.store.UpdateJob(job); err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", job.ID)
	}

	q.notifySubscribers(job)
	return nil
}

// DeleteJobWithChildren deletes a job and cancels all of its active
// child jobs first. Terminal children stay for history.
func (q *Queue) DeleteJobWithChildren(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	children, err := q.store.ListTasksByParent(jobID)
	if err != nil {
		return errors.Wrapf(err, "failed to list child tasks for job %s", jobID)
	}

	for _, child := range children {
		if !child.Active() {
			continue
		}
		child.Cancel("parent job deleted")
		if err := q.store.UpdateJob(child); err != nil {
			return errors.Wrapf(err, "failed to cancel child task %s", child.ID)
		}
		q.notifySubscribers(child)
	}

	if err := q.store.DeleteJob(jobID); err != nil {
		return errors.Wrapf(err, "failed to delete parent job %s", jobID)
	}

	return nil
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// ListActiveJobs returns all queued or running jobs
func (q *Queue) ListActiveJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListActiveJobs(limit)
}

// ListTasksByParent returns all child jobs for a given parent
func (q *Queue) ListTasksByParent(parentJobID string) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListTasksByParent(parentJobID)
}

// FindActiveJobBySourceAndHandler finds a queued or running job for the
// source and handler, or nil when none exists
func (q *Queue) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.FindActiveJobBySourceAndHandler(source, handlerName)
}

// Cleanup removes old terminal jobs
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// Subscribe returns a buffered channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is not closed
// here; the caller owns its lifecycle.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a job update to every subscriber without
// blocking; a subscriber with a full buffer misses the event.
// Caller must hold q.mu.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// QueueStats summarizes jobs by status
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &QueueStats{}

	for _, status := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		jobs, err := q.store.ListJobs(&status, MaxJobsLimit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s jobs", status)
		}

		count := len(jobs)
		switch status {
		case JobStatusQueued:
			stats.Queued = count
		case JobStatusRunning:
			stats.Running = count
		case JobStatusCompleted:
			stats.Completed = count
		case JobStatusFailed:
			stats.Failed = count
		case JobStatusCancelled:
			stats.Cancelled = count
		}
		stats.Total += count
	}

	return stats, nil
}
