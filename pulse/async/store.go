package async

import (
	"database/sql"
	"time"

	"github.com/arcline/adsync/errors"
)

// Store handles persistence of sync jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO sync_jobs (
			id, handler_name, source, status,
			progress_current, progress_total,
			payload, parent_job_id, retry_count,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	handlerName := sql.NullString{String: job.HandlerName, Valid: job.HandlerName != ""}
	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	parentJobID := sql.NullString{String: job.ParentJobID, Valid: job.ParentJobID != ""}

	_, err := s.db.Exec(query,
		job.ID,
		handlerName,
		job.Source,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		payload,
		parentJobID,
		job.RetryCount,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM sync_jobs WHERE id = ?`

	var job Job
	args := &JobScanArgs{}
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query, id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	ProcessJobScanArgs(&job, args)
	return &job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE sync_jobs
		SET handler_name = ?,
		    payload = ?,
		    status = ?,
		    progress_current = ?,
		    progress_total = ?,
		    error = ?,
		    retry_count = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	handlerName := sql.NullString{String: job.HandlerName, Valid: job.HandlerName != ""}
	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}

	_, err := s.db.Exec(query,
		handlerName,
		payload,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		job.Error,
		job.RetryCount,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	return nil
}

// ListJobs returns all jobs, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + StandardJobSelectColumns() + ` FROM sync_jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListActiveJobs returns all jobs that are currently queued or running
func (s *Store) ListActiveJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM sync_jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	query := `DELETE FROM sync_jobs WHERE id = ?`

	result, err := s.db.Exec(query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	return nil
}

// ListTasksByParent returns all child jobs for a given parent
func (s *Store) ListTasksByParent(parentJobID string) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM sync_jobs
		WHERE parent_job_id = ?
		ORDER BY created_at ASC`

	rows, err := s.db.Query(query, parentJobID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks by parent")
	}
	defer rows.Close()

	return scanJobs(rows, "tasks")
}

// CleanupOldJobs removes terminal jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM sync_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// FindActiveJobBySourceAndHandler finds a queued or running job for the
// given source and handler. Returns nil when none exists; used for
// deduplication so one account never has two overlapping syncs.
func (s *Store) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM sync_jobs
		WHERE source = ?
		  AND handler_name = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`

	var job Job
	args := &JobScanArgs{}
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query, source, handlerName).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job by source and handler")
	}

	ProcessJobScanArgs(&job, args)
	return &job, nil
}
