package async

import "database/sql"

// JobScanArgs holds the nullable column targets for scanning a job row
type JobScanArgs struct {
	HandlerName sql.NullString
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	ParentJobID sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// GetJobScanTargets returns scan destinations for the job and its nullable
// columns, in the order of StandardJobSelectColumns
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&args.HandlerName,
		&job.Source,
		&job.Status,
		&job.Progress.Current,
		&job.Progress.Total,
		&args.ErrorMsg,
		&args.Payload,
		&args.ParentJobID,
		&job.RetryCount,
		&job.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs copies valid nullable columns onto the job
func ProcessJobScanArgs(job *Job, args *JobScanArgs) {
	if args.HandlerName.Valid {
		job.HandlerName = args.HandlerName.String
	}
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	if args.ParentJobID.Valid {
		job.ParentJobID = args.ParentJobID.String
	}
	if args.StartedAt.Valid {
		job.StartedAt = &args.StartedAt.Time
	}
	if args.CompletedAt.Valid {
		job.CompletedAt = &args.CompletedAt.Time
	}
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := &JobScanArgs{}
	targets := GetJobScanTargets(job, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	ProcessJobScanArgs(job, args)
	return nil
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, handler_name, source, status,
		progress_current, progress_total,
		error, payload,
		parent_job_id, retry_count,
		created_at, started_at, completed_at, updated_at`
}
