package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/arcline/adsync/errors"
)

// ConnectionRecord is the locally stored provisioning outcome for a
// tenant, one row per tenant
type ConnectionRecord struct {
	TenantID     string
	ConnectionID string
	SourceID     string
	WorkspaceID  string

	ScheduleType    ScheduleType
	IntervalMinutes int
	CronExpression  string
	CronTimezone    string

	IsActive      bool
	LastJobID     string
	LastJobStatus string
	LastJobError  string
	LastSyncedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectionStore handles persistence of pipeline connection records
type ConnectionStore struct {
	db *sql.DB
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(db *sql.DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// Get returns the tenant's connection record
func (s *ConnectionStore) Get(ctx context.Context, tenantID string) (*ConnectionRecord, error) {
	query := `
		SELECT tenant_id, connection_id, source_id, workspace_id,
			schedule_type, COALESCE(interval_minutes, 0),
			COALESCE(cron_expression, ''), COALESCE(cron_timezone, ''),
			is_active, COALESCE(last_job_id, ''), COALESCE(last_job_status, ''),
			COALESCE(last_job_error, ''), last_synced_at,
			created_at, updated_at
		FROM pipeline_connections
		WHERE tenant_id = ?
	`

	var rec ConnectionRecord
	var isActive int
	var lastSynced sql.NullTime

	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&rec.TenantID,
		&rec.ConnectionID,
		&rec.SourceID,
		&rec.WorkspaceID,
		&rec.ScheduleType,
		&rec.IntervalMinutes,
		&rec.CronExpression,
		&rec.CronTimezone,
		&isActive,
		&rec.LastJobID,
		&rec.LastJobStatus,
		&rec.LastJobError,
		&lastSynced,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "pipeline connection for tenant %s", tenantID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pipeline connection")
	}

	rec.IsActive = isActive != 0
	if lastSynced.Valid {
		rec.LastSyncedAt = &lastSynced.Time
	}

	return &rec, nil
}

// Upsert inserts or replaces the tenant's connection record
func (s *ConnectionStore) Upsert(ctx context.Context, rec *ConnectionRecord) error {
	query := `
		INSERT INTO pipeline_connections (
			tenant_id, connection_id, source_id, workspace_id,
			schedule_type, interval_minutes, cron_expression, cron_timezone,
			is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id) DO UPDATE SET
			connection_id = excluded.connection_id,
			source_id = excluded.source_id,
			workspace_id = excluded.workspace_id,
			schedule_type = excluded.schedule_type,
			interval_minutes = excluded.interval_minutes,
			cron_expression = excluded.cron_expression,
			cron_timezone = excluded.cron_timezone,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`

	isActive := 0
	if rec.IsActive {
		isActive = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.TenantID,
		rec.ConnectionID,
		rec.SourceID,
		rec.WorkspaceID,
		rec.ScheduleType,
		rec.IntervalMinutes,
		rec.CronExpression,
		rec.CronTimezone,
		isActive,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert pipeline connection")
	}

	return nil
}

// RecordJob stores the latest triggered or observed job on the record.
// A succeeded status also stamps last_synced_at.
func (s *ConnectionStore) RecordJob(ctx context.Context, tenantID, jobID, jobStatus, jobError string) error {
	query := `
		UPDATE pipeline_connections
		SET last_job_id = ?,
			last_job_status = ?,
			last_job_error = ?,
			last_synced_at = CASE WHEN ? = 'succeeded' THEN CURRENT_TIMESTAMP ELSE last_synced_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, jobID, jobStatus, jobError, jobStatus, tenantID)
	if err != nil {
		return errors.Wrap(err, "failed to record pipeline job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check job record result")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "pipeline connection for tenant %s", tenantID)
	}

	return nil
}
