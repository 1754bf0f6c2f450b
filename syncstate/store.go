package syncstate

import (
	"context"
	"database/sql"

	"github.com/arcline/adsync/errors"
)

// casRetries bounds the optimistic-concurrency retry loop in Update
const casRetries = 5

// Store persists sync state with optimistic concurrency. The version
// column makes every read-modify-write a compare-and-swap, so two
// concurrent triggers for the same account cannot interleave.
type Store struct {
	db *sql.DB
}

// NewStore creates a new sync state store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `
	tenant_id, account_id, desired_engine, effective_engine, fallback_active,
	consecutive_sdk_failures, consecutive_parity_failures,
	last_sync_success_at, COALESCE(last_sync_error, ''),
	parity_state, last_parity_passed_at,
	version, created_at, updated_at`

func scanState(row *sql.Row) (*State, error) {
	var s State
	var lastSuccess, lastParity sql.NullTime
	var fallback int

	err := row.Scan(
		&s.TenantID,
		&s.AccountID,
		&s.DesiredEngine,
		&s.EffectiveEngine,
		&fallback,
		&s.ConsecutiveSDKFailures,
		&s.ConsecutiveParityFailures,
		&lastSuccess,
		&s.LastSyncError,
		&s.ParityState,
		&lastParity,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.FallbackActive = fallback != 0
	if lastSuccess.Valid {
		s.LastSyncSuccessAt = &lastSuccess.Time
	}
	if lastParity.Valid {
		s.LastParityPassedAt = &lastParity.Time
	}

	return &s, nil
}

// Get returns the state for a tenant account
func (s *Store) Get(ctx context.Context, tenantID, accountID string) (*State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sync_state WHERE tenant_id = ? AND account_id = ?`,
		tenantID, accountID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "sync state for %s/%s", tenantID, accountID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sync state")
	}

	return state, nil
}

// GetOrCreate returns the state for a tenant account, lazily creating the
// initial record on first touch. Concurrent creators converge on the one
// row the primary key allows.
func (s *Store) GetOrCreate(ctx context.Context, tenantID, accountID string) (*State, error) {
	state, err := s.Get(ctx, tenantID, accountID)
	if err == nil {
		return state, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}

	fresh := NewState(tenantID, accountID)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_state (tenant_id, account_id, desired_engine, effective_engine, parity_state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, account_id) DO NOTHING
	`, tenantID, accountID, fresh.DesiredEngine, fresh.EffectiveEngine, fresh.ParityState)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sync state")
	}

	return s.Get(ctx, tenantID, accountID)
}

// Update applies fn to the current state inside a read-modify-write with
// version compare-and-swap, retrying a bounded number of times when a
// concurrent writer got there first.
func (s *Store) Update(ctx context.Context, tenantID, accountID string, fn func(*State) error) (*State, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		state, err := s.GetOrCreate(ctx, tenantID, accountID)
		if err != nil {
			return nil, err
		}

		readVersion := state.Version
		if err := fn(state); err != nil {
			return nil, err
		}

		if err := validate(state); err != nil {
			return nil, err
		}

		result, err := s.db.ExecContext(ctx, `
			UPDATE sync_state SET
				desired_engine = ?,
				effective_engine = ?,
				fallback_active = ?,
				consecutive_sdk_failures = ?,
				consecutive_parity_failures = ?,
				last_sync_success_at = ?,
				last_sync_error = ?,
				parity_state = ?,
				last_parity_passed_at = ?,
				version = version + 1,
				updated_at = CURRENT_TIMESTAMP
			WHERE tenant_id = ? AND account_id = ? AND version = ?
		`,
			state.DesiredEngine,
			state.EffectiveEngine,
			boolToInt(state.FallbackActive),
			state.ConsecutiveSDKFailures,
			state.ConsecutiveParityFailures,
			state.LastSyncSuccessAt,
			state.LastSyncError,
			state.ParityState,
			state.LastParityPassedAt,
			tenantID, accountID, readVersion,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to update sync state")
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to check update result")
		}
		if rows == 1 {
			state.Version = readVersion + 1
			return state, nil
		}
		// Lost the race, reread and retry
	}

	return nil, errors.Newf("sync state update for %s/%s exceeded %d CAS retries", tenantID, accountID, casRetries)
}

// validate enforces the fallback invariant before any write
func validate(s *State) error {
	if s.FallbackActive && (s.EffectiveEngine != EnginePipeline || s.DesiredEngine != EngineSDK) {
		return errors.AssertionFailedf(
			"fallback invariant violated for %s/%s: effective=%s desired=%s",
			s.TenantID, s.AccountID, s.EffectiveEngine, s.DesiredEngine)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
