package syncstate

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/errors"
)

// These tests drive the CAS retry loop with a mocked driver, since a real
// SQLite database cannot be made to lose the version race on demand.

var stateColumns = []string{
	"tenant_id", "account_id", "desired_engine", "effective_engine", "fallback_active",
	"consecutive_sdk_failures", "consecutive_parity_failures",
	"last_sync_success_at", "last_sync_error",
	"parity_state", "last_parity_passed_at",
	"version", "created_at", "updated_at",
}

func stateRow(version int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(stateColumns).AddRow(
		"t1", "1234567890", string(EngineSDK), string(EngineSDK), 0,
		0, 0,
		nil, "",
		string(ParityUnknown), nil,
		version, now, now,
	)
}

func TestUpdateRetriesOnLostVersionRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// First round: read version 3, concurrent writer wins, 0 rows updated
	mock.ExpectQuery("SELECT(.|\n)*FROM sync_state").WillReturnRows(stateRow(3))
	mock.ExpectExec("UPDATE sync_state").WillReturnResult(sqlmock.NewResult(0, 0))

	// Second round: reread version 4, CAS succeeds
	mock.ExpectQuery("SELECT(.|\n)*FROM sync_state").WillReturnRows(stateRow(4))
	mock.ExpectExec("UPDATE sync_state").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	state, err := store.Update(context.Background(), "t1", "1234567890", func(s *State) error {
		s.LastSyncError = "probe"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGivesUpAfterRepeatedRaces(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < casRetries; i++ {
		mock.ExpectQuery("SELECT(.|\n)*FROM sync_state").WillReturnRows(stateRow(i))
		mock.ExpectExec("UPDATE sync_state").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	store := NewStore(db)
	_, err = store.Update(context.Background(), "t1", "1234567890", func(s *State) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAS retries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT(.|\n)*FROM sync_state").WillReturnError(errors.New("disk I/O error"))

	store := NewStore(db)
	_, err = store.Get(context.Background(), "t1", "1234567890")
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
