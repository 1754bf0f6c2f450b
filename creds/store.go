package creds

import (
	"context"
	"database/sql"

	"github.com/arcline/adsync/errors"
)

// Store handles persistence of credentials
type Store struct {
	db *sql.DB
}

// NewStore creates a new credential store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the credential for a tenant account
func (s *Store) Get(ctx context.Context, tenantID, accountID string) (*Credential, error) {
	query := `
		SELECT id, tenant_id, account_id,
			COALESCE(refresh_token_enc, ''), COALESCE(access_token_enc, ''),
			token_status, updated_at
		FROM credentials
		WHERE tenant_id = ? AND account_id = ?
	`

	var cred Credential
	err := s.db.QueryRowContext(ctx, query, tenantID, accountID).Scan(
		&cred.ID,
		&cred.TenantID,
		&cred.AccountID,
		&cred.RefreshTokenEnc,
		&cred.AccessTokenEnc,
		&cred.TokenStatus,
		&cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "credential for %s/%s", tenantID, accountID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get credential")
	}

	return &cred, nil
}

// Upsert inserts or replaces the credential for a tenant account
func (s *Store) Upsert(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (id, tenant_id, account_id, refresh_token_enc, access_token_enc, token_status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, account_id) DO UPDATE SET
			refresh_token_enc = excluded.refresh_token_enc,
			access_token_enc = excluded.access_token_enc,
			token_status = excluded.token_status,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.TenantID,
		cred.AccountID,
		cred.RefreshTokenEnc,
		cred.AccessTokenEnc,
		cred.TokenStatus,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert credential")
	}

	return nil
}

// MarkReauthRequired flags the credential after a fatal auth failure.
// The dispatcher calls this when token refresh is rejected upstream.
func (s *Store) MarkReauthRequired(ctx context.Context, tenantID, accountID string) error {
	query := `
		UPDATE credentials
		SET token_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND account_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, TokenReauthRequired, tenantID, accountID)
	if err != nil {
		return errors.Wrap(err, "failed to mark credential for reauth")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "credential for %s/%s", tenantID, accountID)
	}

	return nil
}
