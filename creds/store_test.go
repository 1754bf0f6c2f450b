package creds

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/errors"
	adsynctest "github.com/arcline/adsync/internal/testing"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert and get round-trip", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		cred := &Credential{
			ID:              uuid.New().String(),
			TenantID:        "tenant-1",
			AccountID:       "1234567890",
			RefreshTokenEnc: "enc-refresh",
			TokenStatus:     TokenValid,
		}
		require.NoError(t, store.Upsert(ctx, cred))

		got, err := store.Get(ctx, "tenant-1", "1234567890")
		require.NoError(t, err)
		assert.Equal(t, cred.ID, got.ID)
		assert.Equal(t, "enc-refresh", got.RefreshTokenEnc)
		assert.Equal(t, TokenValid, got.TokenStatus)
		assert.False(t, got.NeedsReauth())
	})

	t.Run("get returns ErrNotFound for unknown account", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		_, err := store.Get(ctx, "tenant-1", "missing")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("upsert replaces existing credential", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		cred := &Credential{
			ID:              uuid.New().String(),
			TenantID:        "tenant-1",
			AccountID:       "1234567890",
			RefreshTokenEnc: "old",
			TokenStatus:     TokenValid,
		}
		require.NoError(t, store.Upsert(ctx, cred))

		cred.RefreshTokenEnc = "new"
		cred.TokenStatus = TokenExpiring
		require.NoError(t, store.Upsert(ctx, cred))

		got, err := store.Get(ctx, "tenant-1", "1234567890")
		require.NoError(t, err)
		assert.Equal(t, "new", got.RefreshTokenEnc)
		assert.Equal(t, TokenExpiring, got.TokenStatus)
	})

	t.Run("mark reauth required", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		cred := &Credential{
			ID:          uuid.New().String(),
			TenantID:    "tenant-1",
			AccountID:   "1234567890",
			TokenStatus: TokenValid,
		}
		require.NoError(t, store.Upsert(ctx, cred))

		require.NoError(t, store.MarkReauthRequired(ctx, "tenant-1", "1234567890"))

		got, err := store.Get(ctx, "tenant-1", "1234567890")
		require.NoError(t, err)
		assert.Equal(t, TokenReauthRequired, got.TokenStatus)
		assert.True(t, got.NeedsReauth())
	})

	t.Run("mark reauth on missing credential errors", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		err := store.MarkReauthRequired(ctx, "tenant-1", "missing")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestNoopDecryptor(t *testing.T) {
	d := NoopDecryptor{}

	refresh, err := d.DecryptRefreshToken("cipher")
	require.NoError(t, err)
	assert.Equal(t, "cipher", refresh)

	access, err := d.DecryptAccessToken("")
	require.NoError(t, err)
	assert.Equal(t, "", access)
}
