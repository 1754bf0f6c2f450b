// Package creds holds per-account ad platform credentials. The sync core
// treats this as a read-mostly boundary: it reads tokens and flags reauth,
// but token acquisition and encryption live outside this system.
package creds

import "time"

// TokenStatus describes the health of a stored refresh token
type TokenStatus string

const (
	TokenValid          TokenStatus = "VALID"
	TokenExpiring       TokenStatus = "EXPIRING"
	TokenInvalid        TokenStatus = "INVALID"
	TokenReauthRequired TokenStatus = "REAUTH_REQUIRED"
)

// Credential is a tenant account's stored OAuth material
type Credential struct {
	ID              string
	TenantID        string
	AccountID       string
	RefreshTokenEnc string
	AccessTokenEnc  string
	TokenStatus     TokenStatus
	UpdatedAt       time.Time
}

// NeedsReauth reports whether the credential cannot be used without the
// tenant re-authorizing
func (c *Credential) NeedsReauth() bool {
	return c.TokenStatus == TokenInvalid || c.TokenStatus == TokenReauthRequired
}

// TokenDecryptor decrypts stored token material. Implementations wrap the
// deployment's KMS; tests use NoopDecryptor.
type TokenDecryptor interface {
	DecryptRefreshToken(enc string) (string, error)
	DecryptAccessToken(enc string) (string, error)
}

// NoopDecryptor returns ciphertext unchanged. For tests and local
// development where tokens are stored in the clear.
type NoopDecryptor struct{}

func (NoopDecryptor) DecryptRefreshToken(enc string) (string, error) { return enc, nil }
func (NoopDecryptor) DecryptAccessToken(enc string) (string, error)  { return enc, nil }
