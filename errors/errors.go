// Package errors provides error handling for adsync.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//   - Sentry integration
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrMissingRefreshToken) {
//	    // handle missing credentials
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Stack trace extraction
var (
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Configuration-problem sentinels. All four are fatal and non-retryable:
// the sync that hit them must not be re-attempted until an operator (or the
// tenant) fixes the underlying configuration.
var (
	// ErrDependencyMissing indicates a required collaborator (credential row,
	// connection record, workspace default) does not exist
	ErrDependencyMissing = New("dependency missing")

	// ErrMissingRefreshToken indicates the stored credential has no refresh token
	ErrMissingRefreshToken = New("missing refresh token")

	// ErrMisconfigured indicates app-level client credentials are absent or invalid
	ErrMisconfigured = New("misconfigured")

	// ErrInvalidCustomerID indicates the customer id contained no digits
	ErrInvalidCustomerID = New("invalid customer id")
)

// Remote-failure sentinels.
var (
	// ErrTransientAPI indicates a retryable remote failure (quota, rate limit,
	// internal error, timeout)
	ErrTransientAPI = New("transient api error")

	// ErrUnknownAPI indicates an unclassified remote failure, treated as
	// non-retryable
	ErrUnknownAPI = New("unknown api error")

	// ErrProvisioning indicates a schema/catalog/connectivity failure during
	// pipeline provisioning. Never partially applied
	ErrProvisioning = New("provisioning error")

	// ErrConflict indicates a resource conflict (e.g., a sync already running).
	// Resolved by job reuse, not surfaced as a failure
	ErrConflict = New("resource conflict")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsConfigurationError reports whether err belongs to the fatal
// configuration-problem family. These never count as transient.
func IsConfigurationError(err error) bool {
	return err != nil && IsAny(err,
		ErrDependencyMissing,
		ErrMissingRefreshToken,
		ErrMisconfigured,
		ErrInvalidCustomerID,
	)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
