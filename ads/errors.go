package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/arcline/adsync/errors"
)

// Classification buckets a remote failure
type Classification string

const (
	ClassTransient Classification = "transient"
	ClassAuth      Classification = "auth"
	ClassInvalid   Classification = "invalid"
	ClassUnknown   Classification = "unknown"
)

// Retryable remote error codes: the quota, rate-limit and internal-error
// family. Everything outside this set is conservatively non-retryable.
var retryableErrorCodes = map[int]bool{
	2:  true, // INTERNAL
	4:  true, // DEADLINE_EXCEEDED
	8:  true, // RESOURCE_EXHAUSTED
	13: true, // INTERNAL (transport)
	14: true, // UNAVAILABLE
}

// transientHTTPStatuses per standard backoff guidance
var transientHTTPStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// APIError wraps every remote failure with a uniform classification. The
// Retryable flag is the single signal callers act on; they must not
// reinterpret status codes or messages themselves.
type APIError struct {
	Classification Classification
	StatusCode     int
	Code           int
	Message        string
	RequestID      string
	Retryable      bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ads api error (%s, status=%d, code=%d, request_id=%s): %s",
		e.Classification, e.StatusCode, e.Code, e.RequestID, e.Message)
}

// Unwrap maps the classification onto the error taxonomy sentinels so
// errors.Is works across package boundaries.
func (e *APIError) Unwrap() error {
	if e.Retryable {
		return errors.ErrTransientAPI
	}
	return errors.ErrUnknownAPI
}

// remoteError is the error body shape the reporting API returns
type remoteError struct {
	Error struct {
		Code      int    `json:"code"`
		Status    string `json:"status"`
		Message   string `json:"message"`
		Transient bool   `json:"transient"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

// ClassifyResponse builds an APIError from a non-2xx response body.
// Retryable is true only when the HTTP status is transient, the remote
// explicitly marks the error transient, or the numeric error code is in
// the retryable set.
func ClassifyResponse(statusCode int, body []byte, requestID string) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		RequestID:  requestID,
		Message:    string(body),
	}

	var remote remoteError
	if err := json.Unmarshal(body, &remote); err == nil && remote.Error.Message != "" {
		apiErr.Code = remote.Error.Code
		apiErr.Message = remote.Error.Message
		if remote.Error.RequestID != "" {
			apiErr.RequestID = remote.Error.RequestID
		}
	}

	switch {
	case transientHTTPStatuses[statusCode]:
		apiErr.Classification = ClassTransient
		apiErr.Retryable = true
	case remote.Error.Transient:
		apiErr.Classification = ClassTransient
		apiErr.Retryable = true
	case retryableErrorCodes[apiErr.Code]:
		apiErr.Classification = ClassTransient
		apiErr.Retryable = true
	case statusCode == 401 || statusCode == 403:
		apiErr.Classification = ClassAuth
	case statusCode >= 400 && statusCode < 500:
		apiErr.Classification = ClassInvalid
	default:
		apiErr.Classification = ClassUnknown
	}

	return apiErr
}

// ClassifyTransportError wraps a request-level failure (no response).
// Timeouts classify transient; everything else is unknown and
// non-retryable.
func ClassifyTransportError(err error) *APIError {
	apiErr := &APIError{
		Message:        err.Error(),
		Classification: ClassUnknown,
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		apiErr.Classification = ClassTransient
		apiErr.Retryable = true
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		apiErr.Classification = ClassTransient
		apiErr.Retryable = true
	}

	return apiErr
}

// IsRetryable reports whether err is an APIError with Retryable set
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// IsAuthError reports whether err is an APIError classified as an
// authentication failure
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Classification == ClassAuth
	}
	return false
}
