package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrQuotaExhausted     = errors.New("no more reloads available")
	ErrNothingAvailable   = errors.New("no queries available")
	ErrNoValidQueries     = errors.New("no valid queries found")
	ErrNoTimeBasedQueries = errors.New("no time-based queries found for this dashboard")
	ErrSourceUnreachable  = errors.New("external source unreachable")
	ErrUpstreamFailure    = errors.New("upstream service failure")
	ErrUnsupportedDialect = errors.New("unsupported dialect")
)

// UpstreamError describes a failed call to the generation or rewrite service.
// StatusCode is zero when the request never produced an HTTP response.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed", e.Service)
}

// Unwrap lets errors.Is match both ErrUpstreamFailure and the transport cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamFailure, e.Err}
	}
	return []error{ErrUpstreamFailure}
}

// IsRetryable reports connection-level failures. A service that answered,
// with any status, is never retried.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode == 0 && e.Err != nil
}
