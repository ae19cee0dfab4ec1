package oddsapi

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for HTTP-level failure classes. Callers use errors.Is to
// pick the credential-pool reaction; anything not matching these is treated
// as transient.
var (
	// ErrQuotaExceeded means the credential's request quota is spent.
	ErrQuotaExceeded = errors.New("oddsapi: quota exceeded")

	// ErrAuthRejected means the provider rejected the credential itself.
	ErrAuthRejected = errors.New("oddsapi: authentication rejected")
)

// APIError is a non-200 provider response. It wraps one of the sentinel
// errors above when the status is classifiable, and carries the reset time
// when the provider supplied one.
type APIError struct {
	StatusCode int
	Body       string
	ResetAt    time.Time

	class error
}

func (e *APIError) Error() string {
	if e.class != nil {
		return fmt.Sprintf("%v (status %d): %s", e.class, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("oddsapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// ResetTime extracts the provider-supplied quota reset time from an error
// chain, or the zero time when absent.
func ResetTime(err error) time.Time {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ResetAt
	}
	return time.Time{}
}
