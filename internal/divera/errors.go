package divera

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAuth        = errors.New("divera: access key rejected")
	ErrConnection  = errors.New("divera: host unreachable or transport failure")
	ErrUpstream    = errors.New("divera: upstream error")
	ErrBadResponse = errors.New("divera: invalid response format or malformed data")

	// ErrStatusNotFound is returned when a status name cannot be resolved
	// against the unit's status plan.
	ErrStatusNotFound = errors.New("divera: status name not found")
)

// APIError is a rich error type that wraps the sentinel errors with context.
// The request URL is stored without query parameters so the access key can
// never leak through error messages.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	URL       string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("divera: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
