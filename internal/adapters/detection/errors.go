package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for detection requests.
var (
	// ErrExternalService marks any failed request to the detection service.
	ErrExternalService = errors.New("detection service error")

	// ErrImage marks an image that cannot be submitted (bad extension or undecodable data).
	ErrImage = errors.New("unsupported image")

	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("detection client closed")
)

// APIError is a non-2xx response from the detection service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("detection api: status %d: %s", e.StatusCode, e.Message)
}

// IsServerError reports a 5xx response.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// serviceError wraps err so it matches ErrExternalService.
func serviceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, op, err)
}
