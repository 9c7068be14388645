package replay

import "errors"

// Error constants.
var (
	ErrUnhealthy = errors.New("service unhealthy")
	ErrMismatch  = errors.New("score did not settle to the expected value")
	ErrRejected  = errors.New("results were rejected")
)
