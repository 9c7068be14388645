package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// newKind tags kind with the failing operation.
func newKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// wrapKind tags kind and cause with the failing operation.
func wrapKind(op string, kind, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}
