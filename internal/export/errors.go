package export

import (
	"errors"
	"fmt"
)

var (
	// ErrIO marks every export failure.
	ErrIO = errors.New("export: io error")

	// ErrExists is returned when the destination exists and overwrite was not requested.
	ErrExists = fmt.Errorf("%w: destination exists", ErrIO)
)
