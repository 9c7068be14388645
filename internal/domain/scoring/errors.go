package scoring

import "errors"

// ErrValidation marks a malformed detection result.
var ErrValidation = errors.New("invalid detection result")
