package stubdetector

import "errors"

// Error constants.
var (
	ErrNoImage  = errors.New("no image supplied")
	ErrBadImage = errors.New("image could not be decoded")
)
