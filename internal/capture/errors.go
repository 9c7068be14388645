package capture

import "errors"

var (
	// ErrNotCapturing is returned by CaptureFrame outside the Capturing state.
	ErrNotCapturing = errors.New("capture: not capturing")

	// ErrDevice marks a capture device failure.
	ErrDevice = errors.New("capture: device error")

	// ErrUnsupportedImage marks an upload that cannot be submitted.
	ErrUnsupportedImage = errors.New("capture: unsupported image")

	// ErrNoFrame is returned by a device that has not produced a frame yet.
	ErrNoFrame = errors.New("capture: no frame available")
)
