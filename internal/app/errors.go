package service

import "errors"

var (
	// ErrNoDetector is returned by Start when no detector was configured.
	ErrNoDetector = errors.New("service: no detector configured")
)
