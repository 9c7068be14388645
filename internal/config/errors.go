package config

import (
	"errors"
)

// Sentinel errors for configuration; callers match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
