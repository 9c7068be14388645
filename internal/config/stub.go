package config

import "fmt"

// StubConfig configures cmd/stub-detector.
type StubConfig struct {
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
	Addr            string  `koanf:"addr"`
	Probability     float64 `koanf:"probability"`
	PointsPerSmile  int     `koanf:"points_per_smile"`
	DebounceMS      int     `koanf:"debounce_ms"`
	RewardThreshold int     `koanf:"reward_threshold"`
}

// NewStub creates a StubConfig populated with defaults.
func NewStub() *StubConfig {
	return &StubConfig{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":8000",
		Probability:     0.5,
		PointsPerSmile:  10,
		DebounceMS:      2000,
		RewardThreshold: 100,
	}
}

// Validate checks value ranges.
func (c *StubConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.Probability < 0 || c.Probability > 1 {
		return fmt.Errorf("%w: probability must be within 0..1", ErrInvalidConfig)
	}
	if c.PointsPerSmile <= 0 {
		return fmt.Errorf("%w: points_per_smile must be positive", ErrInvalidConfig)
	}
	if c.RewardThreshold <= 0 {
		return fmt.Errorf("%w: reward_threshold must be positive", ErrInvalidConfig)
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("%w: debounce_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}
