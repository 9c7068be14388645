// Package config defines client configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config holding every default.
//   - Load layers an optional YAML file and SMILE_* environment variables on top.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Detector transports.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Capture devices.
const (
	DeviceWebcam = "webcam"
	DeviceStatic = "static"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// User tags outbound detection requests and export filenames.
	User string `koanf:"user"`

	HTTP     HTTPConfig     `koanf:"http"`
	Detector DetectorConfig `koanf:"detector"`
	Capture  CaptureConfig  `koanf:"capture"`
	Image    ImageConfig    `koanf:"image"`
	Session  SessionConfig  `koanf:"session"`
	Export   ExportConfig   `koanf:"export"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// HTTPConfig configures the local status surface. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// DetectorConfig points at the remote smile detection service.
type DetectorConfig struct {
	Transport string `koanf:"transport"`
	BaseURL   string `koanf:"base_url"`
	WSURL     string `koanf:"ws_url"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// CaptureConfig selects and shapes the capture device.
type CaptureConfig struct {
	Device      string `koanf:"device"`
	DeviceName  string `koanf:"device_name"`
	Width       int    `koanf:"width"`
	Height      int    `koanf:"height"`
	FPS         int    `koanf:"fps"`
	StaticImage string `koanf:"static_image"`
}

// ImageConfig controls normalization before submission.
type ImageConfig struct {
	MaxWidth    int `koanf:"max_width"`
	JPEGQuality int `koanf:"jpeg_quality"`
}

// SessionConfig sizes the session internals.
type SessionConfig struct {
	QueueSize        int  `koanf:"queue_size"`
	DedupeSize       int  `koanf:"dedupe_size"`
	LedgerCapacity   int  `koanf:"ledger_capacity"`
	DiscardAfterStop bool `koanf:"discard_after_stop"`
}

// ExportConfig sets where exports land when no path is given.
type ExportConfig struct {
	Dir string `koanf:"dir"`
}

// MetricsConfig tunes the prometheus collectors. Empty buckets keep the
// built-in latency buckets.
type MetricsConfig struct {
	LatencyBucketsMS []float64 `koanf:"latency_buckets_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		User:      "guest",
		HTTP:      HTTPConfig{Addr: ""},
		Detector: DetectorConfig{
			Transport: TransportHTTP,
			BaseURL:   "http://localhost:8000",
			WSURL:     "ws://localhost:8000/ws",
			TimeoutMS: 10_000,
		},
		Capture: CaptureConfig{
			Device:     DeviceWebcam,
			DeviceName: "/dev/video0",
			Width:      640,
			Height:     480,
			FPS:        15,
		},
		Image: ImageConfig{
			MaxWidth:    1280,
			JPEGQuality: 85,
		},
		Session: SessionConfig{
			QueueSize:      256,
			DedupeSize:     1024,
			LedgerCapacity: 10,
		},
		Export: ExportConfig{Dir: "."},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("%w: user must not be empty", ErrInvalidConfig)
	}
	switch c.Detector.Transport {
	case TransportHTTP:
		if _, err := url.ParseRequestURI(c.Detector.BaseURL); err != nil {
			return fmt.Errorf("%w: detector.base_url: %v", ErrInvalidConfig, err)
		}
	case TransportWebSocket:
		u, err := url.ParseRequestURI(c.Detector.WSURL)
		if err != nil {
			return fmt.Errorf("%w: detector.ws_url: %v", ErrInvalidConfig, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%w: detector.ws_url must use ws or wss", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown detector.transport %q", ErrInvalidConfig, c.Detector.Transport)
	}
	if c.Detector.TimeoutMS <= 0 {
		return fmt.Errorf("%w: detector.timeout_ms must be positive", ErrInvalidConfig)
	}
	switch c.Capture.Device {
	case DeviceWebcam:
		if c.Capture.DeviceName == "" {
			return fmt.Errorf("%w: capture.device_name must not be empty", ErrInvalidConfig)
		}
	case DeviceStatic:
		if c.Capture.StaticImage == "" {
			return fmt.Errorf("%w: capture.static_image required for static device", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown capture.device %q", ErrInvalidConfig, c.Capture.Device)
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("%w: image.jpeg_quality must be within 1..100", ErrInvalidConfig)
	}
	if c.Session.LedgerCapacity <= 0 || c.Session.QueueSize <= 0 {
		return fmt.Errorf("%w: session sizes must be positive", ErrInvalidConfig)
	}
	for i, b := range c.Metrics.LatencyBucketsMS {
		if b <= 0 || (i > 0 && b <= c.Metrics.LatencyBucketsMS[i-1]) {
			return fmt.Errorf("%w: metrics.latency_buckets_ms must be positive and increasing", ErrInvalidConfig)
		}
	}
	return nil
}
