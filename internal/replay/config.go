package replay

import (
	"time"

	"github.com/okian/smileboard/internal/domain/model"
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL       string        // Base URL of the status surface
	NumResults    int           // Number of results to generate
	SmileRatio    float64       // Share of results that are smiles
	DuplicateRate float64       // Share of results submitted twice
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the score to settle
	OutputFile    string        // Optional JSON dump of generated results
	Verbose       bool          // Log every submission
}

// Result is one body posted to /results.
type Result struct {
	RequestID string `json:"request_id"`
	model.DetectionResult
	// Duplicate marks results that are posted twice.
	Duplicate bool `json:"-"`
}

// AckResponse is the body returned by POST /results.
type AckResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// Stats holds run statistics.
type Stats struct {
	Generated     int
	Submitted     int
	Accepted      int
	Failed        int
	ExpectedDelta int
	BaselineScore int
	FinalScore    int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
