// Package replay pushes generated detection results into a running session
// through its status surface and checks that the score settles to the sum
// of the smiling points, each request id counted once.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/okian/smileboard/pkg/logger"
)

// Runner constants.
const (
	WorkerChannelMultiplier = 2
	DefaultSettleTimeout    = 10 * time.Second
	pollInterval            = 50 * time.Millisecond
	outputFilePermission    = 0o600
)

// Run executes a complete replay and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	c := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("results", cfg.NumResults),
		logger.Int("workers", cfg.Workers),
		logger.Float64("duplicateRate", cfg.DuplicateRate))

	// Step 1: health
	var health map[string]string
	code, err := c.get(ctx, "/healthz", &health)
	if err != nil || code != http.StatusOK {
		return stats, fmt.Errorf("%w: status %d: %v", ErrUnhealthy, code, err)
	}

	// Step 2: baseline
	before, err := c.analytics(ctx)
	if err != nil {
		return stats, fmt.Errorf("baseline: %w", err)
	}
	stats.BaselineScore = before.TotalScore

	// Step 3: generate
	results := Generate(cfg.NumResults, cfg.SmileRatio, cfg.DuplicateRate, nil)
	stats.Generated = len(results)
	stats.ExpectedDelta = ExpectedDelta(results)
	if cfg.OutputFile != "" {
		if err := saveResults(cfg.OutputFile, results); err != nil {
			log.Warn(ctx, "failed to save results", logger.Error(err))
		}
	}

	// Step 4: submit
	submit(ctx, cfg, c, results, stats)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d of %d", ErrRejected, stats.Failed, stats.Submitted)
	}

	// Step 5: wait for the score to settle
	want := stats.BaselineScore + stats.ExpectedDelta
	deadline := time.Now().Add(cfg.SettleTimeout)
	for {
		after, err := c.analytics(ctx)
		if err == nil {
			stats.FinalScore = after.TotalScore
			if after.TotalScore == want {
				break
			}
		}
		if time.Now().After(deadline) {
			return finish(stats), fmt.Errorf("%w: want %d, got %d", ErrMismatch, want, stats.FinalScore)
		}
		select {
		case <-ctx.Done():
			return finish(stats), ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	finish(stats)
	log.Info(ctx, "replay completed",
		logger.Int("submitted", stats.Submitted),
		logger.Int("expectedDelta", stats.ExpectedDelta),
		logger.Int("finalScore", stats.FinalScore),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func finish(stats *Stats) *Stats {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	return stats
}

func saveResults(path string, results []Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, outputFilePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
