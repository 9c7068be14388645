// Command replay-results pushes generated detection results into a running
// smileboard session and verifies the score it settles on.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/smileboard/internal/replay"
	"github.com/okian/smileboard/pkg/logger"
)

const (
	defaultNumResults = 1000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 10 * time.Second
	runTimeout        = 5 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9090", "Base URL of the session status surface")
		numResults = flag.Int("results", defaultNumResults, "Number of results to generate")
		smileRatio = flag.Float64("smiles", 0.6, "Share of generated results that are smiles")
		dupRate    = flag.Float64("duplicates", 0.1, "Share of results submitted twice")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", replay.DefaultSettleTimeout, "How long to wait for the score to settle")
		output     = flag.String("output", "", "Write generated results to this JSON file")
		verbose    = flag.Bool("verbose", false, "Log every submission")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	_, err := replay.Run(ctx, &replay.Config{
		BaseURL:       *baseURL,
		NumResults:    *numResults,
		SmileRatio:    *smileRatio,
		DuplicateRate: *dupRate,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		OutputFile:    *output,
		Verbose:       *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
