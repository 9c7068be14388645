// Command stub-detector runs a local stand-in for the smile detection
// service so the client can be exercised without the real backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/smileboard/internal/config"
	"github.com/okian/smileboard/internal/stubdetector"
	"github.com/okian/smileboard/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadStub(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("stub-detector")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	det := stubdetector.New(
		stubdetector.WithProbability(cfg.Probability),
		stubdetector.WithPointsPerSmile(cfg.PointsPerSmile),
		stubdetector.WithDebounce(time.Duration(cfg.DebounceMS)*time.Millisecond),
		stubdetector.WithRewardThreshold(cfg.RewardThreshold),
		stubdetector.WithLogger(log),
	)

	mux := http.NewServeMux()
	stubdetector.NewHandler(det, log).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		log.Info(ctx, "starting stub detector", logger.String("addr", cfg.Addr), logger.Float64("probability", cfg.Probability))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "stub detector failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "stub detector stopped")
}
