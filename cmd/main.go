// Command smileboard is a headless console client for a smile detection
// reward session.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/smileboard/internal/adapters/detection"
	"github.com/okian/smileboard/internal/adapters/http/api"
	"github.com/okian/smileboard/internal/adapters/http/swagger"
	service "github.com/okian/smileboard/internal/app"
	"github.com/okian/smileboard/internal/capture"
	"github.com/okian/smileboard/internal/config"
	"github.com/okian/smileboard/pkg/logger"
	"github.com/okian/smileboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 10 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	os.Exit(run())
}

func run() int {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	// Logs go to stderr so they do not interleave with console output.
	if err := logger.Init(logger.WithOutput(os.Stderr), logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	configureMetrics(cfg)

	det, closeDetector := newDetector(cfg, log)
	defer closeDetector()

	con := newConsole(os.Stdin, os.Stdout)
	svc := newService(cfg, det, newDevice(cfg, log), con, log)
	con.svc = svc

	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start session", logger.Error(err))
		return 1
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := startStatusServer(ctx, cfg, svc, log)

	con.Run(ctx)
	stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "status server shutdown failed", logger.Error(err))
		}
	}
	log.Info(ctx, "session closed")
	return 0
}

// configureMetrics labels every collector with the session user.
func configureMetrics(cfg *config.Config) {
	metrics.Configure(
		metrics.WithConstLabels(map[string]string{"user": cfg.User}),
		metrics.WithHistogramBuckets(cfg.Metrics.LatencyBucketsMS),
	)
}

// newDetector builds the configured detection transport. The returned func
// releases it.
func newDetector(cfg *config.Config, log logger.Logger) (capture.Detector, func()) {
	timeout := time.Duration(cfg.Detector.TimeoutMS) * time.Millisecond
	if cfg.Detector.Transport == config.TransportWebSocket {
		ws := detection.NewWSClient(cfg.Detector.WSURL,
			detection.WithWSLogger(log.Named("detector")),
		)
		return ws, func() { _ = ws.Close() }
	}
	return detection.NewHTTPClient(cfg.Detector.BaseURL,
		detection.WithTimeout(timeout),
		detection.WithHTTPLogger(log.Named("detector")),
	), func() {}
}

// newDevice builds the configured capture device.
func newDevice(cfg *config.Config, log logger.Logger) capture.Device {
	enc := imageOptions(cfg)
	if cfg.Capture.Device == config.DeviceStatic {
		return capture.NewStaticFileDevice(cfg.Capture.StaticImage, enc)
	}
	return capture.NewFFmpegWebcam(cfg.Capture.DeviceName, cfg.Capture.Width, cfg.Capture.Height, cfg.Capture.FPS, enc, log.Named("webcam"))
}

func imageOptions(cfg *config.Config) detection.EncodeOptions {
	return detection.EncodeOptions{MaxWidth: cfg.Image.MaxWidth, Quality: cfg.Image.JPEGQuality}
}

func newService(cfg *config.Config, det capture.Detector, dev capture.Device, obs service.Observer, log logger.Logger) *service.Service {
	return service.New(
		service.WithLogger(log.Named("session")),
		service.WithObserver(obs),
		service.WithUser(cfg.User),
		service.WithDetector(det),
		service.WithDevice(dev),
		service.WithQueueSize(cfg.Session.QueueSize),
		service.WithDedupeSize(cfg.Session.DedupeSize),
		service.WithLedgerCapacity(cfg.Session.LedgerCapacity),
		service.WithDiscardAfterStop(cfg.Session.DiscardAfterStop),
		service.WithRequestTimeout(time.Duration(cfg.Detector.TimeoutMS)*time.Millisecond),
		service.WithImageOptions(imageOptions(cfg)),
		service.WithExportDir(cfg.Export.Dir),
	)
}

// newStatusMux registers the status surface and its docs.
func newStatusMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.Session.LedgerCapacity).Register(ctx, mux)
	return mux
}

// startStatusServer serves the status surface when http.addr is set.
func startStatusServer(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) *http.Server {
	if cfg.HTTP.Addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newStatusMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting status server", logger.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "status server failed", logger.Error(err))
		}
	}()
	return srv
}

// startSystemMetricsUpdater periodically refreshes runtime gauges.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
