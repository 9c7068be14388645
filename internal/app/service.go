// Package service provides the session controller: it owns score, streak
// and reward history, receives every detection outcome, and republishes a
// simplified state change to a single observer.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/smileboard/internal/adapters/detection"
	eventqueue "github.com/okian/smileboard/internal/adapters/mq/queue"
	"github.com/okian/smileboard/internal/adapters/mq/worker"
	"github.com/okian/smileboard/internal/capture"
	"github.com/okian/smileboard/internal/domain/dedupe"
	"github.com/okian/smileboard/internal/domain/ledger"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/internal/domain/scoring"
	"github.com/okian/smileboard/internal/domain/types"
	"github.com/okian/smileboard/internal/export"
	"github.com/okian/smileboard/pkg/logger"
	"github.com/okian/smileboard/pkg/metrics"
)

// Status messages published to the observer.
const (
	StatusCaptureStarted = "Webcam started - Smile detection active"
	StatusCaptureStopped = "Webcam stopped"
	StatusCaptureFailed  = "Failed to start webcam. Please check your camera."
	StatusNoSmile        = "No smile detected. Keep trying!"
	StatusDiscarded      = "Result discarded: capture was stopped"
	statusSmileFormat    = "Smile detected! +%d points"
	statusFailedPrefix   = "Detection failed: "
)

// defaultDrainWarnAfter is how long Stop waits for the queue before logging
// that it is still draining. Stop keeps waiting after that.
const defaultDrainWarnAfter = 5 * time.Second

// Service is the session controller.
type Service struct {
	mu sync.RWMutex // guards started, queue, worker

	// applyMu serializes applies and the notifications they publish.
	applyMu sync.Mutex

	// stateMu guards everything below it.
	stateMu        sync.RWMutex
	tracker        *scoring.Tracker
	ledger         *ledger.Ledger
	user           string
	captures       int
	uploads        int
	failures       int
	discarded      int
	lastConfidence float64

	deduper  dedupe.Deduper
	capture  *capture.Controller
	exporter *export.Exporter
	observer Observer

	queue  *eventqueue.InMemoryQueue
	worker *worker.InMemoryWorker

	// Configuration
	device           capture.Device
	detector         capture.Detector
	queueSize        int
	dedupeSize       int
	ledgerCapacity   int
	requestTimeout   time.Duration
	clock            func() time.Time
	discardAfterStop bool
	imageOptions     detection.EncodeOptions
	exportDir        string
	drainWarnAfter   time.Duration

	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers the single observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithUser sets the user that tags requests and exports.
func WithUser(user string) Option {
	return func(s *Service) {
		if user != "" {
			s.user = user
		}
	}
}

// WithDevice sets the capture device.
func WithDevice(d capture.Device) Option {
	return func(s *Service) {
		s.device = d
	}
}

// WithDetector sets the detection capability.
func WithDetector(d capture.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

// WithQueueSize sets the capacity of the delivery queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many request ids are remembered for deduplication.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLedgerCapacity sets how many rewards are kept.
func WithLedgerCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ledgerCapacity = n
		}
	}
}

// WithRequestTimeout bounds each detection request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithClock replaces time.Now for reward timestamps and session time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithDiscardAfterStop drops deliveries for requests issued before the most
// recent capture stop. By default such late results are applied.
func WithDiscardAfterStop(discard bool) Option {
	return func(s *Service) {
		s.discardAfterStop = discard
	}
}

// WithImageOptions sets normalization for uploads.
func WithImageOptions(o detection.EncodeOptions) Option {
	return func(s *Service) {
		s.imageOptions = o
	}
}

// WithExportDir sets the directory used by DefaultExportPath.
func WithExportDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.exportDir = dir
		}
	}
}

// WithDrainWarnAfter sets how long Stop waits on the delivery queue before
// warning. Stop never abandons queued deliveries.
func WithDrainWarnAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.drainWarnAfter = d
		}
	}
}

// New constructs a Service. The delivery pipeline runs after Start; before
// that, deliveries are applied on the calling goroutine.
func New(opts ...Option) *Service {
	s := &Service{
		user:           model.DefaultUser,
		queueSize:      256,
		dedupeSize:     1024,
		ledgerCapacity: ledger.DefaultCapacity,
		requestTimeout: capture.DefaultRequestTimeout,
		clock:          time.Now,
		imageOptions:   detection.EncodeOptions{MaxWidth: detection.DefaultMaxWidth, Quality: detection.DefaultJPEGQuality},
		exportDir:      ".",
		drainWarnAfter: defaultDrainWarnAfter,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	if s.observer == nil {
		s.observer = loggingObserver{log: s.logger}
	}

	s.tracker = scoring.NewTracker()
	s.ledger = ledger.New(ledger.WithCapacity(s.ledgerCapacity))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.exporter = export.New(export.WithLogger(s.logger.Named("export")))
	s.capture = capture.New(s.device, s.detector, s,
		capture.WithLogger(s.logger.Named("capture")),
		capture.WithClock(s.clock),
		capture.WithRequestTimeout(s.requestTimeout),
		capture.WithImageOptions(s.imageOptions),
	)

	return s
}

// Start launches the delivery queue and its single worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.detector == nil {
		return ErrNoDetector
	}

	s.logger.Info(ctx, "starting session service...")

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.worker = worker.NewInMemoryWorker(s.queue, s,
		worker.WithLogger(s.logger.Named("worker")),
	)
	// The worker outlives ctx; Stop drains it.
	go s.worker.Run(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "session service started",
		logger.String("user", s.User()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("ledgerCapacity", s.ledgerCapacity),
	)
	return nil
}

// Stop releases the device, waits for in-flight requests, and drains the
// queue. Deliveries arriving afterwards are applied synchronously.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	q, w := s.queue, s.worker
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping session service...")

	s.capture.Stop()
	s.capture.Wait()

	_ = q.Close()
	drainCtx, cancel := context.WithTimeout(ctx, s.drainWarnAfter)
	err := w.Shutdown(drainCtx)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "delivery queue is slow to drain",
			logger.Int("queued", q.Len(ctx)),
			logger.Error(err),
		)
		<-w.Done()
	}

	s.mu.Lock()
	s.queue, s.worker = nil, nil
	s.mu.Unlock()

	s.logger.Info(ctx, "session service stopped")
}

// StartCapture acquires the device. A failure is reported as DeviceError.
func (s *Service) StartCapture(ctx context.Context) bool {
	if !s.capture.Start(ctx) {
		s.reportError(DeviceError, StatusCaptureFailed)
		return false
	}
	s.publishStatus(StatusCaptureStarted)
	return true
}

// StopCapture releases the device. Repeated calls change nothing.
func (s *Service) StopCapture() {
	if s.capture.State() != capture.Capturing {
		return
	}
	s.capture.Stop()
	s.publishStatus(StatusCaptureStopped)
}

// CaptureFrame issues a detection request for the current frame.
func (s *Service) CaptureFrame(ctx context.Context) error {
	if _, err := s.capture.CaptureFrame(ctx, s.User()); err != nil {
		s.reportError(Classify(err), err.Error())
		return err
	}
	s.stateMu.Lock()
	s.captures++
	s.stateMu.Unlock()
	return nil
}

// UploadFile issues a detection request for an image file.
func (s *Service) UploadFile(ctx context.Context, path string) error {
	if _, err := s.capture.SubmitFile(ctx, path, s.User()); err != nil {
		s.reportError(Classify(err), err.Error())
		return err
	}
	s.stateMu.Lock()
	s.uploads++
	s.stateMu.Unlock()
	return nil
}

// Wait blocks until every issued request has been delivered.
func (s *Service) Wait() { s.capture.Wait() }

// OnDetectionResult accepts a raw result that carries no request id.
func (s *Service) OnDetectionResult(ctx context.Context, result model.DetectionResult) {
	now := s.clock()
	s.Deliver(ctx, model.Delivery{
		Source:    model.SourceDirect,
		Epoch:     s.capture.Epoch(),
		Result:    result,
		Issued:    now,
		Delivered: now,
	})
}

// Deliver hands one outcome to the session. It is applied after every
// previously delivered outcome and is never dropped.
func (s *Service) Deliver(ctx context.Context, d model.Delivery) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	q, w := s.queue, s.worker
	s.mu.RUnlock()

	if q != nil {
		// a full queue is counted before waiting for room
		if q.Enqueue(ctx, d) {
			return
		}
		err := q.EnqueueWait(ctx, d)
		if err != nil && !errors.Is(err, eventqueue.ErrClosed) {
			// the caller gave up; earlier deliveries still go first
			err = q.EnqueueWait(context.WithoutCancel(ctx), d)
		}
		if err == nil {
			return
		}
		// closed: let the worker finish what was queued first
		<-w.Done()
		metrics.RecordQueueEnqueueError("sync_apply")
		s.logger.Debug(ctx, "applying delivery synchronously",
			logger.String("request_id", d.RequestID),
			logger.Error(err),
		)
	}
	if err := s.Apply(ctx, d); err != nil {
		s.logger.Warn(ctx, "delivery not applied", logger.String("request_id", d.RequestID), logger.Error(err))
	}
}

// Apply updates score and ledger from d and publishes the resulting state.
// It implements worker.Applier.
func (s *Service) Apply(ctx context.Context, d model.Delivery) error { //nolint:gocritic // hugeParam
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if d.RequestID != "" && s.deduper.SeenAndRecord(ctx, d.RequestID) {
		metrics.RecordDuplicateDelivery()
		s.logger.Debug(ctx, "duplicate delivery skipped", logger.String("request_id", d.RequestID))
		return nil
	}

	if s.discardAfterStop && d.Source != model.SourceDirect && d.Epoch < s.capture.Epoch() {
		metrics.RecordDiscardedDelivery()
		s.stateMu.Lock()
		s.discarded++
		change := s.snapshotLocked(StatusDiscarded)
		s.stateMu.Unlock()
		s.observer.OnStateChanged(change)
		return nil
	}

	if d.Failed() {
		// a failed request may be retried under the same id
		s.forget(ctx, d.RequestID)
		metrics.RecordDetection(metrics.OutcomeFailed)
		s.stateMu.Lock()
		s.failures++
		change := s.snapshotLocked(statusFailedPrefix + d.Err.Error())
		s.stateMu.Unlock()
		metrics.RecordError(ExternalServiceError.String())
		s.observer.OnError(ExternalServiceError, d.Err.Error())
		s.observer.OnStateChanged(change)
		return nil
	}

	s.stateMu.Lock()
	state, err := s.tracker.ApplyResult(d.Result)
	if err != nil {
		s.stateMu.Unlock()
		s.forget(ctx, d.RequestID)
		metrics.RecordDetection(metrics.OutcomeInvalid)
		metrics.RecordError(ValidationError.String())
		s.observer.OnError(ValidationError, err.Error())
		return fmt.Errorf("apply %s: %w", d.RequestID, err)
	}
	entry, recorded := s.ledger.RecordIfEligible(d.Result, s.clock())
	s.lastConfidence = d.Result.Confidence
	ledgerLen := s.ledger.Len()
	s.stateMu.Unlock()

	change := StateChange{Score: state, Confidence: d.Result.Confidence}
	if d.Result.SmileDetected {
		metrics.RecordDetection(metrics.OutcomeSmile)
		metrics.RecordPointsAwarded(d.Result.PointsAwarded)
		change.Status = fmt.Sprintf(statusSmileFormat, d.Result.PointsAwarded)
	} else {
		metrics.RecordDetection(metrics.OutcomeNoSmile)
		change.Status = StatusNoSmile
	}
	if recorded {
		change.LatestReward = &entry
	}
	metrics.UpdateScore(state.TotalScore, state.CurrentStreak)
	metrics.UpdateLedgerSize(ledgerLen)

	s.observer.OnStateChanged(change)
	return nil
}

func (s *Service) forget(ctx context.Context, id string) {
	if id != "" {
		s.deduper.Unrecord(ctx, id)
	}
}

// snapshotLocked builds a StateChange without a reward. stateMu must be held.
func (s *Service) snapshotLocked(status string) StateChange {
	return StateChange{
		Score:      s.tracker.State(),
		Confidence: s.lastConfidence,
		Status:     status,
	}
}

func (s *Service) publishStatus(status string) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.stateMu.RLock()
	change := s.snapshotLocked(status)
	s.stateMu.RUnlock()
	s.observer.OnStateChanged(change)
}

func (s *Service) reportError(kind ErrorKind, message string) {
	metrics.RecordError(kind.String())
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.observer.OnError(kind, message)
}

// Score returns the current score state.
func (s *Service) Score() model.ScoreState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.tracker.State()
}

// Rewards returns the recorded rewards, most recent first.
func (s *Service) Rewards() []model.RewardEntry {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.ledger.Snapshot()
}

// SessionElapsed is the time since capture first started, or zero.
func (s *Service) SessionElapsed() time.Duration { return s.capture.SessionElapsed() }

// CaptureState returns the capture controller state.
func (s *Service) CaptureState() capture.State { return s.capture.State() }

// InFlight returns the number of requests awaiting delivery.
func (s *Service) InFlight() int { return s.capture.InFlight() }

// User returns the session user. It is fixed when the Service is built.
func (s *Service) User() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.user
}

// Analytics summarizes the session.
func (s *Service) Analytics() types.Summary {
	elapsed := s.capture.SessionElapsed()
	state := s.capture.State()

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	score := s.tracker.State()
	return types.Summary{
		User:           s.user,
		TotalScore:     score.TotalScore,
		CurrentStreak:  score.CurrentStreak,
		SessionTime:    types.FormatElapsed(elapsed),
		Rewards:        s.ledger.Len(),
		Captures:       s.captures,
		Uploads:        s.uploads,
		Failures:       s.failures,
		LastConfidence: s.lastConfidence,
		CaptureState:   state.String(),
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	q := s.queue
	s.mu.RUnlock()

	summary := s.Analytics()
	s.stateMu.RLock()
	discarded := s.discarded
	s.stateMu.RUnlock()

	stats := map[string]interface{}{
		"started":        started,
		"user":           summary.User,
		"totalScore":     summary.TotalScore,
		"currentStreak":  summary.CurrentStreak,
		"sessionTime":    summary.SessionTime,
		"rewards":        summary.Rewards,
		"captures":       summary.Captures,
		"uploads":        summary.Uploads,
		"failures":       summary.Failures,
		"discarded":      discarded,
		"lastConfidence": summary.LastConfidence,
		"captureState":   summary.CaptureState,
		"inFlight":       s.capture.InFlight(),
		"queueSize":      s.queueSize,
		"dedupeSize":     s.deduper.Size(),
	}
	if q != nil {
		stats["queueLength"] = q.Len(context.Background())
	}
	return stats
}

// DefaultExportName returns smile_data_<user>.csv.
func (s *Service) DefaultExportName() string {
	return export.DefaultFileName(s.User())
}

// DefaultExportPath joins the export directory and DefaultExportName.
func (s *Service) DefaultExportPath() string {
	return filepath.Join(s.exportDir, s.DefaultExportName())
}

// Export writes the rewards and totals as CSV. Failures are reported as IoError.
func (s *Service) Export(ctx context.Context, path string, overwrite bool) error {
	if path == "" {
		path = s.DefaultExportPath()
	}
	s.stateMu.RLock()
	rec := export.Record{User: s.user, Entries: s.ledger.Snapshot(), Score: s.tracker.State()}
	s.stateMu.RUnlock()

	if err := s.exporter.Export(ctx, path, rec, overwrite); err != nil {
		s.reportError(IoError, err.Error())
		return err
	}
	return nil
}

// Reset clears score, streak and rewards.
func (s *Service) Reset() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.tracker.Reset()
	s.ledger.Reset()
	s.lastConfidence = 0
	metrics.UpdateScore(0, 0)
	metrics.UpdateLedgerSize(0)
}
