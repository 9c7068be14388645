// Package capture owns the capture device and issues detection requests.
//
// A Controller moves between Idle, Capturing and Stopped any number of times.
// Every CaptureFrame or SubmitFile call issues exactly one asynchronous
// request; its outcome is handed to the Sink, never returned to the caller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/smileboard/internal/adapters/detection"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
	"github.com/okian/smileboard/pkg/metrics"
)

// DefaultRequestTimeout bounds one detection request.
const DefaultRequestTimeout = 10 * time.Second

// Device is an exclusively owned frame source.
type Device interface {
	// Acquire opens the device and reports success.
	Acquire(ctx context.Context) bool
	// ReadFrame returns the current frame as an encoded image.
	ReadFrame(ctx context.Context) (model.Image, error)
	// Release closes the device.
	Release() error
}

// Detector evaluates one image.
type Detector interface {
	Detect(ctx context.Context, req model.DetectionRequest) (model.DetectionResult, error)
}

// Sink receives the outcome of every issued request.
type Sink interface {
	Deliver(ctx context.Context, d model.Delivery)
}

// Controller drives the capture device and the detection requests it produces.
type Controller struct {
	device   Device
	detector Detector
	sink     Sink

	log      logger.Logger
	now      func() time.Time
	newID    func() string
	timeout  time.Duration
	imageOpt detection.EncodeOptions

	mu      sync.Mutex // guards everything below
	state   State
	started time.Time
	// epoch counts stops; each delivery carries the epoch it was issued in.
	epoch   uint64
	pending int
	idle    sync.Cond // broadcast when pending drops to zero
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestTimeout bounds every detection request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithIDFunc replaces the request id generator.
func WithIDFunc(f func() string) Option {
	return func(c *Controller) {
		if f != nil {
			c.newID = f
		}
	}
}

// WithImageOptions sets normalization for uploaded files.
func WithImageOptions(o detection.EncodeOptions) Option {
	return func(c *Controller) {
		c.imageOpt = o
	}
}

// New creates a Controller in the Idle state. device may be nil, in which
// case Start always fails and only SubmitFile is usable.
func New(device Device, detector Detector, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		device:   device,
		detector: detector,
		sink:     sink,
		log:      logger.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
		timeout:  DefaultRequestTimeout,
		imageOpt: detection.EncodeOptions{MaxWidth: detection.DefaultMaxWidth, Quality: detection.DefaultJPEGQuality},
		state:    Idle,
	}
	c.idle.L = &c.mu
	for _, opt := range opts {
		opt(c)
	}
	metrics.UpdateCaptureState(c.state.String(), States)
	return c
}

// Start acquires the device. It returns true when already capturing and
// false, without a transition, when the device cannot be acquired.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Capturing {
		return true
	}
	if c.device == nil || !c.device.Acquire(ctx) {
		c.log.Warn(ctx, "capture device unavailable", logger.String("state", c.state.String()))
		return false
	}
	c.state = Capturing
	if c.started.IsZero() {
		c.started = c.now()
	}
	metrics.UpdateCaptureState(c.state.String(), States)
	c.log.Info(ctx, "capture started")
	return true
}

// Stop releases the device. Calling it when not capturing does nothing.
// In-flight requests are not cancelled.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Capturing {
		return
	}
	if err := c.device.Release(); err != nil {
		c.log.Warn(context.Background(), "release capture device", logger.Error(err))
	}
	c.state = Stopped
	c.epoch++
	metrics.UpdateCaptureState(c.state.String(), States)
	c.log.Info(context.Background(), "capture stopped", logger.Int("in_flight", c.pending))
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Epoch returns the number of completed stops.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SessionElapsed is the time since the first successful Start, or zero.
func (c *Controller) SessionElapsed() time.Duration {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return c.now().Sub(started)
}

// CaptureFrame reads one frame and issues a detection request for it.
func (c *Controller) CaptureFrame(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	if c.state != Capturing {
		c.mu.Unlock()
		return "", ErrNotCapturing
	}
	device := c.device
	epoch := c.epoch
	c.mu.Unlock()

	img, err := device.ReadFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: read frame: %w", ErrDevice, err)
	}
	return c.issue(ctx, model.SourceFrame, img, userID, epoch), nil
}

// SubmitFile loads an image file and issues a detection request for it.
// It is valid in every state.
func (c *Controller) SubmitFile(ctx context.Context, path, userID string) (string, error) {
	if !detection.IsSupported(path) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, path)
	}
	epoch := c.Epoch()
	img, err := detection.LoadImageFile(path, c.imageOpt)
	if err != nil {
		if errors.Is(err, detection.ErrImage) {
			return "", fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
		}
		return "", err
	}
	return c.issue(ctx, model.SourceFile, img, userID, epoch), nil
}

// InFlight returns the number of requests awaiting delivery.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Wait blocks until every issued request has been delivered. Requests may
// be issued while it waits.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending > 0 {
		c.idle.Wait()
	}
}

func (c *Controller) track(delta int) {
	c.mu.Lock()
	c.pending += delta
	n := c.pending
	if n == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
	metrics.UpdateInFlight(n)
}

func (c *Controller) issue(ctx context.Context, source model.Source, img model.Image, userID string, epoch uint64) string {
	id := c.newID()
	issued := c.now()

	c.track(1)
	metrics.RecordRequestIssued(string(source))

	// Requests outlive the command that issued them.
	base := context.WithoutCancel(ctx)

	go func() {
		defer c.track(-1)

		rctx, cancel := context.WithTimeout(base, c.timeout)
		start := time.Now()
		result, err := c.detector.Detect(rctx, model.DetectionRequest{ID: id, UserID: userID, Image: img})
		cancel()
		metrics.RecordDetectionLatency(float64(time.Since(start).Milliseconds()))

		d := model.Delivery{
			RequestID: id,
			Source:    source,
			Epoch:     epoch,
			Result:    result,
			Err:       err,
			Issued:    issued,
			Delivered: c.now(),
		}
		if err != nil {
			c.log.Debug(base, "detection request failed", logger.String("request_id", id), logger.Error(err))
		}
		c.sink.Deliver(base, d)
	}()

	return id
}
