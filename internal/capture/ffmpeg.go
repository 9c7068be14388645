package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/okian/smileboard/internal/adapters/detection"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
)

// FFmpegWebcam reads raw RGBA frames from an ffmpeg child process and keeps
// the most recent one.
type FFmpegWebcam struct {
	deviceName string
	width      int
	height     int
	fps        int
	encode     detection.EncodeOptions
	log        logger.Logger
	command    func(ctx context.Context, args ...string) *exec.Cmd

	mu     sync.Mutex // guards cmd, latest, err, stop
	cmd    *exec.Cmd
	latest *image.RGBA
	err    error
	stop   chan struct{}
	done   chan struct{}
}

// NewFFmpegWebcam creates a webcam device. deviceName is a v4l2 path on
// Linux and a dshow device name on Windows.
func NewFFmpegWebcam(deviceName string, width, height, fps int, enc detection.EncodeOptions, log logger.Logger) *FFmpegWebcam {
	if log == nil {
		log = logger.Nop()
	}
	return &FFmpegWebcam{
		deviceName: deviceName,
		width:      width,
		height:     height,
		fps:        fps,
		encode:     enc,
		log:        log,
		command: func(ctx context.Context, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "ffmpeg", args...)
		},
	}
}

func (w *FFmpegWebcam) args() []string {
	input := []string{"-f", "v4l2", "-i", w.deviceName}
	if runtime.GOOS == "windows" {
		input = []string{"-f", "dshow", "-i", "video=" + w.deviceName}
	}
	return append(input,
		"-loglevel", "error",
		"-vf", "fps="+strconv.Itoa(w.fps)+",scale="+strconv.Itoa(w.width)+":"+strconv.Itoa(w.height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

// Acquire spawns ffmpeg. It returns false if the process cannot start.
func (w *FFmpegWebcam) Acquire(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd != nil {
		return true
	}

	// The process lives until Release, not until ctx ends.
	cmd := w.command(context.WithoutCancel(ctx), w.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.log.Error(ctx, "ffmpeg stdout pipe", logger.Error(err))
		return false
	}
	if err := cmd.Start(); err != nil {
		w.log.Error(ctx, "ffmpeg start", logger.Error(err), logger.String("stderr", stderr.String()))
		return false
	}

	w.cmd = cmd
	w.latest = nil
	w.err = nil
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.readLoop(stdout, w.stop, w.done)
	return true
}

func (w *FFmpegWebcam) readLoop(stdout io.ReadCloser, stop, done chan struct{}) {
	defer close(done)
	defer stdout.Close()

	frameSize := w.width * w.height * 4
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			select {
			case <-stop:
			default:
				w.mu.Lock()
				w.err = fmt.Errorf("ffmpeg read: %w", err)
				w.mu.Unlock()
			}
			return
		}
		frame := &image.RGBA{
			Pix:    buf,
			Stride: w.width * 4,
			Rect:   image.Rect(0, 0, w.width, w.height),
		}
		w.mu.Lock()
		w.latest = frame
		w.mu.Unlock()
	}
}

// ReadFrame encodes the most recent frame as JPEG.
func (w *FFmpegWebcam) ReadFrame(context.Context) (model.Image, error) {
	w.mu.Lock()
	frame, err := w.latest, w.err
	w.mu.Unlock()

	if err != nil {
		return model.Image{}, err
	}
	if frame == nil {
		return model.Image{}, ErrNoFrame
	}
	data, err := detection.EncodeJPEG(frame, w.encode)
	if err != nil {
		return model.Image{}, err
	}
	return model.Image{Data: data, ContentType: detection.ContentTypeJPEG, Name: "frame.jpg"}, nil
}

// Release kills ffmpeg and waits for the reader to finish.
func (w *FFmpegWebcam) Release() error {
	w.mu.Lock()
	cmd, stop, done := w.cmd, w.stop, w.done
	w.cmd = nil
	w.mu.Unlock()
	if cmd == nil {
		return nil
	}

	close(stop)
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		// killed by signal
		return nil
	}
	if err != nil {
		return fmt.Errorf("ffmpeg wait: %w", err)
	}
	return nil
}
