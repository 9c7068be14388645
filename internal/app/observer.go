package service

import (
	"context"
	"errors"
	"io/fs"

	"github.com/okian/smileboard/internal/capture"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/internal/domain/scoring"
	"github.com/okian/smileboard/internal/export"
	"github.com/okian/smileboard/pkg/logger"
)

// ErrorKind classifies failures reported to the observer.
type ErrorKind int

const (
	ValidationError ErrorKind = iota + 1
	DeviceError
	ExternalServiceError
	IoError
)

func (k ErrorKind) String() string {
	switch k {
	case ValidationError:
		return "validation_error"
	case DeviceError:
		return "device_error"
	case ExternalServiceError:
		return "external_service_error"
	case IoError:
		return "io_error"
	default:
		return "unknown_error"
	}
}

// Classify maps an error from the session's collaborators to its kind.
// Unrecognized errors are treated as external service failures.
func Classify(err error) ErrorKind {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, scoring.ErrValidation), errors.Is(err, capture.ErrUnsupportedImage):
		return ValidationError
	case errors.Is(err, capture.ErrDevice), errors.Is(err, capture.ErrNotCapturing):
		return DeviceError
	case errors.Is(err, export.ErrIO), errors.As(err, &pathErr):
		return IoError
	default:
		return ExternalServiceError
	}
}

// StateChange is published after every applied delivery and capture transition.
type StateChange struct {
	Score model.ScoreState
	// LatestReward is set only when this change recorded a reward.
	LatestReward *model.RewardEntry
	Confidence   float64
	Status       string
}

// Observer is the presentation layer's view of the session.
// Calls are serialized; an observer may query the service from inside them.
type Observer interface {
	OnStateChanged(change StateChange)
	OnError(kind ErrorKind, message string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChanged func(StateChange)
	Error        func(ErrorKind, string)
}

// OnStateChanged calls StateChanged.
func (o ObserverFuncs) OnStateChanged(change StateChange) {
	if o.StateChanged != nil {
		o.StateChanged(change)
	}
}

// OnError calls Error.
func (o ObserverFuncs) OnError(kind ErrorKind, message string) {
	if o.Error != nil {
		o.Error(kind, message)
	}
}

// loggingObserver is used when no observer is configured.
type loggingObserver struct {
	log logger.Logger
}

func (o loggingObserver) OnStateChanged(change StateChange) {
	fields := []logger.Field{
		logger.Int("total_score", change.Score.TotalScore),
		logger.Int("streak", change.Score.CurrentStreak),
		logger.Float64("confidence", change.Confidence),
	}
	if change.LatestReward != nil {
		fields = append(fields, logger.Int("points", change.LatestReward.Points))
	}
	o.log.Info(context.Background(), change.Status, fields...)
}

func (o loggingObserver) OnError(kind ErrorKind, message string) {
	o.log.Warn(context.Background(), message, logger.String("kind", kind.String()))
}
