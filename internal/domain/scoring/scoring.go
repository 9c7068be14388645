// Package scoring applies detection results to a session's score and streak.
package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/smileboard/internal/domain/model"
)

// Tracker owns a ScoreState and mutates it only through ApplyResult.
// It is not safe for concurrent use; callers serialize access.
type Tracker struct {
	state    model.ScoreState
	validate *validator.Validate
}

// NewTracker returns a tracker with a zero score.
func NewTracker() *Tracker {
	return &Tracker{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ApplyResult folds result into the score. Smiling results add their points;
// every valid result sets the streak to the value reported upstream. An
// invalid result returns an error wrapping ErrValidation and leaves the
// state untouched.
func (t *Tracker) ApplyResult(result model.DetectionResult) (model.ScoreState, error) {
	if err := t.Validate(result); err != nil {
		return t.state, err
	}
	if result.SmileDetected {
		t.state.TotalScore += result.PointsAwarded
	}
	t.state.CurrentStreak = result.CurrentStreak
	return t.state, nil
}

// Validate checks field ranges and the points-imply-smile rule.
func (t *Tracker) Validate(result model.DetectionResult) error {
	if err := t.validate.Struct(result); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if result.PointsAwarded > 0 && !result.SmileDetected {
		return fmt.Errorf("%w: %d points awarded without a smile", ErrValidation, result.PointsAwarded)
	}
	return nil
}

// State returns the current score.
func (t *Tracker) State() model.ScoreState {
	return t.state
}

// Reset zeroes the score and streak.
func (t *Tracker) Reset() {
	t.state = model.ScoreState{}
}
