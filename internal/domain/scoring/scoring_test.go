package scoring_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func smile(points, streak int) model.DetectionResult {
	return model.DetectionResult{SmileDetected: true, Confidence: 0.9, PointsAwarded: points, CurrentStreak: streak}
}

func TestTracker_ApplyResult(t *testing.T) {
	Convey("Given a new tracker", t, func() {
		tr := scoring.NewTracker()

		Convey("When a smiling result is applied", func() {
			state, err := tr.ApplyResult(model.DetectionResult{
				SmileDetected: true, Confidence: 0.92, PointsAwarded: 10, CurrentStreak: 1,
			})

			Convey("Then its points and streak are taken", func() {
				So(err, ShouldBeNil)
				So(state.TotalScore, ShouldEqual, 10)
				So(state.CurrentStreak, ShouldEqual, 1)
				So(tr.State(), ShouldResemble, state)
			})

			Convey("And a following miss keeps the score but takes the streak", func() {
				state, err := tr.ApplyResult(model.DetectionResult{Confidence: 0.1, CurrentStreak: 0})
				So(err, ShouldBeNil)
				So(state.TotalScore, ShouldEqual, 10)
				So(state.CurrentStreak, ShouldEqual, 0)
			})

			Convey("And a miss that still reports a streak keeps that streak", func() {
				state, err := tr.ApplyResult(model.DetectionResult{Confidence: 0.3, CurrentStreak: 1})
				So(err, ShouldBeNil)
				So(state.CurrentStreak, ShouldEqual, 1)
			})
		})

		Convey("When 11 smiling results with points 1..11 are applied", func() {
			for i := 1; i <= 11; i++ {
				_, err := tr.ApplyResult(smile(i, i))
				So(err, ShouldBeNil)
			}

			Convey("Then the total is their sum", func() {
				So(tr.State().TotalScore, ShouldEqual, 66)
				So(tr.State().CurrentStreak, ShouldEqual, 11)
			})
		})

		Convey("When a mixed sequence is applied", func() {
			seq := []model.DetectionResult{
				smile(10, 1), {Confidence: 0.2}, smile(5, 1), smile(0, 2), {Confidence: 0.4, CurrentStreak: 0}, smile(7, 1),
			}
			want := 0
			prev := 0
			for _, r := range seq {
				if r.SmileDetected {
					want += r.PointsAwarded
				}
				st, err := tr.ApplyResult(r)
				So(err, ShouldBeNil)
				So(st.TotalScore, ShouldBeGreaterThanOrEqualTo, prev)
				prev = st.TotalScore
			}

			Convey("Then the total equals the sum of smiling points and never decreased", func() {
				So(tr.State().TotalScore, ShouldEqual, want)
			})
		})

		Convey("When reset", func() {
			_, _ = tr.ApplyResult(smile(3, 2))
			tr.Reset()

			Convey("Then the state is zero", func() {
				So(tr.State(), ShouldResemble, model.ScoreState{})
			})
		})
	})
}

func TestTracker_Validation(t *testing.T) {
	Convey("Given a tracker with some score", t, func() {
		tr := scoring.NewTracker()
		_, err := tr.ApplyResult(smile(10, 2))
		So(err, ShouldBeNil)
		before := tr.State()

		invalid := []struct {
			name   string
			result model.DetectionResult
		}{
			{"negative points", model.DetectionResult{SmileDetected: true, Confidence: 0.5, PointsAwarded: -1}},
			{"confidence above one", model.DetectionResult{SmileDetected: true, Confidence: 1.01, PointsAwarded: 1}},
			{"confidence below zero", model.DetectionResult{Confidence: -0.1}},
			{"NaN confidence", model.DetectionResult{Confidence: math.NaN()}},
			{"negative streak", model.DetectionResult{Confidence: 0.5, CurrentStreak: -3}},
			{"points without smile", model.DetectionResult{Confidence: 0.5, PointsAwarded: 4}},
		}

		for _, tc := range invalid {
			Convey("When applying a result with "+tc.name, func() {
				state, err := tr.ApplyResult(tc.result)

				Convey("Then ErrValidation is returned and state is unchanged", func() {
					So(errors.Is(err, scoring.ErrValidation), ShouldBeTrue)
					So(state, ShouldResemble, before)
					So(tr.State(), ShouldResemble, before)
				})
			})
		}

		Convey("When confidence sits exactly on the bounds", func() {
			_, errLow := tr.ApplyResult(model.DetectionResult{Confidence: 0})
			_, errHigh := tr.ApplyResult(model.DetectionResult{SmileDetected: true, Confidence: 1, PointsAwarded: 1, CurrentStreak: 1})

			Convey("Then both are accepted", func() {
				So(errLow, ShouldBeNil)
				So(errHigh, ShouldBeNil)
				So(tr.State().TotalScore, ShouldEqual, 11)
			})
		})
	})
}
