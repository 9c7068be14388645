package stubdetector_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/okian/smileboard/internal/adapters/repository"
	"github.com/okian/smileboard/internal/stubdetector"
	. "github.com/smartystreets/goconvey/convey"
)

func pngBytes() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// script returns rolls in order, repeating the last one.
func script(rolls ...float64) func() float64 {
	i := 0
	return func() float64 {
		r := rolls[min(i, len(rolls)-1)]
		i++
		return r
	}
}

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDetector_Evaluate(t *testing.T) {
	ctx := context.Background()
	img := pngBytes()

	Convey("Given a detector with scripted rolls and a manual clock", t, func() {
		clock := &manualClock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}

		Convey("When a user smiles three times spaced beyond the debounce", func() {
			d := stubdetector.New(stubdetector.WithRand(script(0.1)), stubdetector.WithClock(clock.Now))
			var streaks []int
			for range 3 {
				res, err := d.Evaluate(ctx, "alice", img)
				So(err, ShouldBeNil)
				So(res.SmileDetected, ShouldBeTrue)
				So(res.PointsAwarded, ShouldEqual, stubdetector.DefaultPointsPerSmile)
				So(res.Confidence, ShouldBeBetweenOrEqual, 0.5, 1)
				streaks = append(streaks, res.CurrentStreak)
				clock.Advance(3 * time.Second)
			}

			Convey("Then points accumulate and the streak grows", func() {
				So(streaks, ShouldResemble, []int{1, 2, 3})
				So(d.Total("alice"), ShouldEqual, 30)
				So(d.Total("bob"), ShouldEqual, 0)
			})
		})

		Convey("When a second smile lands inside the debounce window", func() {
			d := stubdetector.New(stubdetector.WithRand(script(0.1)), stubdetector.WithClock(clock.Now))
			first, _ := d.Evaluate(ctx, "alice", img)
			clock.Advance(time.Second)
			second, err := d.Evaluate(ctx, "alice", img)

			Convey("Then it is a smile worth nothing and the streak holds", func() {
				So(err, ShouldBeNil)
				So(first.PointsAwarded, ShouldEqual, 10)
				So(second.SmileDetected, ShouldBeTrue)
				So(second.PointsAwarded, ShouldEqual, 0)
				So(second.CurrentStreak, ShouldEqual, 1)
			})
		})

		Convey("When a miss follows a smile", func() {
			d := stubdetector.New(stubdetector.WithRand(script(0.1, 0.9)), stubdetector.WithClock(clock.Now))
			_, _ = d.Evaluate(ctx, "alice", img)
			clock.Advance(5 * time.Second)
			miss, err := d.Evaluate(ctx, "alice", img)

			Convey("Then the streak resets and no points are awarded", func() {
				So(err, ShouldBeNil)
				So(miss.SmileDetected, ShouldBeFalse)
				So(miss.PointsAwarded, ShouldEqual, 0)
				So(miss.CurrentStreak, ShouldEqual, 0)
				So(miss.Confidence, ShouldBeBetweenOrEqual, 0, 0.5)
			})
		})

		Convey("When users are interleaved", func() {
			d := stubdetector.New(stubdetector.WithRand(script(0.1)), stubdetector.WithClock(clock.Now), stubdetector.WithDebounce(0))
			a1, _ := d.Evaluate(ctx, "alice", img)
			clock.Advance(time.Millisecond)
			b1, _ := d.Evaluate(ctx, "bob", img)
			clock.Advance(time.Millisecond)
			a2, _ := d.Evaluate(ctx, "alice", img)

			Convey("Then each keeps an independent streak", func() {
				So(a1.CurrentStreak, ShouldEqual, 1)
				So(b1.CurrentStreak, ShouldEqual, 1)
				So(a2.CurrentStreak, ShouldEqual, 2)
			})
		})

		Convey("When the probability is zero or one", func() {
			never := stubdetector.New(stubdetector.WithProbability(-3), stubdetector.WithRand(script(0)))
			always := stubdetector.New(stubdetector.WithProbability(7), stubdetector.WithRand(script(0.999)))
			n, _ := never.Evaluate(ctx, "", img)
			a, _ := always.Evaluate(ctx, "", img)

			Convey("Then outcomes follow the clamped probability", func() {
				So(n.SmileDetected, ShouldBeFalse)
				So(a.SmileDetected, ShouldBeTrue)
				So(always.Total("guest"), ShouldEqual, 10)
			})
		})

		Convey("When custom points are configured", func() {
			d := stubdetector.New(stubdetector.WithRand(script(0)), stubdetector.WithPointsPerSmile(25))
			res, _ := d.Evaluate(ctx, "alice", img)
			So(res.PointsAwarded, ShouldEqual, 25)
		})

		Convey("When the image is empty or not an image", func() {
			d := stubdetector.New()
			_, errEmpty := d.Evaluate(ctx, "alice", nil)
			_, errBad := d.Evaluate(ctx, "alice", []byte("not an image"))

			Convey("Then typed errors are returned", func() {
				So(errors.Is(errEmpty, stubdetector.ErrNoImage), ShouldBeTrue)
				So(errors.Is(errBad, stubdetector.ErrBadImage), ShouldBeTrue)
			})
		})
	})
}

func TestDetector_Rewards(t *testing.T) {
	ctx := context.Background()
	img := pngBytes()

	Convey("Given a detector that rewards every 30 points", t, func() {
		d := stubdetector.New(
			stubdetector.WithRand(script(0.1)),
			stubdetector.WithDebounce(0),
			stubdetector.WithRewardThreshold(30),
		)

		Convey("When alice smiles four times", func() {
			for range 4 {
				res, err := d.Evaluate(ctx, "alice", img)
				So(err, ShouldBeNil)
				So(res.PointsAwarded, ShouldEqual, 10)
			}

			Convey("Then the third smile earns a reward and points start over", func() {
				e, err := d.Standing(ctx, "alice")
				So(err, ShouldBeNil)
				So(e.Rewards, ShouldEqual, 1)
				So(e.Points, ShouldEqual, 10)
				So(e.Total, ShouldEqual, 40)
				So(d.Total("alice"), ShouldEqual, 40)
			})
		})
	})

	Convey("Given users with different progress", t, func() {
		d := stubdetector.New(stubdetector.WithRand(script(0.1)), stubdetector.WithDebounce(0))
		for user, smiles := range map[string]int{"alice": 2, "bob": 5, "carol": 2} {
			for range smiles {
				_, err := d.Evaluate(ctx, user, img)
				So(err, ShouldBeNil)
			}
		}

		Convey("Then the leaderboard orders them by points", func() {
			top, err := d.Leaderboard(ctx, 10)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 3)
			So(top[0].UserID, ShouldEqual, "bob")
			So(top[0].Points, ShouldEqual, 50)
			So(top[1].UserID, ShouldEqual, "alice")
			So(top[1].Rank, ShouldEqual, 2)
			So(top[2].UserID, ShouldEqual, "carol")
			So(top[2].Rank, ShouldEqual, 2)
			So(d.Users(ctx), ShouldEqual, 3)
		})

		Convey("Then an unknown user has no standing", func() {
			_, err := d.Standing(ctx, "mallory")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
