package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/smileboard/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFormatElapsed(t *testing.T) {
	Convey("Given elapsed durations", t, func() {
		So(types.FormatElapsed(0), ShouldEqual, "00:00:00")
		So(types.FormatElapsed(59*time.Second+900*time.Millisecond), ShouldEqual, "00:00:59")
		So(types.FormatElapsed(61*time.Minute+5*time.Second), ShouldEqual, "01:01:05")
		So(types.FormatElapsed(100*time.Hour), ShouldEqual, "100:00:00")
		So(types.FormatElapsed(-time.Second), ShouldEqual, "00:00:00")
	})
}

func TestSummaryJSON(t *testing.T) {
	Convey("Given a summary", t, func() {
		s := types.Summary{User: "alice", TotalScore: 30, CurrentStreak: 2, SessionTime: "00:01:00", CaptureState: "capturing"}

		Convey("When it is encoded", func() {
			data, err := json.Marshal(s)
			So(err, ShouldBeNil)

			Convey("Then it uses snake_case keys", func() {
				So(string(data), ShouldContainSubstring, `"total_score":30`)
				So(string(data), ShouldContainSubstring, `"capture_state":"capturing"`)
				So(string(data), ShouldContainSubstring, `"session_time":"00:01:00"`)
			})
		})
	})
}
