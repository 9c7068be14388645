package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the default init", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Then Get returns a logger", func() {
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})
	})

	Convey("Given an unknown format", t, func() {
		err := Init(WithFormat("xml"))

		Convey("Then init fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "xml")
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf), WithFormat(FormatJSON)), ShouldBeNil)
		So(SetLevelString("info"), ShouldBeNil)
		ctx := context.Background()

		Convey("When a named logger writes a record", func() {
			Named("session").Info(ctx, "smile applied", Int("points", 10), Bool("smile", true))

			var rec map[string]any
			So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)

			Convey("Then fields and component are present", func() {
				So(rec["msg"], ShouldEqual, "smile applied")
				So(rec["component"], ShouldEqual, "session")
				So(rec["points"], ShouldEqual, 10.0)
				So(rec["smile"], ShouldEqual, true)
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When debug is logged at info level", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the level is lowered to debug", func() {
			So(SetLevelString("DEBUG"), ShouldBeNil)
			Get().Debug(ctx, "visible")

			Convey("Then the record is written", func() {
				So(strings.Contains(buf.String(), "visible"), ShouldBeTrue)
			})
		})

		Reset(func() {
			_ = SetLevelString("info")
			_ = Init()
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " Error "} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("loud"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}

func TestNop(t *testing.T) {
	Convey("Nop discards without panicking", t, func() {
		l := Nop().Named("x")
		So(func() { l.Error(context.Background(), "boom", Error(nil)) }, ShouldNotPanic)
	})
}
