package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/smileboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var ts = time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC)

// sample mirrors a ledger holding two rewards, newest first.
func sample() Record {
	return Record{
		User: "alice",
		Entries: []model.RewardEntry{
			{ID: "b", Points: 5, ConfidencePercent: 80.0, Streak: 2, Timestamp: ts.Add(time.Minute)},
			{ID: "a", Points: 3, ConfidencePercent: 60.0, Streak: 1, Timestamp: ts},
		},
		Score: model.ScoreState{TotalScore: 8, CurrentStreak: 2},
	}
}

func TestWriteTo(t *testing.T) {
	Convey("Given a record with two rewards", t, func() {
		var buf bytes.Buffer
		err := WriteTo(&buf, sample())

		Convey("Then rows are oldest-first with a TOTAL trailer", func() {
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines, ShouldResemble, []string{
				"timestamp,points,confidence_percent,streak",
				"2026-10-14T10:30:00Z,3,60.0,1",
				"2026-10-14T10:31:00Z,5,80.0,2",
				"TOTAL,8,,2",
			})
		})
	})

	Convey("Given an empty record", t, func() {
		var buf bytes.Buffer
		So(WriteTo(&buf, Record{}), ShouldBeNil)
		So(buf.String(), ShouldEqual, "timestamp,points,confidence_percent,streak\nTOTAL,0,,0\n")
	})

	Convey("Given a failing writer", t, func() {
		err := WriteTo(failingWriter{}, sample())
		So(errors.Is(err, ErrIO), ShouldBeTrue)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestExporter_Export(t *testing.T) {
	Convey("Given an exporter and a temp directory", t, func() {
		e := New()
		dir := t.TempDir()
		dest := filepath.Join(dir, DefaultFileName("alice"))

		Convey("When exporting to a new file", func() {
			err := e.Export(context.Background(), dest, sample(), false)

			Convey("Then the file holds the CSV and no temp files remain", func() {
				So(err, ShouldBeNil)
				data, err := os.ReadFile(dest)
				So(err, ShouldBeNil)
				So(string(data), ShouldEndWith, "TOTAL,8,,2\n")
				entries, _ := os.ReadDir(dir)
				So(entries, ShouldHaveLength, 1)
			})

			Convey("And a second export without overwrite is refused", func() {
				rec := sample()
				rec.Score.TotalScore = 99
				err := e.Export(context.Background(), dest, rec, false)
				So(errors.Is(err, ErrExists), ShouldBeTrue)
				So(errors.Is(err, ErrIO), ShouldBeTrue)
				data, _ := os.ReadFile(dest)
				So(string(data), ShouldContainSubstring, "TOTAL,8,,2")
				entries, _ := os.ReadDir(dir)
				So(entries, ShouldHaveLength, 1)
			})

			Convey("And overwrite replaces the file", func() {
				rec := sample()
				rec.Score.TotalScore = 99
				So(e.Export(context.Background(), dest, rec, true), ShouldBeNil)
				data, _ := os.ReadFile(dest)
				So(string(data), ShouldContainSubstring, "TOTAL,99,,2")
			})
		})

		Convey("When the directory does not exist", func() {
			err := e.Export(context.Background(), filepath.Join(dir, "missing", "out.csv"), sample(), false)

			Convey("Then ErrIO is returned", func() {
				So(errors.Is(err, ErrIO), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := e.Export(ctx, dest, sample(), false)
			So(errors.Is(err, ErrIO), ShouldBeTrue)
			_, statErr := os.Stat(dest)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})
}

func TestDefaultFileName(t *testing.T) {
	Convey("Given user names", t, func() {
		So(DefaultFileName("alice"), ShouldEqual, "smile_data_alice.csv")
		So(DefaultFileName(""), ShouldEqual, "smile_data_guest.csv")
		So(DefaultFileName("../x"), ShouldEqual, "smile_data_.._x.csv")
	})
}
