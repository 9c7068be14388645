package replay_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/smileboard/internal/adapters/detection"
	"github.com/okian/smileboard/internal/adapters/http/api"
	service "github.com/okian/smileboard/internal/app"
	"github.com/okian/smileboard/internal/replay"
	"github.com/okian/smileboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		rnd := rand.New(rand.NewPCG(1, 2))
		results := replay.Generate(500, 0.6, 0.2, rnd)

		Convey("Then every result is valid and ids are unique", func() {
			ids := make(map[string]bool, len(results))
			streak := 0
			for _, r := range results {
				So(ids[r.RequestID], ShouldBeFalse)
				ids[r.RequestID] = true
				So(r.Confidence, ShouldBeBetweenOrEqual, 0, 1)
				if r.SmileDetected {
					streak++
					So(r.PointsAwarded, ShouldBeBetweenOrEqual, 1, 10)
				} else {
					streak = 0
					So(r.PointsAwarded, ShouldEqual, 0)
				}
				So(r.CurrentStreak, ShouldEqual, streak)
			}
		})

		Convey("Then the expected delta sums smiling points", func() {
			want := 0
			for _, r := range results {
				want += r.PointsAwarded
			}
			So(replay.ExpectedDelta(results), ShouldEqual, want)
		})

		Convey("Then the wire body omits the duplicate flag", func() {
			data, err := json.Marshal(results[0])
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"request_id"`)
			So(string(data), ShouldNotContainSubstring, "Duplicate")
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a started session behind its status surface", t, func() {
		svc := service.New(service.WithQueueSize(8), service.WithDetector(detection.NewHTTPClient("http://127.0.0.1:1")))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, 10).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		out := filepath.Join(t.TempDir(), "results.json")
		cfg := &replay.Config{
			BaseURL:       srv.URL,
			NumResults:    200,
			SmileRatio:    0.7,
			DuplicateRate: 0.3,
			Workers:       4,
			Timeout:       2 * time.Second,
			SettleTimeout: 5 * time.Second,
			OutputFile:    out,
		}

		Convey("When results are replayed", func() {
			stats, err := replay.Run(context.Background(), cfg)

			Convey("Then the score settles on each id applied once", func() {
				So(err, ShouldBeNil)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Submitted, ShouldBeGreaterThanOrEqualTo, stats.Generated)
				So(stats.FinalScore, ShouldEqual, stats.BaselineScore+stats.ExpectedDelta)
				So(svc.Score().TotalScore, ShouldEqual, stats.ExpectedDelta)
				_, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		cfg := &replay.Config{BaseURL: "http://127.0.0.1:1", NumResults: 1, Workers: 1, Timeout: 200 * time.Millisecond}

		Convey("Then Run fails the health check", func() {
			_, err := replay.Run(context.Background(), cfg)
			So(errors.Is(err, replay.ErrUnhealthy), ShouldBeTrue)
		})
	})

	Convey("Given a surface that rejects every result", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"status":"ok"}`)) })
		mux.HandleFunc("/analytics", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"total_score":0}`)) })
		mux.HandleFunc("/results", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) })
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("Then Run reports the rejections", func() {
			stats, err := replay.Run(context.Background(), &replay.Config{BaseURL: srv.URL, NumResults: 5, Workers: 2, Timeout: time.Second})
			So(errors.Is(err, replay.ErrRejected), ShouldBeTrue)
			So(stats.Failed, ShouldBeGreaterThanOrEqualTo, 5)
		})
	})
}
