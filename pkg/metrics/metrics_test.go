package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// familyNames gathers reg and returns the registered family names.
func familyNames(reg *prometheus.Registry) map[string]bool {
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10}),
			WithConstLabels(map[string]string{"user": "alice"}),
			WithPrometheusRegistry(reg),
		)
		So(m, ShouldNotBeNil)

		Convey("When scalar collectors are touched", func() {
			m.pointsAwarded.Add(3)
			m.totalScore.Set(3)

			Convey("Then they are exposed under the configured names", func() {
				names := familyNames(reg)
				So(names["test_unit_points_awarded_total"], ShouldBeTrue)
				So(names["test_unit_total_score"], ShouldBeTrue)
			})
		})

		Convey("When a second manager uses the same registry", func() {
			Convey("Then registration panics on duplicate collectors", func() {
				So(func() { NewManager(WithNamespace("test"), WithSubsystem("unit"), WithPrometheusRegistry(reg)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global recorders", t, func() {
		Convey("Then session recorders do not panic", func() {
			So(func() {
				RecordDetection(OutcomeSmile)
				RecordDetection(OutcomeNoSmile)
				RecordDetection(OutcomeFailed)
				RecordDetection(OutcomeInvalid)
				RecordPointsAwarded(10)
				RecordPointsAwarded(0)
				UpdateScore(10, 1)
				UpdateLedgerSize(1)
				UpdateCaptureState("capturing", []string{"idle", "capturing", "stopped"})
				RecordDuplicateDelivery()
				RecordDiscardedDelivery()
				RecordRequestIssued("frame")
			}, ShouldNotPanic)
		})

		Convey("Then queue, detection and error recorders do not panic", func() {
			So(func() {
				RecordDetectionLatency(120)
				UpdateInFlight(2)
				UpdateQueueCapacity(64)
				UpdateQueueSize(3)
				UpdateQueueUtilization(3.0 / 64)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
				RecordError("io_error")
				RecordExport("ok")
				RecordHTTPRequest("stats", "GET", "200")
				RecordHTTPRequestDuration("stats", "GET", "200", 1.5)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry exposes the session families", func() {
			UpdateScore(42, 3)
			RecordDetection(OutcomeSmile)
			names := familyNames(GetRegistry())
			So(names["smileboard_session_total_score"], ShouldBeTrue)
			So(names["smileboard_session_current_streak"], ShouldBeTrue)
			So(names["smileboard_session_detections_total"], ShouldBeTrue)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global collectors rebuilt with a user label and latency buckets", t, func() {
		before := GetRegistry()
		Configure(
			WithConstLabels(map[string]string{"user": "alice"}),
			WithHistogramBuckets([]float64{5, 50}),
		)
		Reset(func() { Configure() })

		Convey("When the session records a score and a latency", func() {
			UpdateScore(7, 1)
			RecordDetectionLatency(20)

			Convey("Then a fresh registry carries the label and the buckets", func() {
				reg := GetRegistry()
				So(reg, ShouldNotEqual, before)

				families, err := reg.Gather()
				So(err, ShouldBeNil)
				var labelled, buckets bool
				for _, f := range families {
					switch f.GetName() {
					case "smileboard_session_total_score":
						for _, l := range f.GetMetric()[0].GetLabel() {
							if l.GetName() == "user" && l.GetValue() == "alice" {
								labelled = true
							}
						}
					case "smileboard_session_detection_latency_milliseconds":
						buckets = len(f.GetMetric()[0].GetHistogram().GetBucket()) == 2
					}
				}
				So(labelled, ShouldBeTrue)
				So(buckets, ShouldBeTrue)
			})
		})
	})
}
