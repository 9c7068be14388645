package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/smileboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.User, convey.ShouldEqual, "guest")
				convey.So(cfg.Session.QueueSize, convey.ShouldEqual, 256)
				convey.So(cfg.Detector.TimeoutMS, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("SMILE_USER", "alice")
			t.Setenv("SMILE_LOG_LEVEL", "debug")
			t.Setenv("SMILE_DETECTOR__BASE_URL", "http://detector:9000")
			t.Setenv("SMILE_DETECTOR__TIMEOUT_MS", "2500")
			t.Setenv("SMILE_SESSION__DISCARD_AFTER_STOP", "true")
			t.Setenv("SMILE_HTTP__ADDR", ":9191")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.User, convey.ShouldEqual, "alice")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Detector.BaseURL, convey.ShouldEqual, "http://detector:9000")
				convey.So(cfg.Detector.TimeoutMS, convey.ShouldEqual, 2500)
				convey.So(cfg.Session.DiscardAfterStop, convey.ShouldBeTrue)
				convey.So(cfg.HTTP.Addr, convey.ShouldEqual, ":9191")
				convey.So(cfg.Session.LedgerCapacity, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
user: bob
detector:
  transport: websocket
  ws_url: ws://detector:9000/ws
capture:
  device: static
  static_image: testdata/face.jpg
session:
  queue_size: 32
`
			t.Setenv(config.EnvConfig, createTempConfigFile(t, yamlContent))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.User, convey.ShouldEqual, "bob")
				convey.So(cfg.Detector.Transport, convey.ShouldEqual, config.TransportWebSocket)
				convey.So(cfg.Capture.Device, convey.ShouldEqual, config.DeviceStatic)
				convey.So(cfg.Session.QueueSize, convey.ShouldEqual, 32)
				convey.So(cfg.Session.DedupeSize, convey.ShouldEqual, 1024)
			})

			convey.Convey("And env still wins over the file", func() {
				t.Setenv("SMILE_USER", "carol")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.User, convey.ShouldEqual, "carol")
			})
		})

		convey.Convey("When the YAML file does not exist", func() {
			t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When env produces an invalid config", func() {
			t.Setenv("SMILE_DETECTOR__TRANSPORT", "smoke-signals")
			_, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestStubConfigLoader(t *testing.T) {
	convey.Convey("Given the stub config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.LoadStub(ctx)

			convey.Convey("Then the detection service constants apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.PointsPerSmile, convey.ShouldEqual, 10)
				convey.So(cfg.DebounceMS, convey.ShouldEqual, 2000)
				convey.So(cfg.Probability, convey.ShouldEqual, 0.5)
				convey.So(cfg.RewardThreshold, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When env overrides values", func() {
			t.Setenv("SMILE_STUB_ADDR", ":9000")
			t.Setenv("SMILE_STUB_PROBABILITY", "0.8")
			cfg, err := config.LoadStub(ctx)

			convey.Convey("Then they are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9000")
				convey.So(cfg.Probability, convey.ShouldEqual, 0.8)
			})

			convey.Convey("And the client config ignores stub keys", func() {
				_, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the reward threshold is not positive", func() {
			t.Setenv("SMILE_STUB_REWARD_THRESHOLD", "0")
			_, err := config.LoadStub(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the probability is out of range", func() {
			t.Setenv("SMILE_STUB_PROBABILITY", "1.5")
			_, err := config.LoadStub(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
