package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/services/betslip"
	"github.com/okian/slipsync/pkg/logger"
)

const catalogFile = "../../internal/services/catalog/testdata/events.json"

// execute runs the root command with args and returns its stdout.
func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func unsetEnv(keys ...string) {
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the slipsync command", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("SLIPSYNC_ADDR", ":8080")
			_ = os.Setenv("SLIPSYNC_QUEUE_SIZE", "1000")
			_ = os.Setenv("SLIPSYNC_LOG_FORMAT", "json")
			defer unsetEnv("SLIPSYNC_ADDR", "SLIPSYNC_QUEUE_SIZE", "SLIPSYNC_LOG_FORMAT")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := setup(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When the config flag names a missing file", func() {
			defer unsetEnv(config.EnvFile)
			_, err := execute("--config", "/nonexistent/slipsync.yaml", "betslip", "show")

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When listing commands", func() {
			root := newRootCmd()
			var names []string
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}

			convey.Convey("Then every command is registered", func() {
				for _, want := range []string{"serve", "betslip", "payout", "events", "sync-check", "version"} {
					convey.So(names, convey.ShouldContain, want)
				}
			})
		})

		convey.Convey("When printing the version", func() {
			out, err := execute("version", "--short")

			convey.Convey("Then only the version is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "dev\n")
			})
		})
	})
}

func TestBetslipCommands(t *testing.T) {
	convey.Convey("Given memory drivers", t, func() {
		convey.Convey("When adding bets", func() {
			out, err := execute("betslip", "add", "1-10-5", "2-11-6", "1-10-5")

			convey.Convey("Then each result and the ticket type are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "add 1-10-5: true")
				convey.So(out, convey.ShouldContainSubstring, "add 2-11-6: true")
				convey.So(out, convey.ShouldContainSubstring, "add 1-10-5: false")
				convey.So(out, convey.ShouldContainSubstring, "type: Multiple")
			})
		})

		convey.Convey("When toggling an invalid id", func() {
			_, err := execute("betslip", "toggle", "not-a-bet")

			convey.Convey("Then the id is rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidBetID), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a command gets no ids", func() {
			_, err := execute("betslip", "remove")

			convey.Convey("Then cobra rejects it", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When clearing and showing a fresh slip", func() {
			out, err := execute("betslip", "clear")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "cleared: false")
			out, err = execute("betslip", "show")

			convey.Convey("Then it has no type", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "type: None")
			})
		})
	})

	convey.Convey("Given a running context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc, err := openContext(ctx)
		convey.So(err, convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("When watching while bets are added", func() {
			var out syncBuffer
			done := make(chan error, 1)
			go func() { done <- watch(ctx, &out, svc) }()

			_, _ = svc.Betslip().AddUserBet(ctx, "1-10-5")
			deadline := time.Now().Add(time.Second)
			for !strings.Contains(out.String(), "[Single] 1-10-5") && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			convey.Convey("Then each change is printed", func() {
				convey.So(out.String(), convey.ShouldContainSubstring, "[Single] 1-10-5")
				convey.So(<-done, convey.ShouldBeNil)
			})
		})
	})
}

func TestCatalogCommands(t *testing.T) {
	convey.Convey("Given a catalog file", t, func() {
		_ = os.Setenv("SLIPSYNC_CATALOG_FILE", catalogFile)
		defer unsetEnv("SLIPSYNC_CATALOG_FILE")

		convey.Convey("When listing events with markets", func() {
			out, err := execute("events", "--markets")

			convey.Convey("Then events and bet ids are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "3340789")
				convey.So(out, convey.ShouldContainSubstring, "3340789-953125720-4194768007")
			})
		})

		convey.Convey("When quoting an empty slip", func() {
			_, err := execute("payout", "--stake", "10")

			convey.Convey("Then there is nothing to quote", func() {
				convey.So(errors.Is(err, betslip.ErrEmptyBetslip), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the stake is not a positive decimal", func() {
			_, errText := execute("payout", "--stake", "ten")
			_, errZero := execute("payout", "--stake", "0")

			convey.Convey("Then it is rejected before starting", func() {
				convey.So(errText, convey.ShouldNotBeNil)
				convey.So(errZero.Error(), convey.ShouldContainSubstring, "must be positive")
			})
		})
	})

	convey.Convey("Given no catalog source", t, func() {
		_, err := execute("events")

		convey.Convey("Then listing events fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "catalog is not loaded")
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		if err := logger.Init(); err != nil {
			t.Fatal(err)
		}

		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := app.New(nil)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})

			convey.Convey("Then a single update should not panic", func() {
				convey.So(func() {
					updateSystemMetrics()
					updateServiceMetrics(svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the server cannot listen", func() {
			_ = os.Setenv("SLIPSYNC_ADDR", "256.0.0.1:bad")
			defer unsetEnv("SLIPSYNC_ADDR")

			convey.Convey("Then serve returns the listener error", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				convey.So(runServe(ctx, ""), convey.ShouldNotBeNil)
			})
		})
	})
}
