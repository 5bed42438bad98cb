package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(nil)

		Convey("Then it gets a random context id", func() {
			So(svc, ShouldNotBeNil)
			So(svc.ContextID(), ShouldNotBeEmpty)
			So(svc.ContextID(), ShouldNotEqual, service.New(nil).ContextID())
			So(svc.Betslip(), ShouldBeNil)
		})
	})

	Convey("Given a configured context id", t, func() {
		cfg := config.New()
		cfg.ContextID = "tab-1"
		svc := service.New(cfg)

		Convey("Then it is used", func() {
			So(svc.ContextID(), ShouldEqual, "tab-1")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(nil)
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Started(), ShouldBeTrue)
				So(svc.Betslip(), ShouldNotBeNil)
				So(svc.Catalog(), ShouldNotBeNil)
				So(svc.Storage().ContextID(), ShouldEqual, svc.ContextID())
			})

			Convey("And a second start is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And it should report its parts", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["transport"], ShouldEqual, "memory")
				So(stats["betslipType"], ShouldEqual, model.BetslipNone.String())
				So(stats["catalogLoaded"], ShouldEqual, false)
			})
		})
	})

	Convey("Given the kafka transport", t, func() {
		cfg := config.New()
		cfg.Transport = config.DriverKafka
		cfg.KafkaBrokers = "127.0.0.1:1"
		svc := service.New(cfg)

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())
			defer svc.Stop()

			Convey("Then the consumer connects lazily and the context starts", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["transport"], ShouldEqual, "kafka")
			})
		})
	})

	Convey("Given an unreachable redis", t, func() {
		cfg := config.New()
		cfg.LocalDriver = config.DriverRedis
		cfg.RedisAddr = "127.0.0.1:1"
		svc := service.New(cfg)

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())

			Convey("Then it fails without starting", func() {
				So(err, ShouldNotBeNil)
				So(svc.Started(), ShouldBeFalse)
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := svc.Start(ctx)
		So(err, ShouldBeNil)

		Convey("When stopping the service", func() {
			slip := svc.Betslip()
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})

			Convey("And the betslip ignores further updates", func() {
				changed, err := slip.AddUserBet(ctx, "1-10-5")
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
			})

			Convey("And it can be started again", func() {
				So(svc.Start(ctx), ShouldBeNil)
				defer svc.Stop()
				_, err := svc.Betslip().AddUserBet(ctx, "1-10-5")
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(nil)

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then it should return basic stats", func() {
				So(stats, ShouldNotBeNil)
				So(stats["started"], ShouldEqual, false)
				So(stats["queueSize"], ShouldEqual, 1024)
				So(stats, ShouldNotContainKey, "transport")
			})
		})
	})
}

func TestService_CatalogSource(t *testing.T) {
	Convey("Given a catalog file that does not exist", t, func() {
		cfg := config.New()
		cfg.CatalogFile = "/non/existent/events.json"
		svc := service.New(cfg)
		defer svc.Stop()

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())

			Convey("Then the failed load is not fatal", func() {
				So(err, ShouldBeNil)
				So(svc.Catalog().Loaded(), ShouldBeFalse)
				So(svc.Catalog().Snapshot(), ShouldBeNil)
			})
		})
	})

	Convey("Given the bundled catalog file", t, func() {
		cfg := config.New()
		cfg.CatalogFile = "../services/catalog/testdata/events.json"
		svc := service.New(cfg)
		defer svc.Stop()
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then the events are loaded once at start", func() {
			So(svc.Catalog().Loaded(), ShouldBeTrue)
			So(svc.GetStats()["catalogEvents"], ShouldEqual, len(svc.Catalog().Snapshot()))
			So(svc.Catalog().Lookup("3340789-953125720-4194768007").Found, ShouldBeTrue)
		})
	})
}

func TestService_InvalidConfig(t *testing.T) {
	Convey("Given a config with an unknown transport", t, func() {
		cfg := config.New()
		cfg.Transport = "carrier-pigeon"
		svc := service.New(cfg)

		Convey("Then start reports an invalid config", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
