package synccheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slipsync/internal/adapters/http/api"
	"github.com/okian/slipsync/internal/adapters/mq/pubsub"
	"github.com/okian/slipsync/internal/adapters/repository"
	service "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/internal/services/catalog"
	"github.com/okian/slipsync/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// startContexts serves n contexts of one origin over HTTP.
func startContexts(ctx context.Context, n int) ([]string, func()) {
	transport := pubsub.NewMemoryTransport()
	local := repository.NewMemoryBackend()
	session := repository.NewMemoryBackend()

	var (
		urls    []string
		closers []func()
	)
	for i := 0; i < n; i++ {
		cfg := config.New()
		svc := service.New(cfg,
			service.WithTransport(transport),
			service.WithBackend(repository.LocalStorage, local),
			service.WithBackend(repository.SessionStorage, session),
			service.WithCatalogSource(catalog.FileSource{Path: "../services/catalog/testdata/events.json"}),
		)
		So(svc.Start(ctx), ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc.Betslip(), svc.Catalog(), svc).Handler())
		urls = append(urls, srv.URL)
		closers = append(closers, srv.Close, svc.Stop)
	}
	return urls, func() {
		for _, c := range closers {
			c()
		}
	}
}

func TestRun(t *testing.T) {
	Convey("Given two contexts of one origin served over HTTP", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		urls, stop := startContexts(ctx, 2)
		defer stop()

		Convey("When edits are applied one at a time", func() {
			stats, err := Run(ctx, &Config{
				URLs:    urls,
				NumOps:  20,
				Workers: 1,
				Pause:   20 * time.Millisecond,
				Timeout: 5 * time.Second,
				Settle:  2 * time.Second,
				Seed:    []string{"1-10-5", "2-11-6", "2-11-7", "3-12-8"},
			})

			Convey("Then both contexts converge on the replayed slip", func() {
				So(err, ShouldBeNil)
				So(stats.OpsGenerated, ShouldEqual, 20)
				So(stats.OpsSubmitted, ShouldEqual, 20)
				So(stats.OpsFailed, ShouldEqual, 0)
				So(stats.FinalBetslips, ShouldHaveLength, 2)
				So(ids(stats.FinalBetslips[0]), ShouldResemble, ids(stats.FinalBetslips[1]))
			})
		})

		Convey("When bet ids come from the catalog", func() {
			stats, err := Run(ctx, &Config{
				URLs:    urls,
				NumOps:  5,
				Workers: 1,
				Pause:   20 * time.Millisecond,
				Timeout: 5 * time.Second,
				Settle:  2 * time.Second,
			})

			Convey("Then the edits resolve against it", func() {
				So(err, ShouldBeNil)
				for _, bet := range stats.FinalBetslips[0].Bets {
					So(bet.Found, ShouldBeTrue)
				}
			})
		})
	})

	Convey("Given no contexts", t, func() {
		_, err := Run(context.Background(), &Config{})

		Convey("Then the run is refused", func() {
			So(errors.Is(err, ErrNoContexts), ShouldBeTrue)
		})
	})

	Convey("Given an unreachable context", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		_, err := Run(context.Background(), &Config{URLs: []string{srv.URL}, Timeout: time.Second})

		Convey("Then the health check fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestVerification(t *testing.T) {
	slip := func(ids ...string) types.Betslip {
		out := types.Betslip{}
		for _, id := range ids {
			out.Bets = append(out.Bets, model.Selection{BetID: id})
		}
		return out
	}

	Convey("Given betslips read from several contexts", t, func() {
		Convey("Then identical order counts as converged", func() {
			So(converged([]types.Betslip{slip("a", "b"), slip("a", "b")}), ShouldBeTrue)
			So(converged([]types.Betslip{slip(), slip()}), ShouldBeTrue)
		})

		Convey("Then a different order or membership does not", func() {
			So(converged([]types.Betslip{slip("a", "b"), slip("b", "a")}), ShouldBeFalse)
			So(converged([]types.Betslip{slip("a"), slip("a", "b")}), ShouldBeFalse)
		})
	})

	Convey("Given a sequence of edits", t, func() {
		ops := []Op{
			{Kind: OpAdd, BetID: "a", Status: http.StatusCreated},
			{Kind: OpToggle, BetID: "b", Status: http.StatusOK},
			{Kind: OpRemove, BetID: "a", Status: http.StatusOK},
			{Kind: OpToggle, BetID: "b", Status: http.StatusOK},
			{Kind: OpToggle, BetID: "c", Status: http.StatusOK},
			{Kind: OpAdd, BetID: "d", Status: http.StatusBadRequest},
			{Kind: OpAdd, BetID: "e"},
		}

		Convey("Then replay keeps only the net effect of accepted edits", func() {
			So(expected(ops), ShouldResemble, map[string]bool{"c": true})
			So(verifyExpected(context.Background(), ops, slip("c")), ShouldBeNil)
			err := verifyExpected(context.Background(), ops, slip("c", "b"))
			So(errors.Is(err, ErrUnexpectedState), ShouldBeTrue)
		})
	})

	Convey("Given edits of each kind", t, func() {
		Convey("Then each maps onto its route", func() {
			m, u := request("http://x", Op{Kind: OpAdd, BetID: "1-2-3"})
			So(m, ShouldEqual, http.MethodPost)
			So(u, ShouldEqual, "http://x/betslip/bets/1-2-3")
			m, u = request("http://x", Op{Kind: OpRemove, BetID: "1-2-3"})
			So(m, ShouldEqual, http.MethodDelete)
			So(u, ShouldEqual, "http://x/betslip/bets/1-2-3")
			m, u = request("http://x", Op{Kind: OpToggle, BetID: "1-2-3"})
			So(m, ShouldEqual, http.MethodPost)
			So(u, ShouldEqual, "http://x/betslip/bets/1-2-3/toggle")
		})
	})
}
