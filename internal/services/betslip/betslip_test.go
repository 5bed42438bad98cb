package betslip

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slipsync/internal/adapters/listener"
	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/metrics"
)

type bus struct {
	mu        sync.Mutex
	listeners []*listener.Listener
}

func (b *bus) Publish(ctx context.Context, ev model.StorageEvent) error {
	b.mu.Lock()
	ls := append([]*listener.Listener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range ls {
		l.Deliver(ctx, ev)
	}
	return nil
}

type tab struct {
	storage *repository.Storage
	svc     *Service
}

func openTab(ctx context.Context, b *bus, local repository.Backend, id string) tab {
	s := repository.New(id, repository.WithBackend(repository.LocalStorage, local), repository.WithNotifier(b))
	l := listener.New(s)
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
	svc, err := New(ctx, s, l)
	So(err, ShouldBeNil)
	return tab{storage: s, svc: svc}
}

type fakeCatalog map[string]model.Selection

func (f fakeCatalog) Lookup(id string) model.Selection {
	if sel, ok := f[id]; ok {
		return sel
	}
	return model.Selection{BetID: id}
}

// opCount reads betslip_operations_total for op and result.
func opCount(op, result string) float64 {
	families, err := metrics.GetRegistry().Gather()
	So(err, ShouldBeNil)
	for _, f := range families {
		if f.GetName() != "slipsync_state_betslip_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["op"] == op && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestBetslipService(t *testing.T) {
	Convey("Given a betslip service", t, func() {
		ctx := context.Background()
		b := &bus{}
		local := repository.NewMemoryBackend()
		a := openTab(ctx, b, local, "ctx-a")
		defer a.svc.Dispose()

		Convey("Initially there is no betslip", func() {
			So(a.svc.Snapshot(), ShouldBeNil)
			So(a.svc.CurrentType(), ShouldEqual, model.BetslipNone)
			So(a.svc.IsUserBetExisting("1-10-5"), ShouldBeFalse)
		})

		Convey("When adding the same bet twice", func() {
			first, err := a.svc.AddUserBet(ctx, "1-10-5")
			So(err, ShouldBeNil)
			second, err := a.svc.AddUserBet(ctx, "1-10-5")
			So(err, ShouldBeNil)

			Convey("Then it is stored once", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(a.svc.Snapshot().IDs(), ShouldResemble, []string{"1-10-5"})
				raw, ok := a.storage.MustFrom(repository.LocalStorage).Get(ctx, DefaultKey)
				So(ok, ShouldBeTrue)
				So(raw, ShouldEqual, `{"bets":[{"id":"1-10-5"}]}`)
			})
		})

		Convey("When an invalid id is used", func() {
			_, errAdd := a.svc.AddUserBet(ctx, "1-10")
			_, errToggle := a.svc.ToggleUserBet(ctx, "x-1-2")
			_, errRemove := a.svc.RemoveBet(ctx, "")

			Convey("Then it never reaches state", func() {
				So(errors.Is(errAdd, model.ErrInvalidBetID), ShouldBeTrue)
				So(errors.Is(errToggle, model.ErrInvalidBetID), ShouldBeTrue)
				So(errors.Is(errRemove, model.ErrInvalidBetID), ShouldBeTrue)
				So(a.svc.Snapshot(), ShouldBeNil)
			})
		})

		Convey("When toggling twice", func() {
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			before := a.svc.Snapshot()
			on, _ := a.svc.ToggleUserBet(ctx, "2-11-6")
			off, _ := a.svc.ToggleUserBet(ctx, "2-11-6")

			Convey("Then the slip returns to its prior content", func() {
				So(on, ShouldBeTrue)
				So(off, ShouldBeFalse)
				So(a.svc.Snapshot(), ShouldResemble, before)
			})
		})

		Convey("When removing", func() {
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			_, _ = a.svc.AddUserBet(ctx, "2-11-6")
			removed, _ := a.svc.RemoveBet(ctx, "1-10-5")
			missing, _ := a.svc.RemoveBet(ctx, "9-9-9")

			Convey("Then only present bets are removed, order kept", func() {
				So(removed, ShouldBeTrue)
				So(missing, ShouldBeFalse)
				So(a.svc.Snapshot().IDs(), ShouldResemble, []string{"2-11-6"})
			})
		})

		Convey("When watching the ticket type", func() {
			var types []model.BetslipType
			s, err := a.svc.BetslipType()
			So(err, ShouldBeNil)
			sub := s.Subscribe(func(t model.BetslipType) { types = append(types, t) })
			defer sub.Unsubscribe()

			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			_, _ = a.svc.AddUserBet(ctx, "2-11-6")
			_, _ = a.svc.AddUserBet(ctx, "2-11-7")
			a.svc.Clear(ctx)

			Convey("Then each classification change is emitted", func() {
				So(types, ShouldResemble, []model.BetslipType{
					model.BetslipNone, model.BetslipSingle, model.BetslipMultiple, model.BetslipSystem, model.BetslipNone,
				})
				So(a.svc.Snapshot().Bets, ShouldBeEmpty)
			})
		})

		Convey("When watching bets and a single id", func() {
			var lists [][]model.UserBet
			var flags []bool
			bets, _ := a.svc.UserBets()
			exists, _ := a.svc.IsUserBetExistingStream("1-10-5")
			s1 := bets.Subscribe(func(v []model.UserBet) { lists = append(lists, v) })
			s2 := exists.Subscribe(func(v bool) { flags = append(flags, v) })
			defer s1.Unsubscribe()
			defer s2.Unsubscribe()

			_, _ = a.svc.AddUserBet(ctx, "2-11-6")
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			_, _ = a.svc.RemoveBet(ctx, "1-10-5")

			Convey("Then nil states are skipped and the flag only changes on its id", func() {
				So(lists, ShouldHaveLength, 3)
				So(lists[0], ShouldResemble, []model.UserBet{{ID: "2-11-6"}})
				So(flags, ShouldResemble, []bool{false, true, false})
			})
		})

		Convey("When another tab of the origin edits the slip", func() {
			other := openTab(ctx, b, local, "ctx-b")
			defer other.svc.Dispose()

			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			_, _ = other.svc.ToggleUserBet(ctx, "2-11-6")

			Convey("Then both tabs converge", func() {
				So(other.svc.Snapshot().IDs(), ShouldResemble, []string{"1-10-5", "2-11-6"})
				So(a.svc.Snapshot().IDs(), ShouldResemble, []string{"1-10-5", "2-11-6"})
				So(a.svc.CurrentType(), ShouldEqual, model.BetslipMultiple)
			})
		})

		Convey("When a fresh tab opens after writes", func() {
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			later := openTab(ctx, b, local, "ctx-c")
			defer later.svc.Dispose()

			Convey("Then it starts from the stored slip", func() {
				So(later.svc.IsUserBetExisting("1-10-5"), ShouldBeTrue)
			})
		})

		Convey("When another tab stores a slip with a repeated id", func() {
			other := openTab(ctx, b, local, "ctx-b")
			defer other.svc.Dispose()
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			other.storage.MustFrom(repository.LocalStorage).SetRaw(ctx, DefaultKey, `{"bets":[{"id":"1-10-5"},{"id":"1-10-5"}]}`)

			Convey("Then the record never reaches state", func() {
				So(a.svc.Snapshot().IDs(), ShouldResemble, []string{"1-10-5"})
				So(a.svc.CurrentType(), ShouldEqual, model.BetslipSingle)
			})
		})

		Convey("When the stored slip holds an id too large to parse", func() {
			a.storage.MustFrom(repository.LocalStorage).SetRaw(ctx, DefaultKey, `{"bets":[{"id":"123456789012345678901234-1-1"}]}`)
			later := openTab(ctx, b, local, "ctx-c")
			defer later.svc.Dispose()

			Convey("Then the record is ignored like any other invalid one", func() {
				So(later.svc.Snapshot(), ShouldBeNil)
				So(a.svc.Snapshot(), ShouldBeNil)
			})
		})

		Convey("When another tab rewrites an equal slip", func() {
			other := openTab(ctx, b, local, "ctx-b")
			defer other.svc.Dispose()
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")

			var lists [][]model.UserBet
			var types []model.BetslipType
			bets, _ := a.svc.UserBets()
			kinds, _ := a.svc.BetslipType()
			s1 := bets.Subscribe(func(v []model.UserBet) { lists = append(lists, v) })
			s2 := kinds.Subscribe(func(t model.BetslipType) { types = append(types, t) })
			defer s1.Unsubscribe()
			defer s2.Unsubscribe()

			other.storage.MustFrom(repository.LocalStorage).SetRaw(ctx, DefaultKey, `{"bets": [{"id": "1-10-5"}]}`)

			Convey("Then observers see no new emission", func() {
				So(lists, ShouldHaveLength, 1)
				So(types, ShouldResemble, []model.BetslipType{model.BetslipSingle})
			})
		})

		Convey("When toggling after dispose", func() {
			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			a.svc.Dispose()
			ok, noop := opCount("toggle", "ok"), opCount("toggle", "noop")
			present, err := a.svc.ToggleUserBet(ctx, "2-11-6")

			Convey("Then nothing changes and the call is counted as a no-op", func() {
				So(err, ShouldBeNil)
				So(present, ShouldBeFalse)
				So(a.svc.Snapshot().IDs(), ShouldResemble, []string{"1-10-5"})
				So(opCount("toggle", "ok"), ShouldEqual, ok)
				So(opCount("toggle", "noop"), ShouldEqual, noop+1)
			})
		})

		Convey("When quoting a stake", func() {
			cat := fakeCatalog{
				"1-10-5": {BetID: "1-10-5", Odd: 1.5, Found: true},
				"2-11-6": {BetID: "2-11-6", Odd: 2.0, Found: true},
			}
			_, err := a.svc.Quote(cat, decimal.RequireFromString("10"))
			So(errors.Is(err, ErrEmptyBetslip), ShouldBeTrue)

			_, _ = a.svc.AddUserBet(ctx, "1-10-5")
			_, _ = a.svc.AddUserBet(ctx, "2-11-6")
			q, err := a.svc.Quote(cat, decimal.RequireFromString("10.00"))

			Convey("Then the payout uses fixed-point arithmetic", func() {
				So(err, ShouldBeNil)
				So(q.Payout.StringFixed(2), ShouldEqual, "30.00")
				So(q.Type, ShouldEqual, model.BetslipMultiple)
				So(q.Selections, ShouldHaveLength, 2)
			})

			Convey("Then an unknown bet fails the quote", func() {
				_, _ = a.svc.AddUserBet(ctx, "3-1-1")
				_, err := a.svc.Quote(cat, decimal.RequireFromString("10"))
				So(errors.Is(err, ErrUnresolvedBet), ShouldBeTrue)
			})
		})
	})
}
