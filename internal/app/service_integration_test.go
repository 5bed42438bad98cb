package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slipsync/internal/adapters/mq/pubsub"
	"github.com/okian/slipsync/internal/adapters/repository"
	service "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/internal/domain/model"
)

// eventually polls cond until it holds or a second passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type origin struct {
	transport *pubsub.MemoryTransport
	local     *repository.MemoryBackend
	session   *repository.MemoryBackend
}

func newOrigin() origin {
	return origin{
		transport: pubsub.NewMemoryTransport(),
		local:     repository.NewMemoryBackend(),
		session:   repository.NewMemoryBackend(),
	}
}

// open starts a context of o. Contexts opened with the same session id
// share sessionStorage.
func (o origin) open(ctx context.Context, contextID, sessionID string) *service.Service {
	cfg := config.New()
	cfg.ContextID = contextID
	cfg.SessionID = sessionID
	svc := service.New(cfg,
		service.WithTransport(o.transport),
		service.WithBackend(repository.LocalStorage, o.local),
		service.WithBackend(repository.SessionStorage, o.session),
	)
	So(svc.Start(ctx), ShouldBeNil)
	return svc
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given two contexts of one origin", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o := newOrigin()
		a := o.open(ctx, "tab-a", "session-1")
		defer a.Stop()
		b := o.open(ctx, "tab-b", "session-2")
		defer b.Stop()

		Convey("When one context edits the betslip", func() {
			_, err := a.Betslip().AddUserBet(ctx, "1-10-5")
			So(err, ShouldBeNil)
			_, err = a.Betslip().AddUserBet(ctx, "2-11-6")
			So(err, ShouldBeNil)

			Convey("Then the other converges", func() {
				So(eventually(func() bool {
					return b.Betslip().CurrentType() == model.BetslipMultiple
				}), ShouldBeTrue)
				So(b.Betslip().Snapshot().IDs(), ShouldResemble, []string{"1-10-5", "2-11-6"})
			})

			Convey("And edits flow back the other way", func() {
				So(eventually(func() bool { return b.Betslip().IsUserBetExisting("2-11-6") }), ShouldBeTrue)
				present, err := b.Betslip().ToggleUserBet(ctx, "2-11-6")
				So(err, ShouldBeNil)
				So(present, ShouldBeFalse)
				So(eventually(func() bool {
					return a.Betslip().CurrentType() == model.BetslipSingle
				}), ShouldBeTrue)
			})
		})

		Convey("When a context writes its sessionStorage", func() {
			var mu sync.Mutex
			seen := map[string]int{}
			for _, svc := range []*service.Service{a, b} {
				svc := svc
				changes, err := svc.Listener().StorageChanged(repository.SessionStorage, "step")
				So(err, ShouldBeNil)
				sub := changes.Subscribe(func(model.StorageEvent) {
					mu.Lock()
					seen[svc.ContextID()]++
					mu.Unlock()
				})
				defer sub.Unsubscribe()
			}
			c := o.open(ctx, "tab-c", "session-1")
			defer c.Stop()

			c.Storage().MustFrom(repository.SessionStorage).Set(ctx, "step", 2)

			Convey("Then only contexts of the same session hear it", func() {
				So(eventually(func() bool {
					mu.Lock()
					defer mu.Unlock()
					return seen["tab-a"] == 1
				}), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				defer mu.Unlock()
				So(seen["tab-b"], ShouldEqual, 0)
			})
		})

		Convey("When a notification is delivered twice", func() {
			var mu sync.Mutex
			count := 0
			changes, err := a.Listener().StorageChanged(repository.LocalStorage, "promo")
			So(err, ShouldBeNil)
			sub := changes.Subscribe(func(model.StorageEvent) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			defer sub.Unsubscribe()

			key, value := "promo", `"spring"`
			ev := model.StorageEvent{
				ID:       uuid.NewString(),
				Area:     string(repository.LocalStorage),
				Key:      &key,
				NewValue: &value,
				Origin:   "tab-x",
				At:       time.Now(),
			}
			So(o.transport.Publish(ctx, ev), ShouldBeNil)
			So(o.transport.Publish(ctx, ev), ShouldBeNil)

			Convey("Then it is observed once", func() {
				So(eventually(func() bool {
					mu.Lock()
					defer mu.Unlock()
					return count == 1
				}), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				defer mu.Unlock()
				So(count, ShouldEqual, 1)
			})
		})

		Convey("When a context stops", func() {
			b.Stop()
			_, err := a.Betslip().AddUserBet(ctx, "3-12-7")
			So(err, ShouldBeNil)

			Convey("Then it no longer receives notifications", func() {
				So(o.transport.Subscribers(), ShouldEqual, 1)
			})
		})
	})
}
