package repository

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/schema"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.StorageEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.StorageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) all() []model.StorageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.StorageEvent(nil), p.events...)
}

type failingBackend struct{ MemoryBackend }

var errBoom = errors.New("boom")

func (*failingBackend) Get(context.Context, string) (string, bool, error) { return "", false, errBoom }
func (*failingBackend) Set(context.Context, string, string) (string, bool, error) {
	return "", false, errBoom
}
func (*failingBackend) Remove(context.Context, string) (string, bool, error) {
	return "", false, errBoom
}
func (*failingBackend) Clear(context.Context) (int, error) { return 0, errBoom }

func TestMemoryBackend(t *testing.T) {
	Convey("Given a memory backend", t, func() {
		ctx := context.Background()
		b := NewMemoryBackend()

		Convey("When setting a key twice", func() {
			_, had, err := b.Set(ctx, "k", "1")
			So(err, ShouldBeNil)
			So(had, ShouldBeFalse)
			old, had, _ := b.Set(ctx, "k", "2")

			Convey("Then the previous value is returned", func() {
				So(had, ShouldBeTrue)
				So(old, ShouldEqual, "1")
				v, ok, _ := b.Get(ctx, "k")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "2")
			})
		})

		Convey("When removing and clearing", func() {
			_, _, _ = b.Set(ctx, "a", "1")
			_, _, _ = b.Set(ctx, "b", "2")
			old, had, _ := b.Remove(ctx, "a")
			So(had, ShouldBeTrue)
			So(old, ShouldEqual, "1")
			_, had, _ = b.Remove(ctx, "a")
			So(had, ShouldBeFalse)

			n, err := b.Clear(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(b.Len(), ShouldEqual, 0)
		})
	})
}

func TestArea(t *testing.T) {
	Convey("Given a published area", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		a := NewArea(LocalStorage, NewMemoryBackend(), WithOrigin("ctx-a"), WithPublisher(pub))

		Convey("When a value is set", func() {
			a.Set(ctx, "betslip", model.Betslip{Bets: []model.UserBet{{ID: "1-2-3"}}})

			Convey("Then it round-trips through the schema", func() {
				slip, ok := GetItem(ctx, a, "betslip", schema.Betslip())
				So(ok, ShouldBeTrue)
				So(slip.IDs(), ShouldResemble, []string{"1-2-3"})
			})

			Convey("Then one event is published with the origin", func() {
				evs := pub.all()
				So(len(evs), ShouldEqual, 1)
				So(evs[0].Area, ShouldEqual, "localStorage")
				So(evs[0].KeyString(), ShouldEqual, "betslip")
				So(*evs[0].NewValue, ShouldEqual, `{"bets":[{"id":"1-2-3"}]}`)
				So(evs[0].OldValue, ShouldBeNil)
				So(evs[0].Origin, ShouldEqual, "ctx-a")
				So(evs[0].ID, ShouldNotBeEmpty)
			})

			Convey("Then writing the same value again publishes nothing", func() {
				a.Set(ctx, "betslip", model.Betslip{Bets: []model.UserBet{{ID: "1-2-3"}}})
				So(len(pub.all()), ShouldEqual, 1)
			})

			Convey("Then removing it publishes the old value", func() {
				a.Remove(ctx, "betslip")
				evs := pub.all()
				So(len(evs), ShouldEqual, 2)
				So(evs[1].NewValue, ShouldBeNil)
				So(*evs[1].OldValue, ShouldEqual, `{"bets":[{"id":"1-2-3"}]}`)
				a.Remove(ctx, "betslip")
				So(len(pub.all()), ShouldEqual, 2)
			})

			Convey("Then clearing publishes a keyless event", func() {
				a.Clear(ctx)
				evs := pub.all()
				So(len(evs), ShouldEqual, 2)
				So(evs[1].Key, ShouldBeNil)
				a.Clear(ctx)
				So(len(pub.all()), ShouldEqual, 2)
			})
		})

		Convey("When a value cannot be serialized", func() {
			a.Set(ctx, "k", "keep")
			a.Set(ctx, "k", math.Inf(1))
			a.Set(ctx, "k", make(chan int))

			Convey("Then the write is skipped and prior state kept", func() {
				raw, ok := a.Get(ctx, "k")
				So(ok, ShouldBeTrue)
				So(raw, ShouldEqual, `"keep"`)
				So(len(pub.all()), ShouldEqual, 1)
			})
		})

		Convey("When the stored record is malformed or invalid", func() {
			a.SetRaw(ctx, "betslip", `{"bets":`)
			_, ok := GetItem(ctx, a, "betslip", schema.Betslip())
			So(ok, ShouldBeFalse)

			a.SetRaw(ctx, "betslip", `{"bets":[{"id":"nope"}]}`)
			_, ok = GetItem(ctx, a, "betslip", schema.Betslip())
			So(ok, ShouldBeFalse)
		})

		Convey("When the key is absent", func() {
			slip, ok := GetItem(ctx, a, "missing", schema.Betslip())
			So(ok, ShouldBeFalse)
			So(slip, ShouldBeNil)
		})

		Convey("When the publisher fails", func() {
			pub.err = errBoom

			Convey("Then the write still lands", func() {
				So(func() { a.Set(ctx, "k", 1) }, ShouldNotPanic)
				raw, ok := a.Get(ctx, "k")
				So(ok, ShouldBeTrue)
				So(raw, ShouldEqual, "1")
			})
		})
	})

	Convey("Given an area over a failing backend", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		a := NewArea(SessionStorage, &failingBackend{}, WithPublisher(pub))

		Convey("Then no operation panics or publishes", func() {
			So(func() {
				a.Set(ctx, "k", 1)
				a.Remove(ctx, "k")
				a.Clear(ctx)
			}, ShouldNotPanic)
			_, ok := a.Get(ctx, "k")
			So(ok, ShouldBeFalse)
			So(len(pub.all()), ShouldEqual, 0)
		})
	})
}

func TestStorage(t *testing.T) {
	Convey("Given a storage service", t, func() {
		pub := &recordingPublisher{}
		shared := NewMemoryBackend()
		s := New("ctx-a",
			WithBackend(LocalStorage, shared),
			WithAreaNamespace(SessionStorage, "session-1"),
			WithNotifier(pub),
		)
		ctx := context.Background()

		Convey("When resolving known areas", func() {
			for _, n := range Names {
				a, err := s.From(n)
				So(err, ShouldBeNil)
				So(a.Name(), ShouldEqual, n)
			}
			So(s.MustFrom(LocalStorage).Backend(), ShouldEqual, shared)
			So(s.MustFrom(SessionStorage).Namespace(), ShouldEqual, "session-1")
			So(s.ContextID(), ShouldEqual, "ctx-a")
		})

		Convey("When resolving an unknown area", func() {
			_, err := s.From("cookieStorage")

			Convey("Then a configuration error is returned", func() {
				So(errors.Is(err, ErrUnsupportedStorage), ShouldBeTrue)
			})

			_, err = ParseName("indexedDB")
			So(errors.Is(err, ErrUnsupportedStorage), ShouldBeTrue)
		})

		Convey("When writing to memoryStorage", func() {
			s.MustFrom(MemoryStorage).Set(ctx, "k", 1)

			Convey("Then nothing is published", func() {
				So(len(pub.all()), ShouldEqual, 0)
			})
		})

		Convey("When writing to sessionStorage", func() {
			s.MustFrom(SessionStorage).Set(ctx, "k", 1)

			Convey("Then the event carries the session namespace", func() {
				evs := pub.all()
				So(len(evs), ShouldEqual, 1)
				So(evs[0].Namespace, ShouldEqual, "session-1")
			})
		})
	})
}
