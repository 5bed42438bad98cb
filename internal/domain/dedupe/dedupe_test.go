package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/slipsync/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording notification ids", func() {
			d := dedupe.NewInMemoryDeduper()
			first := d.SeenAndRecord(ctx, "n-1")
			again := d.SeenAndRecord(ctx, "n-1")
			other := d.SeenAndRecord(ctx, "n-2")

			Convey("Then only the redelivery is reported as seen", func() {
				So(first, ShouldBeFalse)
				So(again, ShouldBeTrue)
				So(other, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When the id is empty", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it is never seen nor recorded", func() {
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When unrecording", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "n-1")
			d.Unrecord(ctx, "n-1")
			d.Unrecord(ctx, "missing")

			Convey("Then the id is accepted again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "n-1"), ShouldBeFalse)
			})
		})

		Convey("When the window is full", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, id := range []string{"n-1", "n-2", "n-3", "n-4"} {
				So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
			}

			Convey("Then the oldest id is forgotten", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "n-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "n-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "n-1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When a slot was freed before the ring wraps", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "n-1")
			d.Unrecord(ctx, "n-1")
			d.SeenAndRecord(ctx, "n-2")
			d.SeenAndRecord(ctx, "n-3")

			Convey("Then the size stays consistent", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "n-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "n-3"), ShouldBeTrue)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("n-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "n-0"), ShouldBeTrue)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by transports", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const transports = 4
		const events = 200

		Convey("When every transport delivers the same events", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			accepted := 0
			for i := 0; i < transports; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < events; j++ {
						if !d.SeenAndRecord(context.Background(), fmt.Sprintf("n-%d", j)) {
							mu.Lock()
							accepted++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each event is accepted once", func() {
				So(accepted, ShouldEqual, events)
				So(d.Size(), ShouldEqual, events)
			})
		})
	})
}
