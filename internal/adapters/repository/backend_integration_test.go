package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

// Live backend tests run only when SLIPSYNC_TEST_REDIS_ADDR or
// SLIPSYNC_TEST_POSTGRES_DSN point at a reachable server.

func backendContract(b Backend) {
	ctx := context.Background()

	_, had, err := b.Set(ctx, "k", "1")
	So(err, ShouldBeNil)
	So(had, ShouldBeFalse)

	old, had, err := b.Set(ctx, "k", "2")
	So(err, ShouldBeNil)
	So(had, ShouldBeTrue)
	So(old, ShouldEqual, "1")

	v, ok, err := b.Get(ctx, "k")
	So(err, ShouldBeNil)
	So(ok, ShouldBeTrue)
	So(v, ShouldEqual, "2")

	old, had, err = b.Remove(ctx, "k")
	So(err, ShouldBeNil)
	So(had, ShouldBeTrue)
	So(old, ShouldEqual, "2")

	_, ok, err = b.Get(ctx, "k")
	So(err, ShouldBeNil)
	So(ok, ShouldBeFalse)

	_, _, _ = b.Set(ctx, "a", "1")
	_, _, _ = b.Set(ctx, "b", "1")
	n, err := b.Clear(ctx)
	So(err, ShouldBeNil)
	So(n, ShouldEqual, 2)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("SLIPSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SLIPSYNC_TEST_REDIS_ADDR not set")
	}
	Convey("Given a live redis backend", t, func() {
		client, err := ConnectRedis(context.Background(), addr, "", 0)
		So(err, ShouldBeNil)
		defer client.Close()

		b := NewRedisBackend(client, "slipsync-test:"+uuid.NewString(), WithTTL(time.Minute))

		Convey("Then it honours the backend contract", func() {
			backendContract(b)
		})
	})
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("SLIPSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SLIPSYNC_TEST_POSTGRES_DSN not set")
	}
	Convey("Given a live postgres backend", t, func() {
		ctx := context.Background()
		db, err := ConnectPostgres(ctx, dsn)
		So(err, ShouldBeNil)
		defer db.Close()
		So(EnsureSchema(ctx, db), ShouldBeNil)

		b := NewPostgresBackend(db, "slipsync-test:"+uuid.NewString())

		Convey("Then it honours the backend contract", func() {
			backendContract(b)
		})
	})
}
