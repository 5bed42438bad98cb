package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/slipsync/internal/domain/types"
)

func dial(srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	target := "ws" + strings.TrimPrefix(srv.URL, "http") + "/betslip/ws"
	return websocket.DefaultDialer.Dial(target, header)
}

func readFrame(conn *websocket.Conn) types.Betslip {
	var frame types.Betslip
	So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
	So(conn.ReadJSON(&frame), ShouldBeNil)
	return frame
}

func TestWatchHandler(t *testing.T) {
	Convey("Given a server with an empty betslip", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, true)
		defer f.catalog.Dispose()
		srv := httptest.NewServer(f.handler)
		defer srv.Close()

		Convey("When a client connects", func() {
			conn, resp, err := dial(srv, nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)

			first := readFrame(conn)

			Convey("Then it receives the current slip and every change", func() {
				So(first.Type, ShouldEqual, "None")
				So(first.Bets, ShouldBeEmpty)

				_, err := f.slip.AddUserBet(ctx, "1-10-5")
				So(err, ShouldBeNil)
				next := readFrame(conn)
				So(next.Type, ShouldEqual, "Single")
				So(next.Bets, ShouldHaveLength, 1)
				So(next.Bets[0].BetID, ShouldEqual, "1-10-5")
			})

			Convey("Then disposing the betslip closes the socket", func() {
				f.slip.Dispose()
				So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
				_, _, err := conn.ReadMessage()
				var ce *websocket.CloseError
				So(errors.As(err, &ce), ShouldBeTrue)
				So(ce.Code, ShouldEqual, websocket.CloseGoingAway)
			})
		})

		Convey("When a browser connects from another origin", func() {
			_, resp, err := dial(srv, http.Header{"Origin": []string{"http://elsewhere.example"}})

			Convey("Then the upgrade is refused", func() {
				So(err, ShouldNotBeNil)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})

		Reset(func() { f.slip.Dispose() })
	})
}
