package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/stream"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = wsPongWait * 9 / 10
)

// WatchHandler pushes the betslip to websocket clients on every change.
type WatchHandler struct {
	slip     Betslip
	catalog  Catalog
	upgrader websocket.Upgrader
}

// NewWatchHandler creates a new watch handler.
func NewWatchHandler(slip Betslip, catalog Catalog) *WatchHandler {
	return &WatchHandler{
		slip:    slip,
		catalog: catalog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from the host being served.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// HandleWatch handles GET /betslip/ws. The current slip is sent on connect,
// then again after every change. Changes arriving faster than the client
// reads are coalesced into one frame.
func (h *WatchHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	log := logger.GetOr(logger.Nop()).Named("WatchHandler")
	bets, err := h.slip.UserBets()
	if err != nil {
		writeKind(w, WrapKind("api.watch", ErrUnavailable, err))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Debug(r.Context(), "upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	dirty := make(chan struct{}, 1)
	done := make(chan struct{})
	signal := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	signal()
	var once sync.Once
	sub := bets.SubscribeObserver(stream.Observer[[]model.UserBet]{
		Next:     func([]model.UserBet) { signal() },
		Complete: func() { once.Do(func() { close(done) }) },
	})
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go readLoop(r.Context(), log, conn, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-dirty:
			frame := types.Betslip{Type: h.slip.CurrentType().String(), Bets: h.slip.Selections(h.catalog)}
			if frame.Bets == nil {
				frame.Bets = []model.Selection{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug(r.Context(), "write failed", logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "betslip disposed"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readLoop discards client frames and closes closed when the peer goes away.
func readLoop(ctx context.Context, log logger.Logger, conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug(ctx, "watch client gone", logger.Error(err))
			}
			return
		}
	}
}
