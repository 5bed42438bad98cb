// Package api serves the betslip and the catalog over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/okian/slipsync/internal/adapters/http/swagger"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/services/betslip"
	"github.com/okian/slipsync/pkg/metrics"
	"github.com/okian/slipsync/pkg/stream"
)

// Betslip is what the betslip routes need from the betslip service.
type Betslip interface {
	AddUserBet(ctx context.Context, id string) (bool, error)
	RemoveBet(ctx context.Context, id string) (bool, error)
	ToggleUserBet(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) bool
	IsUserBetExisting(id string) bool
	CurrentType() model.BetslipType
	Selections(catalog betslip.Catalog) []model.Selection
	Quote(catalog betslip.Catalog, stake decimal.Decimal) (betslip.Quote, error)
	UserBets() (stream.Stream[[]model.UserBet], error)
}

// Catalog is what the catalog routes need from the catalog service.
type Catalog interface {
	betslip.Catalog
	Loaded() bool
	Snapshot() []model.SportEvent
	FormatStart(t time.Time) string
}

// Server wires HTTP routes for the business API.
type Server struct {
	betslipHandler *BetslipHandler
	watchHandler   *WatchHandler
	eventsHandler  *EventsHandler
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(slip Betslip, catalog Catalog, statsProvider StatsProvider) *Server {
	return &Server{
		betslipHandler: NewBetslipHandler(slip, catalog),
		watchHandler:   NewWatchHandler(slip, catalog),
		eventsHandler:  NewEventsHandler(catalog),
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
	}
}

// Register attaches all routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/events", MetricsMiddleware(s.eventsHandler.HandleGetEvents, "events"))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	r.Route("/betslip", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.betslipHandler.HandleGet, "betslip"))
		r.Delete("/", MetricsMiddleware(s.betslipHandler.HandleClear, "betslip"))
		r.Get("/type", MetricsMiddleware(s.betslipHandler.HandleType, "betslip_type"))
		r.Get("/ws", MetricsMiddleware(s.watchHandler.HandleWatch, "betslip_ws"))
		r.Post("/payout", MetricsMiddleware(s.betslipHandler.HandlePayout, "betslip_payout"))
		r.Get("/bets/{id}", MetricsMiddleware(s.betslipHandler.HandleExists, "betslip_bet"))
		r.Post("/bets/{id}", MetricsMiddleware(s.betslipHandler.HandleAdd, "betslip_bet"))
		r.Delete("/bets/{id}", MetricsMiddleware(s.betslipHandler.HandleRemove, "betslip_bet"))
		r.Post("/bets/{id}/toggle", MetricsMiddleware(s.betslipHandler.HandleToggle, "betslip_toggle"))
	})
}

// Handler returns a router with every route and the standard middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Tracing("slipsync/api"))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	s.Register(r)
	swagger.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKind maps an Error kind to its status.
func writeKind(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, ErrUnresolvable):
		writeError(w, http.StatusUnprocessableEntity, "unresolved_bet", err)
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
