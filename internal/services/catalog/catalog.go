// Package catalog holds the sport events offered for betting.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/schema"
	"github.com/okian/slipsync/internal/reactive"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
	"github.com/okian/slipsync/pkg/stream"
)

// StartLayout renders event start times, e.g. "Wed, 24 Mar 20:45".
const StartLayout = "Mon, 02 Jan 15:04"

// Service is the sport catalog. Its state is nil until the first successful
// Load.
type Service struct {
	source   Source
	schema   schema.Schema[schema.SportEventsResponse]
	location *time.Location
	logger   logger.Logger
	state    *reactive.Container[[]model.SportEvent]
}

// New creates an empty catalog.
func New(ctx context.Context, opts ...Option) (*Service, error) {
	s := &Service{
		schema:   schema.SportEvents(),
		location: time.UTC,
		logger:   logger.GetOr(logger.Nop()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("SportService")
	state, err := reactive.New[[]model.SportEvent](ctx, nil,
		reactive.WithName("catalog"), reactive.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.state = state
	return s, nil
}

// Load fetches and validates the catalog. On failure the error is logged,
// returned and the current events are kept.
func (s *Service) Load(ctx context.Context) error {
	if s.source == nil {
		return ErrNoSource
	}
	start := time.Now()
	events, err := s.fetch(ctx)
	if err != nil {
		metrics.RecordCatalogFetch(s.source.Name(), "error", time.Since(start))
		metrics.RecordErrorByComponent("catalog", "fetch")
		s.logger.Error(ctx, "fetchEvents", logger.String("source", s.source.Name()), logger.Error(err))
		return err
	}
	metrics.RecordCatalogFetch(s.source.Name(), "ok", time.Since(start))
	metrics.UpdateCatalogEvents(len(events))
	s.state.Set(ctx, events, false)
	s.logger.Debug(ctx, "fetchEvents", logger.Int("events", len(events)))
	return nil
}

func (s *Service) fetch(ctx context.Context) ([]model.SportEvent, error) {
	raw, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.schema.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", s.source.Name(), err)
	}
	return resp.Events, nil
}

// Loaded reports whether a catalog was loaded.
func (s *Service) Loaded() bool {
	return s.state.Value() != nil
}

// Snapshot returns the labeled events, or nil before the first load.
func (s *Service) Snapshot() []model.SportEvent {
	return reactive.Select(s.state, labeled)
}

// Events streams the labeled events. It emits nil until the catalog loads.
func (s *Service) Events() (stream.Stream[[]model.SportEvent], error) {
	return reactive.Observe(s.state, labeled)
}

func labeled(events []model.SportEvent) []model.SportEvent {
	if events == nil {
		return nil
	}
	out := make([]model.SportEvent, 0, len(events))
	for _, ev := range events {
		if ev.Label != "" {
			out = append(out, ev)
		}
	}
	return out
}

// Lookup resolves a bet id against the catalog. Found is false when the
// event, group or choice is unknown.
func (s *Service) Lookup(betID string) model.Selection {
	sel := model.Selection{BetID: betID}
	id, err := model.ParseBetID(betID)
	if err != nil {
		return sel
	}
	for _, ev := range s.state.Value() {
		if ev.ID != id.Event {
			continue
		}
		sel.Event = ev.Label
		sel.Start = s.FormatStart(ev.Start)
		group, ok := ev.Bet[id.GroupKey()]
		if !ok {
			return sel
		}
		sel.Question = group.Question.Label
		for _, c := range group.Choices {
			if c.ID == id.Choice {
				sel.Choice = c.Actor.Label
				sel.Odd = c.Odd
				sel.Found = true
				return sel
			}
		}
		return sel
	}
	return sel
}

// FormatStart renders t in the service location. The zero time renders
// as "".
func (s *Service) FormatStart(t time.Time) string {
	return FormatStart(t, s.location)
}

// FormatStart renders t in loc (UTC when nil) with StartLayout. The zero
// time renders as "".
func FormatStart(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(StartLayout)
}

// ParseAndFormat parses an RFC 3339 timestamp and formats it in loc. Invalid
// input renders as "".
func ParseAndFormat(value string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return ""
	}
	return FormatStart(t, loc)
}

// Dispose releases the catalog state.
func (s *Service) Dispose() {
	s.state.Dispose()
}
