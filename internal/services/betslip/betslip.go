// Package betslip is the betslip service: a persisted, cross-context
// synchronized list of user bets.
package betslip

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/okian/slipsync/internal/adapters/listener"
	"github.com/okian/slipsync/internal/adapters/repository"
	rules "github.com/okian/slipsync/internal/domain/betslip"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/schema"
	"github.com/okian/slipsync/internal/reactive"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
	"github.com/okian/slipsync/pkg/stream"
)

// DefaultKey is the localStorage key holding the betslip.
const DefaultKey = "betslip"

// Catalog resolves bet ids into selections.
type Catalog interface {
	Lookup(betID string) model.Selection
}

// Service manages the betslip of one context.
type Service struct {
	key    string
	logger logger.Logger
	state  *reactive.Container[*model.Betslip]
}

// New creates the service, reading the stored betslip and following changes
// made by other contexts.
func New(ctx context.Context, storage *repository.Storage, l *listener.Listener, opts ...Option) (*Service, error) {
	s := &Service{key: DefaultKey, logger: logger.GetOr(logger.Nop())}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("BetslipService")
	state, err := reactive.New[*model.Betslip](ctx, nil,
		reactive.WithName("betslip"),
		reactive.WithLogger(s.logger),
		reactive.WithEqual((*model.Betslip).Equal),
		reactive.WithStorage(storage, l, reactive.Binding[*model.Betslip]{
			Area:   repository.LocalStorage,
			Key:    s.key,
			Schema: schema.Betslip(),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("betslip: %w", err)
	}
	s.state = state
	sizes, err := reactive.Observe(state, func(b *model.Betslip) *model.Betslip { return b })
	if err != nil {
		return nil, err
	}
	// The subscription ends when Dispose completes the container.
	sizes.Subscribe(s.report)
	return s, nil
}

func (s *Service) report(b *model.Betslip) {
	size := 0
	if b != nil {
		size = len(b.Bets)
	}
	metrics.UpdateBetslip(size, rules.ClassifySlip(b).String(), typeNames())
}

func typeNames() []string {
	out := make([]string, len(model.BetslipTypes))
	for i, t := range model.BetslipTypes {
		out[i] = t.String()
	}
	return out
}

// Key returns the storage key of the betslip.
func (s *Service) Key() string { return s.key }

// AddUserBet appends id unless it is already on the slip. It reports whether
// the slip changed.
func (s *Service) AddUserBet(ctx context.Context, id string) (bool, error) {
	if err := s.validate(ctx, "add", id); err != nil {
		return false, err
	}
	changed := s.state.Update(ctx, func(cur *model.Betslip) *model.Betslip {
		if cur.Has(id) {
			return cur
		}
		next := cur.Clone()
		if next == nil {
			next = &model.Betslip{}
		}
		next.Bets = append(next.Bets, model.UserBet{ID: id})
		return next
	}, true)
	s.record(ctx, "add", id, changed)
	return changed, nil
}

// RemoveBet removes id when present. It reports whether the slip changed.
func (s *Service) RemoveBet(ctx context.Context, id string) (bool, error) {
	if err := s.validate(ctx, "remove", id); err != nil {
		return false, err
	}
	changed := s.state.Update(ctx, func(cur *model.Betslip) *model.Betslip {
		if !cur.Has(id) {
			return cur
		}
		next := &model.Betslip{Bets: make([]model.UserBet, 0, len(cur.Bets)-1)}
		for _, b := range cur.Bets {
			if b.ID != id {
				next.Bets = append(next.Bets, b)
			}
		}
		return next
	}, true)
	s.record(ctx, "remove", id, changed)
	return changed, nil
}

// ToggleUserBet removes id when present and adds it otherwise. It reports
// whether id is on the slip afterwards.
func (s *Service) ToggleUserBet(ctx context.Context, id string) (bool, error) {
	if err := s.validate(ctx, "toggle", id); err != nil {
		return false, err
	}
	var present bool
	changed := s.state.Update(ctx, func(cur *model.Betslip) *model.Betslip {
		next := cur.Clone()
		if next == nil {
			next = &model.Betslip{}
		}
		if i := slices.IndexFunc(next.Bets, func(b model.UserBet) bool { return b.ID == id }); i >= 0 {
			next.Bets = slices.Delete(next.Bets, i, i+1)
			present = false
			return next
		}
		next.Bets = append(next.Bets, model.UserBet{ID: id})
		present = true
		return next
	}, true)
	s.record(ctx, "toggle", id, changed)
	return changed && present, nil
}

// Clear removes every bet, keeping an empty slip.
func (s *Service) Clear(ctx context.Context) bool {
	changed := s.state.Update(ctx, func(cur *model.Betslip) *model.Betslip {
		if cur == nil || len(cur.Bets) == 0 {
			return cur
		}
		return &model.Betslip{Bets: []model.UserBet{}}
	}, true)
	s.record(ctx, "clear", "", changed)
	return changed
}

func (s *Service) validate(ctx context.Context, op, id string) error {
	if _, err := model.ParseBetID(id); err != nil {
		metrics.RecordBetslipOp(op, "invalid")
		s.logger.Error(ctx, op, logger.String("id", id), logger.Error(err))
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, op, id string, changed bool) {
	result := "noop"
	if changed {
		result = "ok"
	}
	metrics.RecordBetslipOp(op, result)
	s.logger.Debug(ctx, op, logger.String("id", id), logger.String("result", result))
}

// IsUserBetExisting reports whether id is on the slip.
func (s *Service) IsUserBetExisting(id string) bool {
	return reactive.Select(s.state, func(b *model.Betslip) bool { return b.Has(id) })
}

// IsUserBetExistingStream streams whether id is on the slip.
func (s *Service) IsUserBetExistingStream(id string) (stream.Stream[bool], error) {
	return reactive.Observe(s.state, func(b *model.Betslip) bool { return b.Has(id) })
}

// UserBets streams the bets on the slip. Nothing is emitted while there is
// no betslip.
func (s *Service) UserBets() (stream.Stream[[]model.UserBet], error) {
	slips, err := reactive.Observe(s.state, func(b *model.Betslip) *model.Betslip { return b })
	if err != nil {
		return stream.Stream[[]model.UserBet]{}, err
	}
	present := stream.Filter(slips, func(b *model.Betslip) bool { return b != nil })
	return stream.Map(present, func(b *model.Betslip) []model.UserBet {
		return slices.Clone(b.Bets)
	}), nil
}

// BetslipType streams the ticket classification.
func (s *Service) BetslipType() (stream.Stream[model.BetslipType], error) {
	return reactive.Observe(s.state, rules.ClassifySlip)
}

// CurrentType returns the current ticket classification.
func (s *Service) CurrentType() model.BetslipType {
	return reactive.Select(s.state, rules.ClassifySlip)
}

// Snapshot returns a copy of the current betslip, nil when there is none.
func (s *Service) Snapshot() *model.Betslip {
	return s.state.Value().Clone()
}

// Selections resolves every bet against catalog, in slip order.
func (s *Service) Selections(catalog Catalog) []model.Selection {
	bets := s.state.Value()
	if bets == nil {
		return nil
	}
	out := make([]model.Selection, 0, len(bets.Bets))
	for _, b := range bets.Bets {
		out = append(out, catalog.Lookup(b.ID))
	}
	return out
}

// Quote is the payout of a stake on the current slip.
type Quote struct {
	Type       model.BetslipType `json:"type"`
	Stake      decimal.Decimal   `json:"stake"`
	Odds       []decimal.Decimal `json:"odds"`
	Payout     decimal.Decimal   `json:"payout"`
	Selections []model.Selection `json:"selections"`
}

// Quote computes the fixed-point payout of stake over every resolved
// selection. Unresolved bets fail with ErrUnresolvedBet.
func (s *Service) Quote(catalog Catalog, stake decimal.Decimal) (Quote, error) {
	sels := s.Selections(catalog)
	q := Quote{Type: s.CurrentType(), Stake: stake, Selections: sels}
	if len(sels) == 0 {
		return q, ErrEmptyBetslip
	}
	for _, sel := range sels {
		if !sel.Found {
			return q, fmt.Errorf("%w: %s", ErrUnresolvedBet, sel.BetID)
		}
		q.Odds = append(q.Odds, decimal.NewFromFloat(sel.Odd))
	}
	q.Payout = rules.Payout(stake, q.Odds...)
	return q, nil
}

// Dispose stops following storage and completes every stream.
func (s *Service) Dispose() {
	s.state.Dispose()
}
