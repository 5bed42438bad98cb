// Package schema validates untrusted JSON before it becomes state.
//
// Stored records carry no type information, so every read goes through a
// Schema that both decodes and checks domain invariants.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/slipsync/internal/domain/model"
)

// Schema decodes and validates raw JSON into T.
type Schema[T any] interface {
	Parse(raw []byte) (T, error)
}

// Func adapts a function to Schema.
type Func[T any] func(raw []byte) (T, error)

// Parse implements Schema.
func (f Func[T]) Parse(raw []byte) (T, error) { return f(raw) }

// JSON decodes raw into T and runs validate on the result. A nil validate
// accepts anything that decodes.
func JSON[T any](validate func(T) error) Schema[T] {
	return Func[T](func(raw []byte) (T, error) {
		var v T
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&v); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if dec.More() {
			var zero T
			return zero, fmt.Errorf("%w: trailing data", ErrMalformed)
		}
		if validate != nil {
			if err := validate(v); err != nil {
				var zero T
				return zero, fmt.Errorf("%w: %w", ErrInvalid, err)
			}
		}
		return v, nil
	})
}

type betslipWire struct {
	Bets *[]userBetWire `json:"bets"`
}

type userBetWire struct {
	ID *string `json:"id"`
}

// Betslip validates the persisted betslip record: "bets" must be an array and
// every entry must carry a string id in the bet id format, with no id repeated.
func Betslip() Schema[*model.Betslip] {
	inner := JSON(func(w betslipWire) error {
		if w.Bets == nil {
			return fmt.Errorf("bets: required array")
		}
		seen := make(map[string]struct{}, len(*w.Bets))
		for i, b := range *w.Bets {
			if b.ID == nil {
				return fmt.Errorf("bets[%d].id: required", i)
			}
			if !model.ValidBetID(*b.ID) {
				return fmt.Errorf("bets[%d].id: %w", i, model.ErrInvalidBetID)
			}
			if _, dup := seen[*b.ID]; dup {
				return fmt.Errorf("bets[%d].id: %w: %s", i, model.ErrDuplicateBet, *b.ID)
			}
			seen[*b.ID] = struct{}{}
		}
		return nil
	})
	return Func[*model.Betslip](func(raw []byte) (*model.Betslip, error) {
		w, err := inner.Parse(raw)
		if err != nil {
			return nil, err
		}
		out := &model.Betslip{Bets: make([]model.UserBet, 0, len(*w.Bets))}
		for _, b := range *w.Bets {
			out.Bets = append(out.Bets, model.UserBet{ID: *b.ID})
		}
		return out, nil
	})
}

// SportEventsResponse is the catalog payload.
type SportEventsResponse struct {
	Events []model.SportEvent `json:"events"`
}

// SportEvents validates a catalog payload. Start times must carry an explicit
// offset, which RFC 3339 decoding already enforces.
func SportEvents() Schema[SportEventsResponse] {
	return JSON(func(r SportEventsResponse) error {
		if r.Events == nil {
			return fmt.Errorf("events: required array")
		}
		for i, ev := range r.Events {
			if ev.Start.Equal(time.Time{}) {
				return fmt.Errorf("events[%d].start: required", i)
			}
			for gid, group := range ev.Bet {
				for j, c := range group.Choices {
					if c.Odd <= 0 {
						return fmt.Errorf("events[%d].bet[%s].choices[%d].odd: must be positive", i, gid, j)
					}
				}
			}
		}
		return nil
	})
}
