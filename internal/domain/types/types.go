// Package types contains the read shapes served over HTTP.
package types

import (
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/okian/slipsync/internal/domain/model"
)

// Betslip is the betslip with every bet resolved against the catalog.
type Betslip struct {
	Type string            `json:"type"`
	Bets []model.Selection `json:"bets"`
}

// Mutation reports the outcome of a betslip edit.
type Mutation struct {
	ID      string `json:"id,omitempty"`
	Changed bool   `json:"changed"`
	Present bool   `json:"present"`
	Type    string `json:"type"`
}

// PayoutRequest carries a stake as a decimal string, e.g. "10.00".
type PayoutRequest struct {
	Stake string `json:"stake"`
}

// Payout is a quote with amounts rendered to two decimals.
type Payout struct {
	Type   string            `json:"type"`
	Stake  string            `json:"stake"`
	Odds   []string          `json:"odds"`
	Payout string            `json:"payout"`
	Bets   []model.Selection `json:"bets"`
}

// Event is a catalog event with its markets in key order.
type Event struct {
	ID          uint64   `json:"id"`
	Label       string   `json:"label"`
	Start       string   `json:"start"`
	Competition string   `json:"competition"`
	Category    string   `json:"category"`
	Sport       string   `json:"sport"`
	Markets     []Market `json:"markets"`
}

// Market is one bet group of an event.
type Market struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Choices  []Choice `json:"choices"`
}

// Choice is a selectable outcome. BetID is what the betslip stores.
type Choice struct {
	BetID string  `json:"betId"`
	Label string  `json:"label"`
	Odd   float64 `json:"odd"`
}

// Money renders d with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NewEvent converts ev, with start already formatted by the caller.
func NewEvent(ev model.SportEvent, start string) Event {
	out := Event{
		ID:          ev.ID,
		Label:       ev.Label,
		Start:       start,
		Competition: ev.Competition.Label,
		Category:    ev.Category.Label,
		Sport:       ev.Sport.Label,
		Markets:     make([]Market, 0, len(ev.Bet)),
	}
	keys := make([]string, 0, len(ev.Bet))
	for k := range ev.Bet {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		group := ev.Bet[k]
		m := Market{ID: k, Question: group.Question.Label, Choices: make([]Choice, 0, len(group.Choices))}
		for _, c := range group.Choices {
			m.Choices = append(m.Choices, Choice{
				BetID: BetID(ev.ID, k, c.ID),
				Label: c.Actor.Label,
				Odd:   c.Odd,
			})
		}
		out.Markets = append(out.Markets, m)
	}
	return out
}

// BetID builds the betslip id of a choice: "<event>-<group>-<choice>".
func BetID(event uint64, group string, choice uint64) string {
	return strconv.FormatUint(event, 10) + model.BetIDSeparator + group + model.BetIDSeparator + strconv.FormatUint(choice, 10)
}
