// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// BetIDSeparator joins the three numeric parts of a bet id.
const BetIDSeparator = "-"

var betIDPattern = regexp.MustCompile(`^\d+-\d+-\d+$`)

// UserBet is one selection on the betslip. ID is "<event>-<group>-<choice>".
type UserBet struct {
	ID string `json:"id"`
}

// Betslip is the persisted betslip record.
type Betslip struct {
	Bets []UserBet `json:"bets"`
}

// MarshalJSON keeps "bets" an array even when empty.
func (b Betslip) MarshalJSON() ([]byte, error) {
	bets := b.Bets
	if bets == nil {
		bets = []UserBet{}
	}
	return json.Marshal(struct {
		Bets []UserBet `json:"bets"`
	}{Bets: bets})
}

// Clone returns a betslip that shares no backing array with b.
func (b *Betslip) Clone() *Betslip {
	if b == nil {
		return nil
	}
	out := &Betslip{Bets: make([]UserBet, len(b.Bets))}
	copy(out.Bets, b.Bets)
	return out
}

// Equal reports whether b and other hold the same bets in the same order. Two
// nil betslips are equal; nil never equals a non-nil betslip.
func (b *Betslip) Equal(other *Betslip) bool {
	if b == nil || other == nil {
		return b == other
	}
	return slices.Equal(b.Bets, other.Bets)
}

// Has reports whether a bet with id is on the slip.
func (b *Betslip) Has(id string) bool {
	if b == nil {
		return false
	}
	for _, bet := range b.Bets {
		if bet.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the bet ids in slip order.
func (b *Betslip) IDs() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.Bets))
	for i, bet := range b.Bets {
		out[i] = bet.ID
	}
	return out
}

// BetID is a parsed UserBet id.
type BetID struct {
	Event  uint64
	Group  uint64
	Choice uint64
}

// ValidBetID reports whether id matches the wire format and every part fits
// in a uint64, the same rule ParseBetID applies.
func ValidBetID(id string) bool {
	_, err := ParseBetID(id)
	return err == nil
}

// ParseBetID splits and validates a bet id.
func ParseBetID(id string) (BetID, error) {
	if !betIDPattern.MatchString(id) {
		return BetID{}, fmt.Errorf("%w: %q", ErrInvalidBetID, id)
	}
	parts := strings.Split(id, BetIDSeparator)
	var nums [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return BetID{}, fmt.Errorf("%w: %q: %v", ErrInvalidBetID, id, err)
		}
		nums[i] = n
	}
	return BetID{Event: nums[0], Group: nums[1], Choice: nums[2]}, nil
}

// String renders the wire form.
func (b BetID) String() string {
	return fmt.Sprintf("%d-%d-%d", b.Event, b.Group, b.Choice)
}

// GroupKey returns the catalog key of the bet group ("<group>").
func (b BetID) GroupKey() string {
	return strconv.FormatUint(b.Group, 10)
}

// BetPrefix returns the "<event>-<group>" part of id: the first two
// dash-delimited segments, or the whole id when it has fewer.
func BetPrefix(id string) string {
	parts := strings.SplitN(id, BetIDSeparator, 3)
	if len(parts) < 3 {
		return id
	}
	return parts[0] + BetIDSeparator + parts[1]
}

// BetslipType is the derived ticket classification.
type BetslipType int

// Ticket types.
const (
	BetslipNone BetslipType = iota
	BetslipSingle
	BetslipMultiple
	BetslipSystem
)

// BetslipTypes lists every ticket type.
var BetslipTypes = []BetslipType{BetslipNone, BetslipSingle, BetslipMultiple, BetslipSystem}

func (t BetslipType) String() string {
	switch t {
	case BetslipSingle:
		return "Single"
	case BetslipMultiple:
		return "Multiple"
	case BetslipSystem:
		return "System"
	default:
		return "None"
	}
}

// MarshalText encodes the type by name.
func (t BetslipType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
