package betslip

import "errors"

var (
	// ErrEmptyBetslip is returned when quoting a slip without bets.
	ErrEmptyBetslip = errors.New("betslip is empty")
	// ErrUnresolvedBet is returned when a bet is not in the catalog.
	ErrUnresolvedBet = errors.New("bet not found in catalog")
)
