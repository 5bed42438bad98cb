package model

import "errors"

// Sentinel kinds for domain model errors.
var (
	ErrInvalidBetID = errors.New("invalid bet id")
	ErrDuplicateBet = errors.New("duplicate bet")
)
