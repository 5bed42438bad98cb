package synccheck

import "time"

// Edit kinds.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpToggle = "toggle"
)

var opKinds = []string{OpAdd, OpRemove, OpToggle}

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PollInterval         = 50 * time.Millisecond
	PercentageMultiplier = 100
	maxSeedIDs           = 64
)
