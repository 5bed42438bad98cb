package synccheck

import (
	"time"

	"github.com/okian/slipsync/internal/domain/types"
)

// Config holds configuration for a sync check run.
type Config struct {
	URLs    []string      // Base URLs of the contexts under test
	NumOps  int           // Number of betslip edits to submit
	Workers int           // Number of concurrent workers
	Pause   time.Duration // Delay between edits of one worker
	Timeout time.Duration // HTTP request timeout
	Settle  time.Duration // How long contexts get to converge
	Seed    []string      // Bet ids to edit; empty means read them from /events
	Output  string        // Output file for the submitted edits
	Verbose bool          // Enable verbose logging
}

// Op is one betslip edit sent to one context.
type Op struct {
	Seq    int    `json:"seq"`
	Target int    `json:"target"`
	Kind   string `json:"kind"`
	BetID  string `json:"bet_id"`
	Status int    `json:"status,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	OpsGenerated  int
	OpsSubmitted  int
	OpsChanged    int
	OpsNoop       int
	OpsFailed     int
	Polls         int
	ConvergedIn   time.Duration
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	FinalBetslips []types.Betslip
}
