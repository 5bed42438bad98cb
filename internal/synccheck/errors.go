package synccheck

import "errors"

var (
	// ErrNoContexts is returned when no base URL is configured.
	ErrNoContexts = errors.New("no contexts to check")
	// ErrDiverged is returned when contexts still disagree after settling.
	ErrDiverged = errors.New("contexts diverged")
	// ErrUnexpectedState is returned when converged contexts hold a slip
	// other than the one sequential replay predicts.
	ErrUnexpectedState = errors.New("unexpected betslip state")
)
