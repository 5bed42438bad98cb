package synccheck

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/pkg/logger"
)

// ids returns the bet ids of b in slip order.
func ids(b types.Betslip) []string {
	out := make([]string, len(b.Bets))
	for i, bet := range b.Bets {
		out[i] = bet.BetID
	}
	return out
}

// converged reports whether every slip lists the same bets in the same
// order.
func converged(slips []types.Betslip) bool {
	for _, s := range slips[1:] {
		if !slices.Equal(ids(slips[0]), ids(s)) {
			return false
		}
	}
	return true
}

// fetchBetslips reads the betslip of every context.
func fetchBetslips(ctx context.Context, client *HTTPClient, urls []string) ([]types.Betslip, error) {
	out := make([]types.Betslip, len(urls))
	for i, base := range urls {
		status, err := client.GetJSON(ctx, base+"/betslip", &out[i])
		if err != nil {
			return nil, fmt.Errorf("read betslip of %s: %w", base, err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("read betslip of %s: status %d", base, status)
		}
	}
	return out, nil
}

// awaitConvergence polls every context until their slips agree or Settle
// elapses.
func awaitConvergence(ctx context.Context, client *HTTPClient, config *Config, stats *Stats) ([]types.Betslip, error) {
	deadline := time.Now().Add(config.Settle)
	for {
		slips, err := fetchBetslips(ctx, client, config.URLs)
		stats.Polls++
		if err != nil {
			return nil, err
		}
		if converged(slips) {
			return slips, nil
		}
		if time.Now().After(deadline) {
			for i, s := range slips {
				logger.Get().Error(ctx, "diverged betslip",
					logger.String("url", config.URLs[i]),
					logger.Any("bets", ids(s)))
			}
			return slips, fmt.Errorf("%w after %s", ErrDiverged, config.Settle)
		}
		select {
		case <-ctx.Done():
			return slips, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// verifyExpected compares the converged membership with a sequential
// replay of ops.
func verifyExpected(ctx context.Context, ops []Op, slip types.Betslip) error {
	want := make([]string, 0)
	for id := range expected(ops) {
		want = append(want, id)
	}
	got := ids(slip)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return fmt.Errorf("%w: want %v, got %v", ErrUnexpectedState, want, got)
	}
	logger.Get().Info(ctx, "betslip matches sequential replay", logger.Int("bets", len(got)))
	return nil
}
