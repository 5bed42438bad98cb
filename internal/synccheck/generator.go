package synccheck

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"

	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/pkg/logger"
)

// randomInt returns a uniform value in [0, n) using crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// seedIDs returns the bet ids edits are drawn from: the configured seed, or
// the choices offered by the first context's catalog.
func seedIDs(ctx context.Context, client *HTTPClient, config *Config) ([]string, error) {
	if len(config.Seed) > 0 {
		return config.Seed, nil
	}
	var events []types.Event
	status, err := client.GetJSON(ctx, config.URLs[0]+"/events", &events)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("catalog unavailable: status %d", status)
	}
	var ids []string
	for _, ev := range events {
		for _, m := range ev.Markets {
			for _, c := range m.Choices {
				ids = append(ids, c.BetID)
				if len(ids) == maxSeedIDs {
					return ids, nil
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("catalog offers no choices")
	}
	return ids, nil
}

// generateOps draws NumOps edits over ids, spread across every context.
func generateOps(ctx context.Context, config *Config, ids []string, stats *Stats) []Op {
	logger.Get().Info(ctx, "generating betslip edits",
		logger.Int("numOps", config.NumOps),
		logger.Int("betIds", len(ids)),
		logger.Int("contexts", len(config.URLs)))

	ops := make([]Op, config.NumOps)
	for i := range ops {
		ops[i] = Op{
			Seq:    i,
			Target: randomInt(len(config.URLs)),
			Kind:   opKinds[randomInt(len(opKinds))],
			BetID:  ids[randomInt(len(ids))],
		}
	}
	stats.OpsGenerated = len(ops)
	return ops
}

// expected replays ops in order and returns the resulting membership. It
// only holds when edits were applied one at a time.
func expected(ops []Op) map[string]bool {
	out := map[string]bool{}
	for _, op := range ops {
		if op.Status >= http.StatusBadRequest || op.Status == 0 {
			continue
		}
		switch op.Kind {
		case OpAdd:
			out[op.BetID] = true
		case OpRemove:
			delete(out, op.BetID)
		case OpToggle:
			if out[op.BetID] {
				delete(out, op.BetID)
			} else {
				out[op.BetID] = true
			}
		}
	}
	return out
}
