package synccheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/slipsync/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes a complete sync check: it edits the betslip through every
// context and verifies they converge.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		StartTime: time.Now(),
	}
	if len(config.URLs) == 0 {
		return stats, ErrNoContexts
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	logger.Get().Info(ctx, "starting slipsync sync check",
		logger.Any("urls", config.URLs),
		logger.Int("ops", config.NumOps),
		logger.Int("workers", config.Workers),
		logger.Duration("pause", config.Pause),
		logger.Duration("settle", config.Settle))

	client := newHTTPClient(config.Timeout)

	// Step 1: Check every context is up
	if err := checkServiceHealth(ctx, client, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Start from an empty slip
	if err := clearBetslip(ctx, client, config.URLs[0]); err != nil {
		return stats, fmt.Errorf("clearing betslip failed: %w", err)
	}
	if _, err := awaitConvergence(ctx, client, config, stats); err != nil {
		return stats, fmt.Errorf("initial convergence failed: %w", err)
	}

	// Step 3: Generate edits
	ids, err := seedIDs(ctx, client, config)
	if err != nil {
		return stats, fmt.Errorf("edit generation failed: %w", err)
	}
	ops := generateOps(ctx, config, ids, stats)

	// Step 4: Submit edits
	submitOps(ctx, config, ops, stats)

	// Step 5: Wait for every context to hold the same slip
	began := time.Now()
	final, err := awaitConvergence(ctx, client, config, stats)
	stats.FinalBetslips = final
	if err != nil {
		return stats, err
	}
	stats.ConvergedIn = time.Since(began)

	// Step 6: With one worker the outcome is deterministic
	if config.Workers == 1 {
		if err := verifyExpected(ctx, ops, final[0]); err != nil {
			return stats, err
		}
	}

	if config.Output != "" {
		if err := saveOpsToFile(ctx, config.Output, ops); err != nil {
			logger.Get().Warn(ctx, "failed to save edits to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	logger.Get().Info(ctx, "sync check completed successfully")
	return stats, nil
}

// checkServiceHealth verifies every context is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, config *Config) error {
	for _, base := range config.URLs {
		resp, err := client.Get(ctx, base+"/healthz")
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", base, err)
		}
		if _, err := readResponseBody(resp); err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s health check failed with status: %d", base, resp.StatusCode)
		}
	}
	logger.Get().Info(ctx, "contexts are healthy", logger.Int("count", len(config.URLs)))
	return nil
}

func clearBetslip(ctx context.Context, client *HTTPClient, base string) error {
	resp, err := client.Do(ctx, http.MethodDelete, base+"/betslip")
	if err != nil {
		return err
	}
	if _, err := readResponseBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clear returned status %d", resp.StatusCode)
	}
	return nil
}

// saveOpsToFile writes the submitted edits as a JSON array.
func saveOpsToFile(ctx context.Context, filename string, ops []Op) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(ops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal edits: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "edits saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, opsPerSecond float64

	if stats.OpsSubmitted > 0 {
		successRate = float64(stats.OpsSubmitted-stats.OpsFailed) / float64(stats.OpsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		opsPerSecond = float64(stats.OpsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("opsGenerated", stats.OpsGenerated),
		logger.Int("opsSubmitted", stats.OpsSubmitted),
		logger.Int("opsChanged", stats.OpsChanged),
		logger.Int("opsNoop", stats.OpsNoop),
		logger.Int("opsFailed", stats.OpsFailed),
		logger.Int("polls", stats.Polls),
		logger.Duration("convergedIn", stats.ConvergedIn),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("opsPerSecond", opsPerSecond))
}
