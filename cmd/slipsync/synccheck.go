package main

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/slipsync/internal/synccheck"
	"github.com/okian/slipsync/pkg/logger"
)

// Default sync check constants.
const (
	defaultNumOps      = 200
	defaultPause       = 25 * time.Millisecond
	defaultTimeout     = 30 * time.Second
	defaultSettle      = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func syncCheckCmd() *cobra.Command {
	config := &synccheck.Config{}

	cmd := &cobra.Command{
		Use:   "sync-check",
		Short: "Edit the betslip through several servers and verify they converge",
		Long: `Edit the betslip through the HTTP API of several servers of one origin,
then poll until every server reports the same slip.

With a single worker edits are applied one at a time and the final slip
must also match a replay of the edits.

Examples:
  slipsync sync-check -u http://localhost:9080 -u http://localhost:9081
  slipsync sync-check -u http://a:9080 -u http://b:9080 --ops 1000 --workers 8 --pause 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if config.Verbose {
				_ = logger.SetLevelString("debug")
			}
			if config.Workers > maxWorkers {
				config.Workers = maxWorkers
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()

			_, err := synccheck.Run(ctx, config)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&config.URLs, "url", "u", []string{"http://localhost:9080"}, "Base URL of a server; repeat for each context")
	flags.IntVarP(&config.NumOps, "ops", "n", defaultNumOps, "Number of betslip edits to submit")
	flags.IntVarP(&config.Workers, "workers", "w", 1, "Number of concurrent workers")
	flags.DurationVar(&config.Pause, "pause", defaultPause, "Delay between edits of one worker")
	flags.DurationVar(&config.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	flags.DurationVar(&config.Settle, "settle", defaultSettle, "How long servers get to converge")
	flags.StringSliceVar(&config.Seed, "bet", nil, "Bet id to edit; repeat to set the pool (default: read from /events)")
	flags.StringVarP(&config.Output, "output", "o", "", "Write the submitted edits to this JSON file")
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Log every edit")

	return cmd
}

// maxWorkers bounds --workers to what the machine can drive.
var maxWorkers = runtime.NumCPU() * 4
