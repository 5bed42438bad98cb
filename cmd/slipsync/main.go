package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/pkg/logger"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "slipsync",
		Short: "Betslip and sport catalog kept in sync across contexts",
		Long: `slipsync keeps a betslip consistent between every context of an origin.

Contexts share two storage areas and hear each other's writes through a
change transport. Memory, Redis and PostgreSQL back both.

Configuration comes from defaults, an optional YAML file (--config or
SLIPSYNC_CONFIG) and SLIPSYNC_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv(config.EnvFile, configFile)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides SLIPSYNC_CONFIG)")

	rootCmd.AddCommand(
		serveCmd(),
		betslipCmd(),
		payoutCmd(),
		eventsCmd(),
		syncCheckCmd(),
		versionCmd(),
	)

	return rootCmd
}

// setup loads the configuration and initializes logging on stderr, keeping
// stdout for command output.
func setup(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// openContext starts a short-lived context for one-shot commands. It sees
// the state of running servers only when the configured drivers are shared.
func openContext(ctx context.Context) (*app.Service, error) {
	cfg, err := setup(ctx)
	if err != nil {
		return nil, err
	}
	svc := app.New(cfg, app.WithLogger(logger.Get()))
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start context: %w", err)
	}
	return svc, nil
}
