package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/okian/slipsync/internal/app"
	"github.com/okian/slipsync/internal/domain/model"
)

func betslipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "betslip",
		Short: "Read and edit the betslip",
		Long: `Read and edit the betslip of the origin.

Each command runs a short-lived context. With the memory drivers it starts
empty; point local_driver and transport at Redis or PostgreSQL to work on
the slip a running server holds.

Examples:
  slipsync betslip add 3340789-953125720-4194768007
  slipsync betslip toggle 1-10-5 2-11-6
  slipsync betslip show
  slipsync betslip watch`,
	}

	cmd.AddCommand(
		editCmd("add", "Add bets unless already on the slip", func(ctx context.Context, svc *app.Service, id string) (bool, error) {
			return svc.Betslip().AddUserBet(ctx, id)
		}),
		editCmd("remove", "Remove bets from the slip", func(ctx context.Context, svc *app.Service, id string) (bool, error) {
			return svc.Betslip().RemoveBet(ctx, id)
		}),
		editCmd("toggle", "Add bets that are missing and remove those present", func(ctx context.Context, svc *app.Service, id string) (bool, error) {
			return svc.Betslip().ToggleUserBet(ctx, id)
		}),
		clearCmd(),
		showCmd(),
		watchCmd(),
	)

	return cmd
}

// editCmd builds a command applying edit to every bet id argument.
func editCmd(use, short string, edit func(context.Context, *app.Service, string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bet-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := openContext(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			out := cmd.OutOrStdout()
			for _, id := range args {
				result, err := edit(ctx, svc, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s: %t\n", use, id, result)
			}
			fmt.Fprintf(out, "type: %s\n", svc.Betslip().CurrentType())
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every bet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openContext(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			changed := svc.Betslip().Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "cleared: %t\n", changed)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the betslip resolved against the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openContext(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			printSlip(cmd.OutOrStdout(), svc)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the betslip every time any context changes it",
		Long: `Print the betslip every time any context of the origin changes it,
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := openContext(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			return watch(ctx, cmd.OutOrStdout(), svc)
		},
	}
}

// watch prints every betslip emitted until ctx ends.
func watch(ctx context.Context, out io.Writer, svc *app.Service) error {
	bets, err := svc.Betslip().UserBets()
	if err != nil {
		return err
	}
	sub := bets.Subscribe(func(b []model.UserBet) {
		ids := make([]string, len(b))
		for i, bet := range b {
			ids[i] = bet.ID
		}
		fmt.Fprintf(out, "[%s] %s\n", svc.Betslip().CurrentType(), strings.Join(ids, " "))
	})
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func printSlip(out io.Writer, svc *app.Service) {
	slip := svc.Betslip()
	fmt.Fprintf(out, "type: %s\n", slip.CurrentType())
	for _, sel := range slip.Selections(svc.Catalog()) {
		if !sel.Found {
			fmt.Fprintf(out, "  %s  (not in catalog)\n", sel.BetID)
			continue
		}
		fmt.Fprintf(out, "  %s  %s  %s  %s: %s @ %.2f\n",
			sel.BetID, sel.Event, sel.Start, sel.Question, sel.Choice, sel.Odd)
	}
}
