package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/okian/slipsync/internal/domain/types"
)

func payoutCmd() *cobra.Command {
	var stake string

	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Quote the payout of a stake on the betslip",
		Long: `Quote the payout of a stake on the current betslip.

Every bet must resolve against the catalog. Amounts use fixed-point
arithmetic and are rounded to two decimals.

Examples:
  slipsync payout --stake 10
  slipsync payout -s 2.50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(stake)
			if err != nil {
				return fmt.Errorf("invalid stake %q: %w", stake, err)
			}
			if !amount.IsPositive() {
				return fmt.Errorf("stake must be positive, got %s", stake)
			}

			svc, err := openContext(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			if !svc.Catalog().Loaded() {
				return fmt.Errorf("catalog is not loaded; set catalog_file, catalog_url or catalog_s3_bucket")
			}
			q, err := svc.Betslip().Quote(svc.Catalog(), amount)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type:   %s\n", q.Type)
			for i, sel := range q.Selections {
				fmt.Fprintf(out, "  %s  %s: %s @ %s\n", sel.BetID, sel.Question, sel.Choice, q.Odds[i])
			}
			fmt.Fprintf(out, "stake:  %s\n", types.Money(q.Stake))
			fmt.Fprintf(out, "payout: %s\n", types.Money(q.Payout))
			return nil
		},
	}

	cmd.Flags().StringVarP(&stake, "stake", "s", "1", "Stake as a decimal amount")

	return cmd
}
