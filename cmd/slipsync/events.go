package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/slipsync/internal/domain/types"
)

func eventsCmd() *cobra.Command {
	var markets bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the sport catalog",
		Long: `List the sport events of the configured catalog source with their
start time in the configured time zone.

Examples:
  SLIPSYNC_CATALOG_FILE=events.json slipsync events
  slipsync events --markets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openContext(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			cat := svc.Catalog()
			if !cat.Loaded() {
				return fmt.Errorf("catalog is not loaded; set catalog_file, catalog_url or catalog_s3_bucket")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ev := range cat.Snapshot() {
				e := types.NewEvent(ev, cat.FormatStart(ev.Start))
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Start, e.Sport, e.Competition, e.Label)
				if !markets {
					continue
				}
				for _, m := range e.Markets {
					for _, c := range m.Choices {
						fmt.Fprintf(w, "\t%s\t%s\t%s\t@ %.2f\n", c.BetID, m.Question, c.Label, c.Odd)
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&markets, "markets", "m", false, "Also list every choice with its bet id")

	return cmd
}
