package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"subsidy-recon/adapters/storage"
	"subsidy-recon/core/output"
	"subsidy-recon/internal/config"
)

var (
	runsCarrier string
	runsLimit   int
	runsSince   string
)

// runsCmd inspects saved reconciliation runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := &storage.ListFilter{Carrier: runsCarrier, Limit: runsLimit}
		if runsSince != "" {
			since, err := time.Parse("2006-01-02", runsSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			filter.Since = since
		}

		store, err := openStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(commandContext(cmd), filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %-6s %5d results  %s  %s\n",
				r.ID, r.Carrier, r.ResultCount, r.CreatedAt.Format(time.RFC3339), r.Fingerprint)
		}
		return nil
	},
}

var runsCompareCmd = &cobra.Command{
	Use:   "compare <old-id> <new-id>",
	Short: "Show purchase price changes between two runs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		cmp, err := store.Compare(commandContext(cmd), args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range cmp.Changed {
			fmt.Fprintf(out, "%-18s %-8s %-13s %12s -> %12s (%s)\n",
				output.Truncate(c.Model, 18), c.PlanGroup, c.OpeningType,
				c.OldPrice.StringFixed(0), c.NewPrice.StringFixed(0), c.Delta.StringFixed(0))
		}
		for _, k := range cmp.Added {
			fmt.Fprintf(out, "+ %s\n", k)
		}
		for _, k := range cmp.Removed {
			fmt.Fprintf(out, "- %s\n", k)
		}
		fmt.Fprintf(out, "%d changed, %d added, %d removed, %d unchanged\n",
			len(cmp.Changed), len(cmp.Added), len(cmp.Removed), cmp.Unchanged)
		return nil
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsCompareCmd)

	runsListCmd.Flags().StringVarP(&runsCarrier, "carrier", "c", "", "only runs for this carrier")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list")
	runsListCmd.Flags().StringVar(&runsSince, "since", "", "only runs created on or after this date (YYYY-MM-DD)")
}
