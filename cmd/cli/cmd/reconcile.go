package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subsidy-recon/adapters/storage"
	"subsidy-recon/core/opening"
	"subsidy-recon/core/output"
	"subsidy-recon/core/reconcile"
	"subsidy-recon/internal/logging"
)

var (
	reconcileCarriers   []string
	reconcilePlanGroups []string
	reconcileTypes      []string
	reconcileModels     []string
	reconcileFormat     string
	reconcileSave       bool
)

// reconcileCmd runs the pipeline over the configured carriers
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compute purchase prices for every device",
	Long: `Load each carrier's device list, support tables and policy tables and
compute the purchase price for every device, plan group and opening type.

A carrier whose tables cannot be read is reported as failed; the other
carriers still complete.

Examples:
  subsidy reconcile
  subsidy reconcile --carrier SK --carrier KT
  subsidy reconcile --type MNP --plan-group high --format json
  subsidy reconcile --save`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringSliceVarP(&reconcileCarriers, "carrier", "c", nil, "carriers to price (default all)")
	reconcileCmd.Flags().StringSliceVarP(&reconcilePlanGroups, "plan-group", "g", nil, "fixed plan groups (default per-device selection)")
	reconcileCmd.Flags().StringSliceVarP(&reconcileTypes, "type", "t", nil, "opening types, e.g. NewLine, MNP, 기변 (default all)")
	reconcileCmd.Flags().StringSliceVarP(&reconcileModels, "model", "m", nil, "limit to these model codes")
	reconcileCmd.Flags().StringVarP(&reconcileFormat, "format", "f", "table", "output format (table, json, markdown)")
	reconcileCmd.Flags().BoolVar(&reconcileSave, "save", false, "save results to the configured store")
}

func parseTypes(labels []string) ([]opening.Type, error) {
	var out []opening.Type
	for _, l := range labels {
		t, ok := opening.ParseType(l)
		if !ok {
			return nil, fmt.Errorf("invalid opening type %q", l)
		}
		out = append(out, t)
	}
	return out, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	format := output.Format(reconcileFormat)
	if _, ok := output.Default().GetFormatter(format); !ok {
		return fmt.Errorf("unknown format %q (available: %v)", reconcileFormat, output.Default().Formats())
	}
	types, err := parseTypes(reconcileTypes)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.service.Reconcile(ctx, reconcile.Request{
		Carriers:     reconcileCarriers,
		PlanGroups:   reconcilePlanGroups,
		OpeningTypes: types,
		Models:       reconcileModels,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := output.Render(out, format, report); err != nil {
		return err
	}

	if reconcileSave {
		return saveReport(ctx, a, out, report)
	}
	return nil
}

func saveReport(ctx context.Context, a *app, out io.Writer, report *reconcile.Report) error {
	store, err := openStore(a.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := logging.Component("store")
	for _, run := range storage.FromReport(report) {
		if err := store.Save(ctx, run); err != nil {
			return fmt.Errorf("failed to save %s results: %w", run.Carrier, err)
		}
		logger.Info("saved run",
			zap.String("id", run.ID),
			zap.String("carrier", run.Carrier),
			zap.Int("results", run.ResultCount))
		fmt.Fprintf(out, "Saved %s run %s (%d results)\n", run.Carrier, run.ID, run.ResultCount)
	}
	return nil
}
