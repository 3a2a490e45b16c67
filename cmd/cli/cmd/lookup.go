package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
)

var (
	lookupCarrier   string
	lookupPlanGroup string
	lookupType      string
	lookupJSON      bool
)

// lookupCmd prices a single model
var lookupCmd = &cobra.Command{
	Use:   "lookup <model>",
	Short: "Compute the purchase price of one model",
	Long: `Price one model for one carrier and opening type. The model code may
be written in any form, e.g. "sm s928n" or "SM-S928N".

Examples:
  subsidy lookup --carrier SK SM-S928N
  subsidy lookup --carrier KT --type 기변 --plan-group low SM-A155N`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().StringVarP(&lookupCarrier, "carrier", "c", "", "carrier [REQUIRED]")
	lookupCmd.Flags().StringVarP(&lookupPlanGroup, "plan-group", "g", "", "plan group (default per-device selection)")
	lookupCmd.Flags().StringVarP(&lookupType, "type", "t", "PortIn", "opening type")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the result as JSON")
	lookupCmd.MarkFlagRequired("carrier")
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	t, ok := opening.ParseType(lookupType)
	if !ok || !t.IsConcrete() {
		return fmt.Errorf("opening type must be NewLine, PortIn or DeviceChange, got %q", lookupType)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.service.ComputePricing(ctx, lookupCarrier, lookupPlanGroup, t, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if lookupJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(out, "%s %s (%s)\n", r.Carrier, r.Model, modelkey.Normalize(r.Model))
	fmt.Fprintf(out, "  plan group:      %s\n", r.PlanGroup)
	fmt.Fprintf(out, "  opening type:    %s\n", r.OpeningType)
	fmt.Fprintf(out, "  factory price:   %s\n", r.FactoryPrice.StringFixed(0))
	fmt.Fprintf(out, "  public support:  %s\n", r.PublicSupport.StringFixed(0))
	fmt.Fprintf(out, "  policy rebate:   %s\n", r.PolicyRebate.StringFixed(0))
	fmt.Fprintf(out, "  store support:   %s\n", r.StoreSupport.StringFixed(0))
	fmt.Fprintf(out, "  purchase price:  %s\n", r.PurchasePrice.StringFixed(0))
	fmt.Fprintf(out, "  policy margin:   %s\n", r.PolicyMargin.StringFixed(0))
	if r.Insurance != "" {
		fmt.Fprintf(out, "  insurance:       %s\n", r.Insurance)
	}
	return nil
}
