package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"subsidy-recon/core/reconcile"
	"subsidy-recon/core/subsidy"
)

// TableFormatter renders a boxed table per carrier
type TableFormatter struct{}

func (TableFormatter) Format() Format { return FormatTable }

func (TableFormatter) Render(w io.Writer, report *reconcile.Report) error {
	for _, c := range report.Carriers {
		fmt.Fprintf(w, "== %s: %s, %d devices, %d results (%s)\n",
			c.Carrier, c.State, c.Devices, len(c.Results), c.Duration.Round(time.Millisecond))
		if c.Error != "" {
			fmt.Fprintf(w, "   error: %s\n", c.Error)
		}
		for _, warn := range c.Warnings {
			fmt.Fprintf(w, "   warning [%s]: %s\n", warn.Table, warn.Message)
		}
		if len(c.Results) > 0 {
			writeTable(w, c.Results)
		}
	}
	_, err := fmt.Fprintf(w, "\nRun %s completed in %s\n",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return err
}

const rowFormat = "│ %-18s %-8s %-13s %12s %12s %12s %12s %10s │\n"

func writeTable(w io.Writer, results []subsidy.Result) {
	line := strings.Repeat("─", 104)
	fmt.Fprintf(w, "┌%s┐\n", line)
	fmt.Fprintf(w, rowFormat, "MODEL", "PLAN", "TYPE", "FACTORY", "SUPPORT", "STORE", "PURCHASE", "MARGIN")
	fmt.Fprintf(w, "├%s┤\n", line)
	for _, r := range results {
		fmt.Fprintf(w, rowFormat,
			Truncate(r.Model, 18),
			Truncate(r.PlanGroup, 8),
			r.OpeningType,
			r.FactoryPrice.StringFixed(0),
			r.PublicSupport.StringFixed(0),
			r.StoreSupport.StringFixed(0),
			r.PurchasePrice.StringFixed(0),
			r.PolicyMargin.StringFixed(0))
	}
	fmt.Fprintf(w, "└%s┘\n", line)
}

// Truncate shortens s to maxLen runes, marking the cut with "..."
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
