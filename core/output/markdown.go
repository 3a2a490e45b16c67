package output

import (
	"fmt"
	"io"
	"strings"

	"subsidy-recon/core/reconcile"
)

// MarkdownFormatter renders one section per carrier, for pasting into chat
// or a wiki page
type MarkdownFormatter struct{}

func (MarkdownFormatter) Format() Format { return FormatMarkdown }

func (MarkdownFormatter) Render(w io.Writer, report *reconcile.Report) error {
	fmt.Fprintf(w, "# Pricing run %s\n\n", report.RunID)
	fmt.Fprintf(w, "Generated %s\n", report.FinishedAt.Format("2006-01-02 15:04:05"))

	for _, c := range report.Carriers {
		fmt.Fprintf(w, "\n## %s (%s)\n\n", c.Carrier, c.State)
		if c.Error != "" {
			fmt.Fprintf(w, "> **Failed:** %s\n\n", escape(c.Error))
		}
		for _, warn := range c.Warnings {
			fmt.Fprintf(w, "- warning `%s`: %s\n", warn.Table, escape(warn.Message))
		}
		if len(c.Results) == 0 {
			continue
		}
		if len(c.Warnings) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "| Model | Name | Plan | Type | Factory | Support | Store | Purchase |")
		fmt.Fprintln(w, "|---|---|---|---|---:|---:|---:|---:|")
		for _, r := range c.Results {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				escape(r.Model), escape(r.DisplayName), escape(r.PlanGroup), r.OpeningType,
				r.FactoryPrice.StringFixed(0), r.PublicSupport.StringFixed(0),
				r.StoreSupport.StringFixed(0), r.PurchasePrice.StringFixed(0))
		}
	}
	return nil
}

var mdEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func escape(s string) string {
	return mdEscaper.Replace(s)
}
