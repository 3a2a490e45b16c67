package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
)

// normalizeCmd prints the canonical key and lookup variants of model codes
var normalizeCmd = &cobra.Command{
	Use:   "normalize <code>...",
	Short: "Show the normalized key for model codes",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, code := range args {
			fmt.Fprintf(out, "%s\t%s\n", code, modelkey.Normalize(code))
			if verbose {
				fmt.Fprintf(out, "  variants: %s\n", strings.Join(modelkey.Variants(code), ", "))
			}
		}
	},
}

// classifyCmd prints the opening types a raw label maps to
var classifyCmd = &cobra.Command{
	Use:   "classify <label>...",
	Short: "Classify opening type labels",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, label := range args {
			set := opening.Classify(label)
			fmt.Fprintf(out, "%s\t%s\t%s\n", label, set.Type(), set)
		}
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(classifyCmd)
}
