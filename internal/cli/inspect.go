package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/scdenorm"
)

func (c *CLI) newInspectCommand() *cobra.Command {
	var flags configFlags
	var row, head int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [matrix-or-folder]",
		Short: "Show a row's value histogram under every candidate transform",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Histogram of the sampled row under every base with constant 1
  scdenorm inspect normalized.mtx

  # Row 42, every base and constant, as JSON for plotting
  scdenorm inspect normalized.mtx --row 42 --constant sweep --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			cfg, _, err := c.config(cmd, &flags)
			if err != nil {
				return err
			}
			in, err := loadInput(args, "")
			if err != nil {
				return err
			}
			inspections, err := scdenorm.Inspect(in.matrix, row, cfg)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(inspections, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			printInspections(cmd.OutOrStdout(), inspections, head)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&row, "row", -1, "Row to inspect (default: the row detection samples)")
	cmd.Flags().IntVar(&head, "head", 5, "Histogram bins shown per candidate in the table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print every bin as JSON")
	return cmd
}

func printInspections(w io.Writer, inspections []scdenorm.Inspection, head int) {
	_, _ = fmt.Fprintf(w, "%6s  %8s  %10s  %-30s  %s\n", "base", "constant", "factor", "reason", "value x count")
	for _, in := range inspections {
		bins := in.Histogram
		if head > 0 && len(bins) > head {
			bins = bins[:head]
		}
		cells := make([]string, len(bins))
		for i, b := range bins {
			cells[i] = fmt.Sprintf("%.4g x%d", b.Value, b.Count)
		}
		factor := "."
		if in.Reason == "" {
			factor = fmt.Sprintf("%.4g", in.Factor)
		}
		_, _ = fmt.Fprintf(w, "%6s  %8g  %10s  %-30s  %s\n",
			in.Candidate.Base, in.Candidate.Constant, factor, in.Reason, strings.Join(cells, "  "))
	}
}
