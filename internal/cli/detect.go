package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/scdenorm"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/transform"
)

// detection is the JSON printed by the detect command.
type detection struct {
	Candidate transform.Candidate        `json:"candidate"`
	Rejected  []report.RejectedCandidate `json:"rejected_candidates,omitempty"`
}

func (c *CLI) newDetectCommand() *cobra.Command {
	var flags configFlags
	var showRejected bool

	cmd := &cobra.Command{
		Use:   "detect [matrix-or-folder]",
		Short: "Detect the log base and constant of a normalized matrix",
		Args:  cobra.MaximumNArgs(1),
		Example: `  scdenorm detect normalized.mtx
  scdenorm detect data/pbmc --base auto --rejected
  scdenorm detect genes.mtx.gz -t --constant sweep -v`,
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

			rec := report.NewRecorder()
			start := time.Now()
			cand, err := scdenorm.Detect(in.matrix, cfg, report.Multi(report.NewSlogReporter(slog.Default()), rec))
			if err != nil {
				return err
			}
			slog.Debug("Detection completed", "candidate", cand.String(), "duration", time.Since(start))

			out := detection{Candidate: cand}
			if showRejected {
				s := report.NewSummary()
				s.AddEvents(rec.Filter(report.CandidateRejected))
				out.Rejected = s.Rejected
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&showRejected, "rejected", false, "Include the sample row histogram of every rejected candidate")
	return cmd
}
