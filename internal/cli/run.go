package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/scdenorm"
	"github.com/happyhackingspace/scdenorm/internal/mtx"
	"github.com/happyhackingspace/scdenorm/internal/obs"
	"github.com/happyhackingspace/scdenorm/internal/storage"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
)

func (c *CLI) newRunCommand() *cobra.Command {
	var flags configFlags
	var output, obsPath, obsOutput, groupBy, summaryPath, compression string

	cmd := &cobra.Command{
		Use:   "run [matrix-or-folder]",
		Short: "Recover raw counts from a normalized, log-transformed matrix",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Recover counts from a Matrix Market file
  scdenorm run normalized.mtx -o counts.mtx

  # Compressed input and output, chosen by extension
  scdenorm run normalized.mtx.gz -o counts.mtx.zst

  # Dataset folder with matrix.mtx and obs.csv, written to another folder
  scdenorm run data/pbmc -o data/pbmc-counts --compress zstd

  # Per-batch processing
  scdenorm run data/pbmc -o out --group-by batch

  # Genes by cells input, fixed base, constant sweep
  scdenorm run genes.mtx -t --base 2 --constant sweep -o counts.mtx

  # Pipe through stdin and stdout
  cat normalized.mtx | scdenorm run -s > counts.mtx

  # Parameters from a file, one flag overridden
  scdenorm run data/pbmc -o out -c params.yaml --method reg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			cfg, file, err := c.config(cmd, &flags)
			if err != nil {
				return err
			}
			obsPath = stringOption(cmd, "obs", obsPath, file.Obs)
			groupBy = stringOption(cmd, "group-by", groupBy, file.GroupBy)
			summaryPath = stringOption(cmd, "summary", summaryPath, file.Summary)
			comp, err := mtx.ParseCompression(compression)
			if err != nil {
				return err
			}

			start := time.Now()
			in, err := loadInput(args, obsPath)
			if err != nil {
				return err
			}
			rows := in.matrix.Rows
			if cfg.Transposed {
				rows = in.matrix.Cols
			}
			slog.Debug("Input loaded", "input", in.name, "rows", rows, "nnz", in.matrix.Nnz(), "duration", time.Since(start))
			if in.obs != nil && in.obs.Len() != rows {
				return fmt.Errorf("%w: %d annotation records for %d cells", obs.ErrRowCount, in.obs.Len(), rows)
			}

			rec := report.NewRecorder()
			rep := report.Multi(report.NewSlogReporter(slog.Default()), rec)

			start = time.Now()
			var res *scdenorm.Result
			if groupBy != "" {
				if in.obs == nil {
					return fmt.Errorf("--group-by %q needs an annotation table (--obs)", groupBy)
				}
				labels, err := in.obs.Column(groupBy)
				if err != nil {
					return err
				}
				res, err = scdenorm.DenormalizeGroups(cmd.Context(), in.matrix, labels, cfg, rep)
				if err != nil {
					return err
				}
			} else {
				res, err = scdenorm.Denormalize(cmd.Context(), in.matrix, cfg, rep)
				if err != nil {
					return err
				}
			}
			slog.Info("Denormalized", "rows", rows, "kept", len(res.Kept), "failed", len(res.Failures), "duration", time.Since(start))

			out := storage.Output{
				Matrix:      res.Matrix,
				Summary:     summarize(in.name, rows, cfg, res, rec.Events()),
				Compression: comp,
			}
			if in.obs != nil {
				if out.Obs, err = in.obs.Subset(res.Kept); err != nil {
					return err
				}
			}
			return writeOutput(cmd, in, out, output, obsOutput, summaryPath)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output matrix file or dataset folder (default: stdout)")
	cmd.Flags().StringVar(&obsPath, "obs", "", "Cell annotation CSV, one record per cell (default: obs.csv of a dataset folder)")
	cmd.Flags().StringVar(&obsOutput, "obs-output", "", "Where to write the annotations of kept cells when the output is a file")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Annotation column whose groups are processed separately")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "JSON diagnostics file (default: summary.json of an output folder)")
	cmd.Flags().StringVar(&compression, "compress", "none", "Matrix compression in an output folder: none, gzip or zstd")
	return cmd
}

// input is a loaded matrix with its optional annotations.
type input struct {
	name    string
	matrix  *sparse.CSR
	obs     *obs.Table
	dataset bool
}

// loadInput reads a dataset folder, a matrix file or, with no argument or
// "-", stdin. obsPath overrides the annotations of a dataset folder.
func loadInput(args []string, obsPath string) (*input, error) {
	in := &input{name: "stdin"}
	var err error
	switch {
	case len(args) == 0 || args[0] == "-":
		slog.Debug("Reading from stdin")
		in.matrix, err = mtx.Read(os.Stdin)
	case storage.IsDataset(args[0]):
		in.name, in.dataset = args[0], true
		st := storage.NewStorage(args[0])
		if in.matrix, err = st.LoadMatrix(); err != nil {
			return nil, err
		}
		if obsPath == "" {
			in.obs, err = st.LoadObs()
		}
	default:
		in.name = args[0]
		in.matrix, err = mtx.Load(args[0])
	}
	if err != nil {
		return nil, err
	}
	if obsPath != "" {
		if in.obs, err = obs.Load(obsPath); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// writeOutput writes to a dataset folder when the input was one or output
// names an existing folder, otherwise to a matrix file or stdout.
func writeOutput(cmd *cobra.Command, in *input, out storage.Output, output, obsOutput, summaryPath string) error {
	toStdout := output == "" || output == "-"
	if !toStdout && (in.dataset || storage.IsDataset(output)) {
		if summaryPath != "" {
			if err := out.Summary.Save(summaryPath); err != nil {
				return err
			}
			out.Summary = nil
		}
		if err := storage.NewStorage(output).Save(out); err != nil {
			return err
		}
		slog.Info("Dataset saved", "path", output)
		return nil
	}

	if toStdout {
		if err := mtx.Write(cmd.OutOrStdout(), out.Matrix); err != nil {
			return err
		}
	} else {
		if err := mtx.Save(output, out.Matrix); err != nil {
			return err
		}
		slog.Info("Matrix saved", "path", output)
	}
	if out.Obs != nil {
		if obsOutput == "" {
			slog.Warn("Annotations of kept cells not written, set --obs-output")
		} else if err := out.Obs.Save(obsOutput); err != nil {
			return err
		}
	}
	if summaryPath != "" {
		return out.Summary.Save(summaryPath)
	}
	return nil
}

// summarize builds the diagnostics of a run. Group summaries count failures
// from their own results since the recorded events mix all groups.
func summarize(name string, rows int, cfg scdenorm.Config, res *scdenorm.Result, events []report.Event) *report.Summary {
	s := newSummary(name, rows, cfg, res)
	s.AddEvents(events)
	for _, g := range res.Groups {
		gs := newSummary(name, len(g.Rows), cfg, g.Result)
		gs.Group = g.Label
		for _, f := range g.Failures {
			gs.Failures[f.Reason]++
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}

func newSummary(name string, rows int, cfg scdenorm.Config, res *scdenorm.Result) *report.Summary {
	s := report.NewSummary()
	s.Input = name
	s.Method = cfg.Method.String()
	s.Candidate = res.Candidate
	s.Rows = rows
	s.Kept = len(res.Kept)
	s.PassedThrough = res.PassedThrough
	s.AddFactors(res.Factors)
	return s
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
