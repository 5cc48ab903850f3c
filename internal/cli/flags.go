package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/scdenorm"
	"github.com/happyhackingspace/scdenorm/internal/config"
)

// configFlags holds the flags shared by every command that detects a
// transform.
type configFlags struct {
	base             string
	constant         string
	method           string
	tolerance        float64
	autoTolerance    float64
	round            bool
	reducedPrecision bool
	workers          int
	sampleRows       int
	minPassRate      float64
	transposed       bool
}

func (f *configFlags) register(cmd *cobra.Command) {
	d := scdenorm.DefaultConfig()
	fs := cmd.Flags()
	fs.StringVar(&f.base, "base", "", `Log base: e, 2, 10, none, a number, or "auto" (default: try e, none, 2, 10)`)
	fs.StringVar(&f.constant, "constant", strconv.FormatFloat(*d.Constant, 'g', -1, 64), `Additive constant, or "sweep" to try 1, 0.1, 0.01, 0.001, 0`)
	fs.StringVar(&f.method, "method", d.Method.String(), "Scaling factor estimator: Top2 or Reg")
	fs.Float64Var(&f.tolerance, "tolerance", d.Tolerance, "Mean distance to integers accepted after rescaling")
	fs.Float64Var(&f.autoTolerance, "auto-tolerance", d.AutoTolerance, "Convergence tolerance of automatic base detection")
	fs.BoolVar(&f.round, "round", d.Round, "Round recovered counts to integers")
	fs.BoolVar(&f.reducedPrecision, "reduced-precision", d.ReducedPrecision, "Compare values at half precision")
	fs.IntVarP(&f.workers, "workers", "w", d.Workers, "Parallel workers (0 = number of CPUs)")
	fs.IntVar(&f.sampleRows, "sample-rows", d.SampleRows, "Rows used by automatic detection and verification")
	fs.Float64Var(&f.minPassRate, "min-pass-rate", d.MinPassRate, "Share of sampled rows the chosen transform must fit (0 disables)")
	fs.BoolVarP(&f.transposed, "transposed", "t", d.Transposed, "Input is genes by cells")
}

// overrides returns the flags set on the command line as a config file, so
// they go through the same parsing as file values.
func (f *configFlags) overrides(cmd *cobra.Command) *config.File {
	changed := cmd.Flags().Changed
	var over config.File
	if changed("base") {
		over.Base = &f.base
	}
	if changed("constant") {
		over.Constant = &f.constant
	}
	if changed("method") {
		over.Method = &f.method
	}
	if changed("tolerance") {
		over.Tolerance = &f.tolerance
	}
	if changed("auto-tolerance") {
		over.AutoTolerance = &f.autoTolerance
	}
	if changed("round") {
		over.Round = &f.round
	}
	if changed("reduced-precision") {
		over.ReducedPrecision = &f.reducedPrecision
	}
	if changed("workers") {
		over.Workers = &f.workers
	}
	if changed("sample-rows") {
		over.SampleRows = &f.sampleRows
	}
	if changed("min-pass-rate") {
		over.MinPassRate = &f.minPassRate
	}
	if changed("transposed") {
		over.Transposed = &f.transposed
	}
	return &over
}

// config builds the run configuration from defaults, then the config file,
// then the flags set on the command line. The loaded file is returned for
// its CLI-only keys; it is never nil.
func (c *CLI) config(cmd *cobra.Command, f *configFlags) (scdenorm.Config, *config.File, error) {
	cfg := scdenorm.DefaultConfig()
	file := &config.File{}
	if c.configPath != "" {
		var err error
		if file, err = config.Load(c.configPath); err != nil {
			return cfg, nil, err
		}
		if err := file.Apply(&cfg); err != nil {
			return cfg, nil, err
		}
	}
	if err := f.overrides(cmd).Apply(&cfg); err != nil {
		return cfg, nil, err
	}
	return cfg, file, cfg.Validate()
}

// stringOption returns the flag value when set, otherwise the file value.
func stringOption(cmd *cobra.Command, name, flag, file string) string {
	if cmd.Flags().Changed(name) || file == "" {
		return flag
	}
	return file
}
