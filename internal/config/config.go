// Package config loads run parameters from a YAML file.
//
//	base: auto
//	constant: sweep
//	method: reg
//	tolerance: 0.05
//	group_by: batch
//
// Every key is optional; a missing key keeps the value it is applied to.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/scdenorm"
	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/transform"
)

// ConstantSweep is the constant value that selects the sweep.
const ConstantSweep = "sweep"

// File mirrors scdenorm.Config plus the options of the command line tool.
type File struct {
	Base             *string  `yaml:"base"`
	Constant         *string  `yaml:"constant"`
	Method           *string  `yaml:"method"`
	Tolerance        *float64 `yaml:"tolerance"`
	AutoTolerance    *float64 `yaml:"auto_tolerance"`
	Round            *bool    `yaml:"round"`
	ReducedPrecision *bool    `yaml:"reduced_precision"`
	Workers          *int     `yaml:"workers"`
	SampleRows       *int     `yaml:"sample_rows"`
	MinPassRate      *float64 `yaml:"min_pass_rate"`
	Transposed       *bool    `yaml:"transposed"`

	Obs     string `yaml:"obs"`
	GroupBy string `yaml:"group_by"`
	Summary string `yaml:"summary"`
}

// Read decodes a YAML document. Unknown keys are an error.
func Read(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &f, nil
}

// Load reads the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// Apply copies every key set in f onto cfg.
func (f *File) Apply(cfg *scdenorm.Config) error {
	if f.Base != nil {
		b, err := transform.ParseBaseSpec(*f.Base)
		if err != nil {
			return fmt.Errorf("config: base: %w", err)
		}
		cfg.Base = b
	}
	if f.Constant != nil {
		c, err := ParseConstant(*f.Constant)
		if err != nil {
			return err
		}
		cfg.Constant = c
	}
	if f.Method != nil {
		m, err := estimate.ParseMethod(*f.Method)
		if err != nil {
			return fmt.Errorf("config: method: %w", err)
		}
		cfg.Method = m
	}
	setIf(&cfg.Tolerance, f.Tolerance)
	setIf(&cfg.AutoTolerance, f.AutoTolerance)
	setIf(&cfg.Round, f.Round)
	setIf(&cfg.ReducedPrecision, f.ReducedPrecision)
	setIf(&cfg.Workers, f.Workers)
	setIf(&cfg.SampleRows, f.SampleRows)
	setIf(&cfg.MinPassRate, f.MinPassRate)
	setIf(&cfg.Transposed, f.Transposed)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ParseConstant reads a non-negative number, or "sweep" for nil.
func ParseConstant(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, ConstantSweep) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: constant %q: want a non-negative number or %q", scdenorm.ErrInvalidConfig, s, ConstantSweep)
	}
	return &v, nil
}
