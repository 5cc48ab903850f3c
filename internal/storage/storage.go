// Package storage provides access to a dataset folder: an expression matrix
// in Matrix Market format and an optional cell annotation table.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/scdenorm/internal/mtx"
	"github.com/happyhackingspace/scdenorm/internal/obs"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
)

// ErrNoMatrix is returned when a folder holds no matrix file.
var ErrNoMatrix = errors.New("storage: no matrix file")

// File names looked up in a dataset folder, in order of preference.
var matrixNames = []string{"matrix.mtx", "matrix.mtx.gz", "matrix.mtx.zst"}

const (
	obsName     = "obs.csv"
	summaryName = "summary.json"
)

// Storage wraps a dataset folder.
type Storage struct {
	Folder string
}

// NewStorage creates a Storage for the given folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

// IsDataset reports whether path is a directory.
func IsDataset(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// MatrixPath returns the path of the matrix file.
func (s *Storage) MatrixPath() (string, error) {
	for _, name := range matrixNames {
		path := filepath.Join(s.Folder, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoMatrix, s.Folder)
}

// LoadMatrix reads the matrix of the folder.
func (s *Storage) LoadMatrix() (*sparse.CSR, error) {
	path, err := s.MatrixPath()
	if err != nil {
		return nil, err
	}
	slog.Debug("Loading matrix", "path", path)
	return mtx.Load(path)
}

// LoadObs reads the annotation table. It returns nil and no error when the
// folder has none.
func (s *Storage) LoadObs() (*obs.Table, error) {
	path := filepath.Join(s.Folder, obsName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return obs.Load(path)
}

// Output is what a run writes back.
type Output struct {
	Matrix  *sparse.CSR
	Obs     *obs.Table
	Summary *report.Summary
	// Compression of the written matrix.
	Compression mtx.Compression
}

// Save writes out into the folder, creating it if needed. Nil parts are
// skipped.
func (s *Storage) Save(out Output) error {
	if err := os.MkdirAll(s.Folder, 0755); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if out.Matrix != nil {
		path := filepath.Join(s.Folder, matrixNames[out.Compression])
		if err := mtx.Save(path, out.Matrix); err != nil {
			return err
		}
		slog.Debug("Matrix saved", "path", path)
	}
	if out.Obs != nil {
		if err := out.Obs.Save(filepath.Join(s.Folder, obsName)); err != nil {
			return err
		}
	}
	if out.Summary != nil {
		if err := out.Summary.Save(filepath.Join(s.Folder, summaryName)); err != nil {
			return err
		}
	}
	return nil
}
