// Package obs handles the per-cell annotation table that accompanies an
// expression matrix: one CSV record per matrix row, header first.
package obs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNoColumn is returned when a requested column is not in the header.
	ErrNoColumn = errors.New("obs: no such column")
	// ErrRowCount is returned when the table and the matrix disagree.
	ErrRowCount = errors.New("obs: row count mismatch")
)

// Table is an annotation table.
type Table struct {
	Header  []string
	Records [][]string
}

// Read parses a CSV table whose first record is the header.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("obs: read header: %w", err)
	}
	reader.FieldsPerRecord = len(header)

	t := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("obs: %w", err)
		}
		t.Records = append(t.Records, record)
	}
	return t, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoColumn, name)
	}
	out := make([]string, len(t.Records))
	for i, r := range t.Records {
		out[i] = r[idx]
	}
	return out, nil
}

// Subset returns the table made of the given records, in the given order.
func (t *Table) Subset(rows []int) (*Table, error) {
	out := &Table{Header: t.Header, Records: make([][]string, len(rows))}
	for i, r := range rows {
		if r < 0 || r >= len(t.Records) {
			return nil, fmt.Errorf("%w: record %d of %d", ErrRowCount, r, len(t.Records))
		}
		out.Records[i] = t.Records[r]
	}
	return out, nil
}

// Write encodes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("obs: write: %w", err)
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return fmt.Errorf("obs: write: %w", err)
	}
	return nil
}

// Load reads the table at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obs: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Save writes the table to path.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obs: %w", err)
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
