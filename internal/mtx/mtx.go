// Package mtx reads and writes sparse matrices in the Matrix Market
// coordinate format, optionally gzip or zstd compressed.
package mtx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/happyhackingspace/scdenorm/sparse"
)

// ErrFormat is returned for input that is not a supported Matrix Market
// file.
var ErrFormat = errors.New("mtx: invalid format")

const banner = "%%MatrixMarket"

// Header is the parsed banner and size line.
type Header struct {
	Field string // real, integer or pattern
	Rows  int
	Cols  int
	Nnz   int
}

// Read parses a general coordinate matrix. Pattern matrices get the value 1
// for every entry; duplicate coordinates are summed.
func Read(r io.Reader) (*sparse.CSR, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	h, line, err := readHeader(sc)
	if err != nil {
		return nil, err
	}

	ri := make([]int, 0, h.Nnz)
	ci := make([]int, 0, h.Nnz)
	vals := make([]float64, 0, h.Nnz)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		fields := strings.Fields(text)
		want := 3
		if h.Field == "pattern" {
			want = 2
		}
		if len(fields) != want {
			return nil, fmt.Errorf("%w: line %d: %d fields, want %d", ErrFormat, line, len(fields), want)
		}
		i, err1 := strconv.Atoi(fields[0])
		j, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: line %d: bad coordinates", ErrFormat, line)
		}
		v := 1.0
		if h.Field != "pattern" {
			if v, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrFormat, line, err)
			}
		}
		ri = append(ri, i-1)
		ci = append(ci, j-1)
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mtx: read: %w", err)
	}
	if len(vals) != h.Nnz {
		return nil, fmt.Errorf("%w: %d entries, header says %d", ErrFormat, len(vals), h.Nnz)
	}
	m, err := sparse.FromTriplets(h.Rows, h.Cols, ri, ci, vals)
	if err != nil {
		return nil, fmt.Errorf("mtx: %w", err)
	}
	return m, nil
}

func readHeader(sc *bufio.Scanner) (Header, int, error) {
	var h Header
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return h, 0, fmt.Errorf("mtx: read: %w", err)
		}
		return h, 0, fmt.Errorf("%w: empty input", ErrFormat)
	}
	fields := strings.Fields(strings.ToLower(sc.Text()))
	if len(fields) != 5 || fields[0] != strings.ToLower(banner) {
		return h, 1, fmt.Errorf("%w: missing %s banner", ErrFormat, banner)
	}
	if fields[1] != "matrix" || fields[2] != "coordinate" {
		return h, 1, fmt.Errorf("%w: only coordinate matrices are supported", ErrFormat)
	}
	switch fields[3] {
	case "real", "double", "integer", "pattern":
		h.Field = fields[3]
	default:
		return h, 1, fmt.Errorf("%w: field %q", ErrFormat, fields[3])
	}
	if fields[4] != "general" {
		return h, 1, fmt.Errorf("%w: symmetry %q", ErrFormat, fields[4])
	}

	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		size := strings.Fields(text)
		if len(size) != 3 {
			return h, line, fmt.Errorf("%w: line %d: bad size line", ErrFormat, line)
		}
		var err error
		if h.Rows, err = strconv.Atoi(size[0]); err == nil {
			if h.Cols, err = strconv.Atoi(size[1]); err == nil {
				h.Nnz, err = strconv.Atoi(size[2])
			}
		}
		if err != nil || h.Rows < 0 || h.Cols < 0 || h.Nnz < 0 {
			return h, line, fmt.Errorf("%w: line %d: bad size line", ErrFormat, line)
		}
		return h, line, nil
	}
	if err := sc.Err(); err != nil {
		return h, line, fmt.Errorf("mtx: read: %w", err)
	}
	return h, line, fmt.Errorf("%w: missing size line", ErrFormat)
}

// Write encodes m as a general coordinate matrix. The integer field is used
// when every stored value is integral.
func Write(w io.Writer, m *sparse.CSR) error {
	bw := bufio.NewWriter(w)
	field := "real"
	integral := m.IsIntegral()
	if integral {
		field = "integer"
	}
	fmt.Fprintf(bw, "%s matrix coordinate %s general\n", banner, field)
	fmt.Fprintf(bw, "%d %d %d\n", m.Rows, m.Cols, m.Nnz())
	for i := range m.Rows {
		idx := m.RowIndices(i)
		for k, v := range m.Row(i) {
			if integral && math.Abs(v) < 1<<53 {
				fmt.Fprintf(bw, "%d %d %d\n", i+1, idx[k]+1, int64(v))
				continue
			}
			fmt.Fprintf(bw, "%d %d %s\n", i+1, idx[k]+1, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("mtx: write: %w", err)
	}
	return nil
}
