package mtx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/happyhackingspace/scdenorm/sparse"
)

// Compression is the codec wrapping a file, chosen by extension.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

// CompressionOf returns the codec for path: ".gz" is gzip, ".zst" is zstd.
func CompressionOf(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	case strings.HasSuffix(path, ".zst"):
		return Zstd
	default:
		return None
	}
}

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression reads "none", "gzip" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	}
	return None, fmt.Errorf("mtx: unknown compression %q", s)
}

// NewReader wraps r with the decoder for c.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("mtx: gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("mtx: zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewWriter wraps w with the encoder for c. Close flushes the encoder but
// does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("mtx: zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Load reads the matrix at path.
func Load(path string) (*sparse.CSR, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mtx: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, err := NewReader(f, CompressionOf(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return Read(r)
}

// Save writes m to path.
func Save(path string, m *sparse.CSR) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mtx: %w", err)
	}
	w, err := NewWriter(f, CompressionOf(path))
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := Write(w, m); err != nil {
		_ = w.Close()
		_ = f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("mtx: %w", err)
	}
	return f.Close()
}
