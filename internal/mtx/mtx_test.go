package mtx

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/scdenorm/sparse"
)

const sample = `%%MatrixMarket matrix coordinate real general
% cells x genes
3 4 5
1 1 0.5
1 3 1.25
2 2 2
3 4 3
3 1 1e-3
`

func TestRead(t *testing.T) {
	m, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{
		{0.5, 0, 1.25, 0},
		{0, 2, 0, 0},
		{1e-3, 0, 0, 3},
	}, m.ToDense())
	assert.True(t, m.HasSortedIndices())
}

func TestReadPatternAndDuplicates(t *testing.T) {
	in := `%%MatrixMarket matrix coordinate pattern general
2 2 3
1 1
1 1
2 2
`
	m, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 0}, {0, 1}}, m.ToDense())
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"banner":     "3 4 5\n",
		"array":      "%%MatrixMarket matrix array real general\n2 2\n",
		"symmetric":  "%%MatrixMarket matrix coordinate real symmetric\n2 2 0\n",
		"complex":    "%%MatrixMarket matrix coordinate complex general\n2 2 0\n",
		"no size":    "%%MatrixMarket matrix coordinate real general\n% only comments\n",
		"bad size":   "%%MatrixMarket matrix coordinate real general\n2 x 1\n",
		"short line": "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1\n",
		"bad value":  "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1 abc\n",
		"count":      "%%MatrixMarket matrix coordinate real general\n2 2 2\n1 1 1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}

	_, err := Read(strings.NewReader("%%MatrixMarket matrix coordinate real general\n2 2 1\n3 1 1\n"))
	assert.ErrorIs(t, err, sparse.ErrOutOfRange)
}

func TestWriteIntegerField(t *testing.T) {
	m, err := sparse.FromDense([][]float64{{1, 0, 3}, {0, 0, 2}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	assert.Equal(t, "%%MatrixMarket matrix coordinate integer general\n2 3 3\n1 1 1\n1 3 3\n2 3 2\n", buf.String())

	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.ToDense(), back.ToDense())
}

func TestFileRoundTrip(t *testing.T) {
	m, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"m.mtx", "m.mtx.gz", "m.mtx.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, m))
			back, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, m.ToDense(), back.ToDense())
		})
	}
}

func TestCompressionOf(t *testing.T) {
	assert.Equal(t, Gzip, CompressionOf("a/matrix.mtx.gz"))
	assert.Equal(t, Zstd, CompressionOf("matrix.mtx.zst"))
	assert.Equal(t, None, CompressionOf("matrix.mtx"))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.mtx"))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{None, Gzip, Zstd} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("bzip2")
	assert.Error(t, err)
}
