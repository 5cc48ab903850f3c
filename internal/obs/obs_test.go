package obs

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `barcode,batch,cell_type
AAAC,b1,T cell
AAAG,b2,"B cell, naive"
AACT,b1,NK
`

func TestReadColumn(t *testing.T) {
	tab, err := Read(strings.NewReader(table))
	require.NoError(t, err)
	assert.Equal(t, 3, tab.Len())

	batch, err := tab.Column("batch")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b1"}, batch)

	types, err := tab.Column("cell_type")
	require.NoError(t, err)
	assert.Equal(t, "B cell, naive", types[1])

	_, err = tab.Column("sample")
	assert.ErrorIs(t, err, ErrNoColumn)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Read(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)
}

func TestSubsetWrite(t *testing.T) {
	tab, err := Read(strings.NewReader(table))
	require.NoError(t, err)

	sub, err := tab.Subset([]int{2, 0})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, sub.Write(&buf))
	assert.Equal(t, "barcode,batch,cell_type\nAACT,b1,NK\nAAAC,b1,T cell\n", buf.String())

	_, err = tab.Subset([]int{3})
	assert.ErrorIs(t, err, ErrRowCount)
}

func TestSaveLoad(t *testing.T) {
	tab, err := Read(strings.NewReader(table))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, tab.Save(path))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tab, back)
}
