package filestore

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happut/incubator-paimon/storage"
	"github.com/happut/incubator-paimon/table"
)

var dataFileSchema = table.Schema{
	Columns: []string{"a", "b", "c"},
	Options: table.DefaultOptions(),
}

func writeTestFile(t *testing.T, rows []table.Row) (storage.FileSystem, string) {
	t.Helper()
	fs := storage.NewMemoryFilesystem()
	file := fs.New("data/test.parquet")
	require.NoError(t, writeDataFile(file, dataFileSchema, rows))
	return fs, "data/test.parquet"
}

func TestDataFileRoundTrip(t *testing.T) {
	rows := []table.Row{{"1", "2", "3"}, {"4", "5", "6"}}
	fs, path := writeTestFile(t, rows)

	file := fs.Open(path)
	got, err := readDataFile(file, file.Size(), dataFileSchema.Columns, 0)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestDataFileProjectionOrder(t *testing.T) {
	fs, path := writeTestFile(t, []table.Row{{"1", "2", "3"}, {"4", "5", "6"}})

	file := fs.Open(path)
	got, err := readDataFile(file, file.Size(), []string{"c", "a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"3", "1"}, {"6", "4"}}, got)
}

func TestDataFileResumeOffset(t *testing.T) {
	fs, path := writeTestFile(t, []table.Row{{"1", "2", "3"}, {"4", "5", "6"}, {"7", "8", "9"}})
	file := fs.Open(path)

	got, err := readDataFile(file, file.Size(), dataFileSchema.Columns, 2)
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"7", "8", "9"}}, got)

	got, err = readDataFile(file, file.Size(), dataFileSchema.Columns, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = readDataFile(file, file.Size(), dataFileSchema.Columns, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond file row count")
}

func TestDataFileUnknownColumn(t *testing.T) {
	fs, path := writeTestFile(t, []table.Row{{"1", "2", "3"}})
	file := fs.Open(path)

	_, err := readDataFile(file, file.Size(), []string{"z"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "z"`)
}

func TestDataFileArityChecked(t *testing.T) {
	fs := storage.NewMemoryFilesystem()
	file := fs.New("data/bad.parquet")
	err := writeDataFile(file, dataFileSchema, []table.Row{{"1", "2"}})
	require.Error(t, err)
}

type countingReaderAt struct {
	inner io.ReaderAt
	bytes int64
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.inner.ReadAt(p, off)
	c.bytes += int64(n)
	return n, err
}

// Projection must reduce bytes fetched from storage, not just columns
// materialized: only the requested column chunks are read.
func TestDataFileProjectionReducesBytesRead(t *testing.T) {
	rows := make([]table.Row, 4096)
	for i := range rows {
		rows[i] = table.Row{
			fmt.Sprintf("a-%06d", i),
			fmt.Sprintf("b-%06d", i),
			fmt.Sprintf("c-%06d", i),
		}
	}
	fs, path := writeTestFile(t, rows)

	full := &countingReaderAt{inner: fs.Open(path)}
	got, err := readDataFile(full, fs.Open(path).Size(), dataFileSchema.Columns, 0)
	require.NoError(t, err)
	require.Len(t, got, len(rows))

	narrow := &countingReaderAt{inner: fs.Open(path)}
	got, err = readDataFile(narrow, fs.Open(path).Size(), []string{"b"}, 0)
	require.NoError(t, err)
	require.Len(t, got, len(rows))
	assert.Equal(t, "b-000000", got[0][0])

	assert.Less(t, narrow.bytes, full.bytes,
		"reading one column of three should fetch fewer bytes")
}
