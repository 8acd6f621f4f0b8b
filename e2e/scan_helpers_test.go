package e2e_test

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/require"

	"github.com/happut/incubator-paimon/clocks"
	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/scan"
	"github.com/happut/incubator-paimon/storage"
	"github.com/happut/incubator-paimon/table"
)

// tableFixture owns one table at a unique location in the shared in-process
// memory filesystem.
type tableFixture struct {
	store *filestore.Store
}

func newTable(t *testing.T, schema table.Schema) *tableFixture {
	t.Helper()

	fs, err := storage.NewFileSystemFromLocation("memory://tables/" + ksuid.New().String())
	require.NoError(t, err)
	require.NoError(t, filestore.CreateTable(fs, schema))

	store, err := filestore.NewStore(&filestore.NewStoreParams{FileSystem: fs})
	require.NoError(t, err)
	return &tableFixture{store: store}
}

func (f *tableFixture) commit(t *testing.T, kind filestore.SnapshotKind, rows ...table.Row) *filestore.Snapshot {
	t.Helper()
	writer := filestore.NewWriter(&filestore.NewWriterParams{Store: f.store})
	require.NoError(t, writer.Write(rows...))
	snap, err := writer.Commit(kind)
	require.NoError(t, err)
	return snap
}

func tableSchema(primaryKey ...string) table.Schema {
	return table.Schema{
		Columns:    []string{"a", "b", "c"},
		PrimaryKey: primaryKey,
		Options:    table.DefaultOptions(),
	}
}

func startScan(t *testing.T, f *tableFixture, clock clocks.Clock, mod ...func(*scan.NewScanParams)) *scan.Scan {
	t.Helper()
	params := &scan.NewScanParams{
		Store:        f.store,
		Schema:       f.store.Schema(),
		Clock:        clock,
		PollInterval: time.Second,
	}
	for _, fn := range mod {
		fn(params)
	}
	s, err := scan.NewScan(params)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// drainChanges reads until want changes arrived. Bootstrap rows flow without
// any tick; incremental rows need a TickEvery("scan_poll") first.
func drainChanges(t *testing.T, s *scan.Scan, want int) []scan.Change {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out []scan.Change
	for len(out) < want {
		changes, err := s.ReadChanges(ctx)
		require.NoError(t, err)
		out = append(out, changes...)
	}
	require.Len(t, out, want)
	return out
}

// expectSilence asserts no further rows arrive. Empty delivery batches from
// fully superseded splits are allowed through.
func expectSilence(t *testing.T, s *scan.Scan) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	for {
		changes, err := s.ReadChanges(ctx)
		if err != nil {
			require.ErrorIs(t, err, context.DeadlineExceeded)
			return
		}
		require.Empty(t, changes)
	}
}

func changedRows(changes []scan.Change) []table.Row {
	rows := make([]table.Row, len(changes))
	for i, c := range changes {
		rows[i] = c.Row
	}
	return rows
}
