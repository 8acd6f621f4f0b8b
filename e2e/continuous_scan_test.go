package e2e_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/happut/incubator-paimon/clocks"
	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/scan"
	"github.com/happut/incubator-paimon/table"
)

func TestContinuousScanDeliversCommittedRows(t *testing.T) {
	cases := []struct {
		name       string
		primaryKey []string
	}{
		{name: "append only", primaryKey: nil},
		{name: "primary key", primaryKey: []string{"a"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newTable(t, tableSchema(tc.primaryKey...))
			fx.commit(t, filestore.KindAppend, table.Row{"1", "2", "3"}, table.Row{"4", "5", "6"})

			clock := clocks.NewFrozenClock()
			s := startScan(t, fx, clock)

			changes := drainChanges(t, s, 2)
			assert.ElementsMatch(t, []table.Row{{"1", "2", "3"}, {"4", "5", "6"}}, changedRows(changes))

			fx.commit(t, filestore.KindAppend, table.Row{"7", "8", "9"})
			clock.TickEvery("scan_poll")

			changes = drainChanges(t, s, 1)
			assert.Equal(t, table.Row{"7", "8", "9"}, changes[0].Row)
			assert.Equal(t, uint64(2), changes[0].SnapshotID)
			expectSilence(t, s)
		})
	}
}

func TestContinuousScanProjection(t *testing.T) {
	fx := newTable(t, tableSchema())
	fx.commit(t, filestore.KindAppend, table.Row{"1", "2", "3"}, table.Row{"4", "5", "6"})

	clock := clocks.NewFrozenClock()
	s := startScan(t, fx, clock, func(p *scan.NewScanParams) {
		p.Projection = []string{"b", "c"}
	})

	changes := drainChanges(t, s, 2)
	assert.ElementsMatch(t, []table.Row{{"2", "3"}, {"5", "6"}}, changedRows(changes))

	fx.commit(t, filestore.KindAppend, table.Row{"7", "8", "9"})
	clock.TickEvery("scan_poll")

	changes = drainChanges(t, s, 1)
	assert.Equal(t, table.Row{"8", "9"}, changes[0].Row)
}

func TestContinuousScanLatestMode(t *testing.T) {
	fx := newTable(t, tableSchema())
	fx.commit(t, filestore.KindAppend, table.Row{"1", "2", "3"}, table.Row{"4", "5", "6"})

	clock := clocks.NewFrozenClock()
	s := startScan(t, fx, clock, func(p *scan.NewScanParams) {
		p.ScanMode = table.ScanModeLatest
	})

	expectSilence(t, s)

	fx.commit(t, filestore.KindAppend, table.Row{"7", "8", "9"}, table.Row{"10", "11", "12"})
	clock.TickEvery("scan_poll")

	changes := drainChanges(t, s, 2)
	assert.ElementsMatch(t, []table.Row{{"7", "8", "9"}, {"10", "11", "12"}}, changedRows(changes))
	expectSilence(t, s)
}

func TestContinuousScanSkipsOverwrites(t *testing.T) {
	fx := newTable(t, tableSchema())
	fx.commit(t, filestore.KindAppend, table.Row{"a1", "1", "x"})

	clock := clocks.NewFrozenClock()
	s := startScan(t, fx, clock)
	drainChanges(t, s, 1)

	fx.commit(t, filestore.KindOverwrite, table.Row{"b1", "2", "y"})
	fx.commit(t, filestore.KindAppend, table.Row{"c1", "3", "z"})
	clock.TickEvery("scan_poll")

	changes := drainChanges(t, s, 1)
	assert.Equal(t, table.Row{"c1", "3", "z"}, changes[0].Row)
	assert.Equal(t, uint64(3), changes[0].SnapshotID)
	expectSilence(t, s)
}

// A scan starting against accumulated history replays it oldest snapshot
// first, so keyed consumers converge on each key's newest version.
func TestContinuousScanBootstrapsKeyedHistory(t *testing.T) {
	fx := newTable(t, tableSchema("a"))
	fx.commit(t, filestore.KindAppend, table.Row{"k1", "v1", "x"}, table.Row{"k2", "w1", "x"})
	fx.commit(t, filestore.KindAppend, table.Row{"k1", "v2", "y"})
	fx.commit(t, filestore.KindAppend, table.Row{"k2", "w3", "z"})

	clock := clocks.NewFrozenClock()
	s := startScan(t, fx, clock, func(p *scan.NewScanParams) {
		p.ReadParallelism = 1
	})

	changes := drainChanges(t, s, 4)

	lastPerKey := make(map[string]table.Row)
	lastSnapshot := make(map[string]uint64)
	for _, c := range changes {
		key := c.Row[0]
		assert.Greater(t, c.SnapshotID, lastSnapshot[key])
		lastSnapshot[key] = c.SnapshotID
		lastPerKey[key] = c.Row
	}
	assert.Equal(t, table.Row{"k1", "v2", "y"}, lastPerKey["k1"])
	assert.Equal(t, table.Row{"k2", "w3", "z"}, lastPerKey["k2"])
	expectSilence(t, s)
}

func TestContinuousScanKeyedUpdatesAcrossPolls(t *testing.T) {
	fx := newTable(t, tableSchema("a"))
	fx.commit(t, filestore.KindAppend, table.Row{"k1", "v1", "x"})

	clock := clocks.NewFrozenClock()
	s := startScan(t, fx, clock)

	changes := drainChanges(t, s, 1)
	assert.Equal(t, table.Row{"k1", "v1", "x"}, changes[0].Row)

	fx.commit(t, filestore.KindAppend, table.Row{"k1", "v2", "y"})
	clock.TickEvery("scan_poll")

	changes = drainChanges(t, s, 1)
	assert.Equal(t, table.Row{"k1", "v2", "y"}, changes[0].Row)
	expectSilence(t, s)
}
