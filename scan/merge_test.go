package scan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/happut/incubator-paimon/table"
)

func TestMergeKeyComposite(t *testing.T) {
	row := table.Row{"us", "west", "x"}
	assert.Equal(t, "us", mergeKey(row, []int{0}))
	assert.Equal(t, "us\x1fwest", mergeKey(row, []int{0, 1}))
	assert.Equal(t, "west\x1fus", mergeKey(row, []int{1, 0}))

	// Value boundaries stay distinct under composition.
	a := mergeKey(table.Row{"ab", "c"}, []int{0, 1})
	b := mergeKey(table.Row{"a", "bc"}, []int{0, 1})
	assert.NotEqual(t, a, b)
}

func TestMergeStateEmitIsMonotonic(t *testing.T) {
	m := newMergeState(4)

	assert.True(t, m.emit("k", 1))
	assert.False(t, m.emit("k", 1), "same version must not emit twice")
	assert.True(t, m.emit("k", 2))
	assert.False(t, m.emit("k", 1), "older version must not emit after newer")
	assert.True(t, m.emit("other", 1), "keys are independent")
}

func TestMergeStateViableDoesNotRecord(t *testing.T) {
	m := newMergeState(4)

	assert.True(t, m.viable("k", 3))
	assert.True(t, m.viable("k", 3), "viable is read-only")

	m.emit("k", 3)
	assert.False(t, m.viable("k", 3))
	assert.True(t, m.viable("k", 4))
}

func TestMergeStateEntriesRestoreRoundTrip(t *testing.T) {
	m := newMergeState(8)
	m.emit("a", 1)
	m.emit("b", 5)
	m.emit("a", 3)

	entries := m.entries()
	assert.Equal(t, map[string]uint64{"a": 3, "b": 5}, entries)

	restored := newMergeState(2)
	restored.restore(entries)
	assert.False(t, restored.emit("b", 5))
	assert.True(t, restored.emit("b", 6))
}

func TestMergeStateConcurrentEmitKeepsNewestVersion(t *testing.T) {
	m := newMergeState(16)

	var wg sync.WaitGroup
	for id := uint64(1); id <= 64; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			m.emit("hot", id)
			m.emit("cold", 65-id)
		}(id)
	}
	wg.Wait()

	entries := m.entries()
	assert.Equal(t, uint64(64), entries["hot"])
	assert.Equal(t, uint64(64), entries["cold"])
	assert.False(t, m.emit("hot", 64))
}
