package ds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/happut/incubator-paimon/util/ds"
)

func TestSortedMapIteratesInKeyOrder(t *testing.T) {
	sm := ds.NewSortedMap[uint64, string]()
	assert.True(t, sm.Set(9, "nine"))
	assert.True(t, sm.Set(2, "two"))
	assert.True(t, sm.Set(5, "five"))

	assert.Equal(t, []uint64{2, 5, 9}, sm.Keys())
	assert.Equal(t, []string{"two", "five", "nine"}, sm.Values())

	var keys []uint64
	for k, v := range sm.All() {
		keys = append(keys, k)
		assert.NotEmpty(t, v)
	}
	assert.Equal(t, []uint64{2, 5, 9}, keys)
}

func TestSortedMapSetOverwrites(t *testing.T) {
	sm := ds.NewSortedMap[uint64, string]()
	assert.True(t, sm.Set(1, "a"))
	assert.False(t, sm.Set(1, "b"), "existing key is not new")

	v, ok := sm.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, sm.Size())
}

func TestSortedMapDelete(t *testing.T) {
	sm := ds.NewSortedMap[int, int]()
	sm.Set(1, 10)
	sm.Set(2, 20)

	assert.True(t, sm.Delete(1))
	assert.False(t, sm.Delete(1))
	assert.False(t, sm.Has(1))
	assert.Equal(t, []int{2}, sm.Keys())
}

func TestSortedMapInterleavedSetsKeepOrder(t *testing.T) {
	sm := ds.NewSortedMap[int, string]()
	sm.Set(3, "c")
	sm.Set(1, "a")
	assert.Equal(t, []int{1, 3}, sm.Keys())

	sm.Set(2, "b")
	assert.Equal(t, []int{1, 2, 3}, sm.Keys())
}
