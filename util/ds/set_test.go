package ds_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/happut/incubator-paimon/util/ds"
)

func TestSet_IterateInOrder(t *testing.T) {
	s := ds.NewSet[int](0)
	s.Add(1, 2, 3)

	inOrderElements := slices.Collect(s.All())
	assert.Equal(t, []int{1, 2, 3}, inOrderElements)
}

func TestSet_OnlyUniqueElements(t *testing.T) {
	s := ds.SetOf(1, 2, 2, 3, 3, 3)

	inOrderElements := slices.Collect(s.All())
	assert.Equal(t, []int{1, 2, 3}, inOrderElements)
	assert.Equal(t, 3, s.Size())
}

func TestSet_Has(t *testing.T) {
	s := ds.SetOf("a", "b")

	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
}
