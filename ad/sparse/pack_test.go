package sparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddIsElement(t *testing.T) {
	var s PackSetVec
	s.Resize(3, 130)
	require.False(t, s.IsElement(1, 64))
	s.AddElement(1, 64)
	require.True(t, s.IsElement(1, 64))
	s.AddElement(1, 64) // idempotent
	require.Equal(t, 1, s.NumberElements(1))
	require.False(t, s.IsElement(0, 64))
	require.False(t, s.IsElement(2, 64))
}

func TestIteration(t *testing.T) {
	var s PackSetVec
	s.Resize(2, 70)
	s.AddElement(0, 0)
	s.AddElement(0, 65)
	s.AddElement(1, 3)

	it := s.RowIter(0)
	require.Equal(t, 0, it.Next())
	require.Equal(t, 65, it.Next())
	require.Equal(t, 70, it.Next())
	require.Equal(t, 70, it.Next()) // stays at end

	it = s.RowIter(1)
	require.Equal(t, 3, it.Next())
	require.Equal(t, 70, it.Next())

	require.Equal(t, 2, s.NumberElements(0))
	require.Equal(t, 1, s.NumberElements(1))
}

// number of elements must agree with what iteration produces
func TestCountMatchesIteration(t *testing.T) {
	var s PackSetVec
	s.Resize(1, 200)
	for _, j := range []int{0, 1, 63, 64, 65, 127, 128, 199} {
		s.AddElement(0, j)
	}
	n := 0
	prev := -1
	it := s.RowIter(0)
	for j := it.Next(); j < s.End(); j = it.Next() {
		require.Greater(t, j, prev)
		prev = j
		n++
	}
	require.Equal(t, s.NumberElements(0), n)
}

func TestUnionIntersection(t *testing.T) {
	var s PackSetVec
	s.Resize(4, 100)
	s.AddElement(0, 2)
	s.AddElement(0, 80)
	s.AddElement(1, 2)
	s.AddElement(1, 5)

	// union is commutative
	s.BinaryUnion(2, 0, 1, &s)
	s.BinaryUnion(3, 1, 0, &s)
	for j := 0; j < 100; j++ {
		require.Equal(t, s.IsElement(2, j), s.IsElement(3, j))
	}
	require.Equal(t, 3, s.NumberElements(2))

	// union is idempotent
	s.BinaryUnion(2, 2, 2, &s)
	require.Equal(t, 3, s.NumberElements(2))

	s.BinaryIntersection(3, 0, 1, &s)
	require.Equal(t, 1, s.NumberElements(3))
	require.True(t, s.IsElement(3, 2))
}

func TestAssignmentClearSwap(t *testing.T) {
	var s, o PackSetVec
	s.Resize(2, 40)
	o.Resize(2, 40)
	o.AddElement(1, 7)

	s.Assignment(0, 1, &o)
	require.True(t, s.IsElement(0, 7))

	s.Clear(0)
	require.Equal(t, 0, s.NumberElements(0))

	s.AddElement(0, 3)
	s.Swap(&o)
	require.True(t, s.IsElement(1, 7))
	require.True(t, o.IsElement(0, 3))
}

func TestPostProcess(t *testing.T) {
	var s PackSetVec
	s.Resize(1, 10)
	s.PostElement(0, 4)
	s.PostElement(0, 9)
	s.ProcessPost(0)
	require.True(t, s.IsElement(0, 4))
	require.True(t, s.IsElement(0, 9))
}

func TestResizeZeroesAndMemory(t *testing.T) {
	var s PackSetVec
	s.Resize(2, 64)
	s.AddElement(0, 5)
	require.Greater(t, s.Memory(), 0)
	s.Resize(2, 64)
	require.Equal(t, 0, s.NumberElements(0))
	s.Resize(1, 5)
	require.Equal(t, 5, s.End())
	require.Equal(t, 1, s.NSet())
}
