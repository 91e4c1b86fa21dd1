package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocIdempotent(t *testing.T) {
	a := New(64)
	i1 := a.Alloc(ArrayReason("xs"), KindArray)
	i2 := a.Alloc(ArrayReason("xs"), KindArray)
	require.Equal(t, i1, i2)
	require.True(t, a.HasArray())
	require.False(t, a.HasString())
}

func TestAllocUniqueness(t *testing.T) {
	a := New(64)
	i1 := a.Alloc(ArrayReason("xs"), KindArray)
	i2 := a.Alloc(StringReason("s"), KindString)
	require.NotEqual(t, i1, i2)
	require.True(t, a.HasArray())
	require.True(t, a.HasString())
	require.Equal(t, 2, a.Count())
}

func TestPointerBeforeAllocPanics(t *testing.T) {
	a := New(64)
	require.Panics(t, func() { a.Pointer("nope") })
}

func TestBindNameAndLookup(t *testing.T) {
	a := New(64)
	a.Alloc(ArrayReason("xs"), KindArray)
	a.BindName("xs", ArrayReason("xs"))
	p, ok := a.NamePointer("xs")
	require.True(t, ok)
	require.Equal(t, uint32(0), p)
}

func TestPointersAreMonotonic(t *testing.T) {
	a := New(1) // 1 KiB pages for a small, readable offset
	a.Alloc(ArrayReason("a"), KindArray)
	a.Alloc(ArrayReason("b"), KindArray)
	require.Equal(t, uint32(0), a.Pointer(ArrayReason("a")))
	require.Equal(t, uint32(1024), a.Pointer(ArrayReason("b")))
}
