package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tombl/jsaot/internal/opcode"
)

func TestSlotPairing(t *testing.T) {
	g := NewGlobals(opcode.F64)
	s := New("main", g, opcode.F64)
	b := s.AllocLocal("x", nil)
	require.Equal(t, b.Idx+1, b.TypeTagIdx())

	b2 := s.AllocLocal("y", nil)
	require.Equal(t, b.Idx+2, b2.Idx)
}

func TestTempMemoized(t *testing.T) {
	g := NewGlobals(opcode.F64)
	s := New("main", g, opcode.F64)
	t1 := s.Temp("#typeswitch_tmp")
	t2 := s.Temp("#typeswitch_tmp")
	require.Same(t, t1, t2)
}

func TestLookupLocalsBeforeGlobals(t *testing.T) {
	g := NewGlobals(opcode.F64)
	g.Alloc("x", nil)
	s := New("main", g, opcode.F64)
	local := s.AllocLocal("x", nil)

	b, isGlobal, ok := s.Lookup("x")
	require.True(t, ok)
	require.False(t, isGlobal)
	require.Same(t, local, b)
}

func TestLookupFallsBackToGlobals(t *testing.T) {
	g := NewGlobals(opcode.F64)
	global := g.Alloc("g", nil)
	s := New("main", g, opcode.F64)

	b, isGlobal, ok := s.Lookup("g")
	require.True(t, ok)
	require.True(t, isGlobal)
	require.Same(t, global, b)

	_, _, ok = s.Lookup("missing")
	require.False(t, ok)
}

func TestBreakContinueDepth(t *testing.T) {
	s := New("main", NewGlobals(opcode.F64), opcode.F64)
	s.PushDepth(DepthFor)
	s.PushDepth(DepthIf)

	cont, ok := s.ContinueDepth()
	require.True(t, ok)
	require.Equal(t, uint32(1), cont)

	brk, ok := s.BreakDepth()
	require.True(t, ok)
	require.Equal(t, brk, cont+1)
}

func TestGlobalRedeclarePanics(t *testing.T) {
	g := NewGlobals(opcode.F64)
	g.Alloc("x", nil)
	require.Panics(t, func() { g.Alloc("x", nil) })
}
