package builtin

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/opcode"
)

func TestMathFloorBody(t *testing.T) {
	r := New()
	f, ok := r.LookupFunc("Math_floor")
	require.True(t, ok)
	require.True(t, f.FloatOnly)

	g := opcode.NewGeneric(opcode.F64)
	instrs, tag, err := f.Body(g, nil, nil, [][]opcode.Instruction{{opcode.ConstI32(1)}}, nil)
	require.NoError(t, err)
	require.Equal(t, langtype.Number, tag)
	require.Equal(t, opcode.OpF64Floor, instrs[len(instrs)-1].Op)
}

func TestMathFloorRejectsNonFloatValtype(t *testing.T) {
	r := New()
	f, _ := r.LookupFunc("Math_floor")
	g := opcode.NewGeneric(opcode.I32)
	_, _, err := f.Body(g, nil, nil, [][]opcode.Instruction{{}}, nil)
	require.Error(t, err)
}

func TestSingleCandidateFastPath(t *testing.T) {
	r := New()
	require.Equal(t, langtype.Number, r.SingleCandidateReturnType("charCodeAt"))
	// "length" is registered for both Array and String: ambiguous.
	require.Equal(t, Unknown, r.SingleCandidateReturnType("length"))
	require.Equal(t, Unknown, r.SingleCandidateReturnType("nonexistent"))
}

func TestArrayOfCtor(t *testing.T) {
	r := New()
	c, ok := r.LookupCtor("Array_of")
	require.True(t, ok)
	g := opcode.NewGeneric(opcode.F64)
	ptr := []opcode.Instruction{opcode.ConstI32(0)}
	instrs, err := c.Body(g, ptr, [][]opcode.Instruction{{g.ConstF64(1)}, {g.ConstF64(2)}}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, instrs)
}
