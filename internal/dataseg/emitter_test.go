package dataseg

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tombl/jsaot/internal/opcode"
)

func TestAddAndSegments(t *testing.T) {
	e := New()
	e.Add(0, []byte{1, 2, 3})
	e.Add(64*1024, []byte{4, 5})
	require.Equal(t, 2, e.Len())
	require.Equal(t, []Segment{
		{Offset: 0, Bytes: []byte{1, 2, 3}},
		{Offset: 64 * 1024, Bytes: []byte{4, 5}},
	}, e.Segments())
}

func TestEncodeStringBytes(t *testing.T) {
	got := EncodeStringBytes("ab")
	require.Equal(t, []byte{2, 0, 0, 0, 'a', 0, 'b', 0}, got)
}

func TestEncodeArrayBytesF64(t *testing.T) {
	got := EncodeArrayBytes([]float64{1, 2}, opcode.F64)
	require.Equal(t, 4+16, len(got))
	require.Equal(t, byte(2), got[0])
}

func TestEncodeArrayBytesI32(t *testing.T) {
	got := EncodeArrayBytes([]float64{1, -1}, opcode.I32)
	require.Equal(t, 4+8, len(got))
	require.Equal(t, []byte{1, 0, 0, 0}, got[4:8])
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, got[8:12])
}
