package leb128

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInt32(t *testing.T) {
	for _, c := range []struct {
		input    int32
		expected []byte
	}{
		{input: -165675008, expected: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -624485, expected: []byte{0x9b, 0xf1, 0x59}},
		{input: -4, expected: []byte{0x7c}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxInt32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0x7}},
	} {
		require.Equal(t, c.expected, EncodeInt32(c.input))
		decoded, n, err := LoadInt32(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
		require.Equal(t, len(c.expected), n)
	}
}

func TestEncodeDecodeUint32(t *testing.T) {
	for _, c := range []struct {
		input    uint32
		expected []byte
	}{
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 127, expected: []byte{0x7f}},
		{input: 128, expected: []byte{0x80, 0x01}},
		{input: math.MaxUint32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xf}},
	} {
		require.Equal(t, c.expected, EncodeUint32(c.input))
		decoded, _, err := LoadUint32(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
	}
}

func TestLoadTruncated(t *testing.T) {
	_, _, err := LoadUint32([]byte{0x80})
	require.Error(t, err)
}

func TestFloatRoundTrip(t *testing.T) {
	f64 := 3.14159265358979
	require.Equal(t, f64, mustDecodeF64(t, EncodeF64(f64)))

	f32 := float32(2.5)
	decoded32, err := DecodeF32(EncodeF32(f32))
	require.NoError(t, err)
	require.Equal(t, f32, decoded32)
}

func mustDecodeF64(t *testing.T, buf []byte) float64 {
	t.Helper()
	v, err := DecodeF64(buf)
	require.NoError(t, err)
	return v
}

func TestVector(t *testing.T) {
	require.Equal(t, []byte{0x03, 'a', 'b', 'c'}, Vector([]byte("abc")))
}
