package dataseg

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/tombl/jsaot/internal/opcode"
)

// EncodeStringBytes builds the full page payload for a string literal:
// a u32 length-in-elements prefix followed by the UTF-16 code units
// (spec.md §3's string layout).
func EncodeStringBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 4+2*len(units))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(units)))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[4+2*i:4+2*i+2], u)
	}
	return out
}

// EncodeArrayBytes builds the full page payload for an array literal all
// of whose elements are compile-time constant numbers, using elemType to
// determine the fixed little-endian element width (spec.md §3's array
// layout). Unlike instruction immediates, in-memory values are fixed
// width, not LEB128.
func EncodeArrayBytes(elems []float64, elemType opcode.ValType) []byte {
	size := elemType.Size()
	out := make([]byte, 4+size*len(elems))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(elems)))
	for i, v := range elems {
		dst := out[4+size*i : 4+size*(i+1)]
		switch elemType {
		case opcode.I32:
			binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
		case opcode.I64:
			binary.LittleEndian.PutUint64(dst, uint64(int64(v)))
		default:
			binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
		}
	}
	return out
}
