// Package leb128 encodes and decodes the variable-length integer and
// IEEE-754 float formats used throughout the WASM binary format.
package leb128

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeInt32 encodes v as a signed LEB128 byte sequence.
func EncodeInt32(v int32) []byte {
	return encodeSigned(int64(v))
}

// EncodeInt64 encodes v as a signed LEB128 byte sequence.
func EncodeInt64(v int64) []byte {
	return encodeSigned(v)
}

func encodeSigned(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// EncodeUint32 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint32(v uint32) []byte {
	return encodeUnsigned(uint64(v))
}

// EncodeUint64 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint64(v uint64) []byte {
	return encodeUnsigned(v)
}

func encodeUnsigned(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// LoadInt32 decodes a signed LEB128 value, returning the value, the number
// of bytes consumed, and an error if buf is truncated or overflows 32 bits.
func LoadInt32(buf []byte) (int32, int, error) {
	v, n, err := loadSigned(buf, 32)
	if err != nil {
		return 0, n, err
	}
	return int32(v), n, nil
}

// LoadInt64 decodes a signed LEB128 value, returning the value and the
// number of bytes consumed.
func LoadInt64(buf []byte) (int64, int, error) {
	return loadSigned(buf, 64)
}

func loadSigned(buf []byte, size int) (int64, int, error) {
	var result int64
	var shift uint
	var n int
	for {
		if n >= len(buf) {
			return 0, n, fmt.Errorf("leb128: buffer truncated")
		}
		b := buf[n]
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < uint(size) && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, n, nil
		}
		if shift >= 64 {
			return 0, n, fmt.Errorf("leb128: value overflows %d bits", size)
		}
	}
}

// LoadUint32 decodes an unsigned LEB128 value, returning the value and the
// number of bytes consumed.
func LoadUint32(buf []byte) (uint32, int, error) {
	v, n, err := loadUnsigned(buf)
	if err != nil {
		return 0, n, err
	}
	if v > math.MaxUint32 {
		return 0, n, fmt.Errorf("leb128: value overflows 32 bits")
	}
	return uint32(v), n, nil
}

// LoadUint64 decodes an unsigned LEB128 value, returning the value and the
// number of bytes consumed.
func LoadUint64(buf []byte) (uint64, int, error) {
	return loadUnsigned(buf)
}

func loadUnsigned(buf []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	var n int
	for {
		if n >= len(buf) {
			return 0, n, fmt.Errorf("leb128: buffer truncated")
		}
		b := buf[n]
		n++
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			return result, n, nil
		}
		if shift >= 64 {
			return 0, n, fmt.Errorf("leb128: value overflows 64 bits")
		}
	}
}

// EncodeF32 encodes v as a little-endian IEEE-754 single.
func EncodeF32(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeF32 decodes a little-endian IEEE-754 single.
func DecodeF32(buf []byte) (float32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("leb128: buffer too short for f32")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// EncodeF64 encodes v as a little-endian IEEE-754 double.
func EncodeF64(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// DecodeF64 decodes a little-endian IEEE-754 double.
func DecodeF64(buf []byte) (float64, error) {
	if len(buf) < 8 {
		return 0, fmt.Errorf("leb128: buffer too short for f64")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// Vector prepends buf with its length, encoded as an unsigned LEB128 —
// the "byte-vector" convention used throughout the WASM binary format for
// names, sections, and data segments.
func Vector(buf []byte) []byte {
	out := EncodeUint32(uint32(len(buf)))
	return append(out, buf...)
}
