package opcode

import "github.com/tombl/jsaot/internal/leb128"

// Generic holds the valtype-dependent opcode selections named in spec
// §4.1: the handful of operations whose concrete opcode depends on the
// module's chosen payload valtype (f64 by default, optionally i32/i64).
// It is resolved once, at driver start, from the -valtype flag.
type Generic struct {
	Valtype ValType

	Add, Sub, Mul Op
	Eq            Op
	Load, Store   Op

	// I32To/I32ToU convert a payload value to i32 (signed/unsigned,
	// relevant only when Valtype is a float), used for indexing and
	// bitwise ops. I32From/I32FromU convert back.
	I32To, I32ToU     Op
	I32From, I32FromU Op
}

// NewGeneric resolves the generic-opcode table for valtype vt. vt must be
// one of I32, I64, or F64 (F32 is not offered as a module valtype by this
// compiler's configuration surface, see SPEC_FULL.md §6).
func NewGeneric(vt ValType) Generic {
	switch vt {
	case I32:
		return Generic{
			Valtype: I32,
			Add:     OpI32Add, Sub: OpI32Sub, Mul: OpI32Mul,
			Eq:    OpI32Eq,
			Load:  OpI32Load, Store: OpI32Store,
			I32To: OpNop, I32ToU: OpNop, I32From: OpNop, I32FromU: OpNop,
		}
	case I64:
		return Generic{
			Valtype: I64,
			Add:     OpI64Add, Sub: OpI64Sub, Mul: OpI64Mul,
			Eq:    OpI64Eq,
			Load:  OpI64Load, Store: OpI64Store,
			I32To: OpI32WrapI64, I32ToU: OpI32WrapI64,
			I32From: OpI64ExtendI32S, I32FromU: OpI64ExtendI32S,
		}
	case F64:
		fallthrough
	default:
		return Generic{
			Valtype: F64,
			Add:     OpF64Add, Sub: OpF64Sub, Mul: OpF64Mul,
			Eq:    OpF64Eq,
			Load:  OpF64Load, Store: OpF64Store,
			I32To: OpI32TruncF64S, I32ToU: OpI32TruncF64S,
			I32From: OpF64ConvertI32S, I32FromU: OpF64ConvertI32S,
		}
	}
}

// ConstF64 builds a valtype-const instruction for a literal float value,
// converting it to the module valtype first (matching the teacher's own
// convention of carrying all literals as float64 until emission).
func (g Generic) ConstF64(v float64) Instruction {
	switch g.Valtype {
	case I32:
		return Const(OpI32Const, leb128.EncodeInt32(int32(v)))
	case I64:
		return Const(OpI64Const, leb128.EncodeInt64(int64(v)))
	default:
		return Const(OpF64Const, leb128.EncodeF64(v))
	}
}

// ConstI32 builds an i32.const instruction — used for type tags, indices,
// and any bookkeeping value that is always i32 regardless of valtype.
func ConstI32(v int32) Instruction {
	return Const(OpI32Const, leb128.EncodeInt32(v))
}

// Lt returns the valtype-appropriate less-than comparison opcode. Its
// result is always i32 and, per spec §4.5, must be widened to the module
// valtype by the caller when used as a value rather than a branch
// condition.
func (g Generic) Lt() Op {
	switch g.Valtype {
	case I32:
		return OpI32LtS
	case I64:
		return OpI64LtS
	default:
		return OpF64Lt
	}
}

// Eqz returns the valtype-appropriate "is zero" opcode, used by truthy/
// falsy lowering.
func (g Generic) Eqz() Op {
	if g.Valtype == I32 {
		return OpI32Eqz
	}
	// i64/f64 have no direct eqz; callers compare against a zero constant
	// instead (see internal/compiler's truthy lowering).
	return OpUnreachable
}
