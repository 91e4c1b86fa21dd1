package compiler

import (
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// lowerBinaryOp dispatches a BinaryExpression's operator once both
// operands are already lowered. Arithmetic, bitwise and relational
// operators require two statically-number operands (spec.md §4.5 scopes
// implicit coercion out of this subset); equality operators require two
// statically-known tags of any type; `+` alone gets the static
// number/string dispatch lowerPlus implements.
func (fc *funcCtx) lowerBinaryOp(op string, lInstrs []opcode.Instruction, lTag langtype.Tag, rInstrs []opcode.Instruction, rTag langtype.Tag) ([]opcode.Instruction, langtype.Tag, error) {
	switch op {
	case "+":
		return fc.lowerPlus(lInstrs, lTag, rInstrs, rTag)
	case "-", "*":
		if lTag != langtype.Number || rTag != langtype.Number {
			return nil, 0, todo("`%s` requires two statically-number operands", op)
		}
		g := fc.c.generic
		opc := g.Sub
		if op == "*" {
			opc = g.Mul
		}
		out := append(append([]opcode.Instruction{}, lInstrs...), rInstrs...)
		out = append(out, opcode.Simple(opc))
		return out, langtype.Number, nil
	case "<", ">", "<=", ">=":
		return fc.lowerRelational(op, lInstrs, lTag, rInstrs, rTag)
	case "==", "===", "!=", "!==":
		return fc.lowerEquality(op, lInstrs, lTag, rInstrs, rTag)
	default:
		return nil, 0, todo("unsupported binary operator %q", op)
	}
}

// lowerPlus implements the only binary operator that overloads across
// types (spec.md §4.5): two statically-number operands add, two
// statically-string operands concatenate. Anything else — including a
// statically-unknown operand, which would need a runtime tag dispatch
// this subset doesn't build — is a TodoError rather than a guess.
func (fc *funcCtx) lowerPlus(lInstrs []opcode.Instruction, lTag langtype.Tag, rInstrs []opcode.Instruction, rTag langtype.Tag) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	if lTag == langtype.Number && rTag == langtype.Number {
		out := append(append([]opcode.Instruction{}, lInstrs...), rInstrs...)
		out = append(out, opcode.Simple(g.Add))
		return out, langtype.Number, nil
	}
	if lTag == langtype.String && rTag == langtype.String {
		return fc.stringConcat(lInstrs, rInstrs)
	}
	return nil, 0, todo("`+` requires two statically-number or two statically-string operands")
}

// stringConcat allocates a fresh page for the concatenation result and
// fills it with two bulk-memory copies: the receiver's units, then the
// argument's, preceded by a length-in-units store (spec.md §4.3's string
// page layout: a u32 length prefix followed by UTF-16 code units).
func (fc *funcCtx) stringConcat(lInstrs, rInstrs []opcode.Instruction) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	lPtr := fc.scope.Temp("#concat_lptr")
	rPtr := fc.scope.Temp("#concat_rptr")
	lLen := fc.scope.Temp("#concat_llen")

	reason := fc.c.nextLiteralReason("string-concat")
	dest := int32(fc.c.allocRuntimeStringPage(reason))

	var out []opcode.Instruction
	out = append(out, payloadToI32(g, lInstrs)...)
	out = append(out, localSet(lPtr.Idx))
	out = append(out, payloadToI32(g, rInstrs)...)
	out = append(out, localSet(rPtr.Idx))
	out = append(out, localGet(lPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg), localSet(lLen.Idx))

	// store combined length = lLen + rLen
	out = append(out, opcode.ConstI32(dest))
	out = append(out, localGet(lLen.Idx))
	out = append(out, localGet(rPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg))
	out = append(out, opcode.Simple(opcode.OpI32Add))
	out = append(out, opcode.WithImm(opcode.OpI32Store, zeroMemarg))

	// copy left units into dest+4
	out = append(out, opcode.ConstI32(dest+4))
	out = append(out, localGet(lPtr.Idx), opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(lLen.Idx), opcode.ConstI32(2), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.WithImm(opcode.OpMemoryCopy, zeroMemidxPair))

	// copy right units into dest+4+lLen*2
	out = append(out, opcode.ConstI32(dest+4))
	out = append(out, localGet(lLen.Idx), opcode.ConstI32(2), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(rPtr.Idx), opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(rPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg))
	out = append(out, opcode.ConstI32(2), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.WithImm(opcode.OpMemoryCopy, zeroMemidxPair))

	out = append(out, i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(dest)})...)
	return out, langtype.String, nil
}

// stringEquals implements spec.md §4.5's string-equality algorithm: a
// pointer-equality fast path (the common case of comparing a string
// against itself), a length fast path, then a 16-bit-unit-wise
// comparison loop over the shared length. Leaves an i32 boolean (1 for
// equal) on the stack.
func (fc *funcCtx) stringEquals(lInstrs, rInstrs []opcode.Instruction) []opcode.Instruction {
	g := fc.c.generic
	lPtr := fc.scope.Temp("#streq_lptr")
	rPtr := fc.scope.Temp("#streq_rptr")
	lLen := fc.scope.Temp("#streq_llen")
	rLen := fc.scope.Temp("#streq_rlen")
	i := fc.scope.Temp("#streq_i")
	result := fc.scope.Temp("#streq_result")

	var out []opcode.Instruction
	out = append(out, payloadToI32(g, lInstrs)...)
	out = append(out, localSet(lPtr.Idx))
	out = append(out, payloadToI32(g, rInstrs)...)
	out = append(out, localSet(rPtr.Idx))
	out = append(out, localGet(lPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg), localSet(lLen.Idx))
	out = append(out, localGet(rPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg), localSet(rLen.Idx))

	// result defaults to "equal"; every mismatch path below overwrites it
	// before branching out to $done.
	out = append(out, opcode.ConstI32(1), localSet(result.Idx))

	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true})) // $done

	out = append(out, localGet(lPtr.Idx), localGet(rPtr.Idx), opcode.Simple(opcode.OpI32Eq))
	out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(0)))

	out = append(out, localGet(lLen.Idx), localGet(rLen.Idx), opcode.Simple(opcode.OpI32Eq))
	out = append(out, opcode.Simple(opcode.OpI32Eqz))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, opcode.ConstI32(0), localSet(result.Idx))
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(1)))
	out = append(out, opcode.Simple(opcode.OpEnd))

	out = append(out, opcode.ConstI32(0), localSet(i.Idx))
	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true})) // $loopdone
	out = append(out, opcode.Block(opcode.OpLoop, opcode.BlockType{Empty: true}))  // $loop
	out = append(out, localGet(i.Idx), localGet(lLen.Idx), opcode.Simple(opcode.OpI32GeS))
	out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(1)))

	out = append(out, localGet(lPtr.Idx), opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(i.Idx), opcode.ConstI32(2), opcode.Simple(opcode.OpI32Mul), opcode.Simple(opcode.OpI32Add))
	out = append(out, opcode.WithImm(opcode.OpI32Load16U, zeroMemarg))
	out = append(out, localGet(rPtr.Idx), opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(i.Idx), opcode.ConstI32(2), opcode.Simple(opcode.OpI32Mul), opcode.Simple(opcode.OpI32Add))
	out = append(out, opcode.WithImm(opcode.OpI32Load16U, zeroMemarg))
	out = append(out, opcode.Simple(opcode.OpI32Eq))
	out = append(out, opcode.Simple(opcode.OpI32Eqz))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, opcode.ConstI32(0), localSet(result.Idx))
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(2)))
	out = append(out, opcode.Simple(opcode.OpEnd))

	out = append(out, localGet(i.Idx), opcode.ConstI32(1), opcode.Simple(opcode.OpI32Add), localSet(i.Idx))
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(0)))
	out = append(out, opcode.Simple(opcode.OpEnd)) // end $loop
	out = append(out, opcode.Simple(opcode.OpEnd)) // end $loopdone
	out = append(out, opcode.Simple(opcode.OpEnd)) // end $done

	out = append(out, localGet(result.Idx))
	return out
}

// lowerRelational implements <, >, <=, >= over two statically-number
// operands, building <= and >= from Lt since Generic only exposes a
// less-than comparison (spec.md §4.1's generic-opcode table).
func (fc *funcCtx) lowerRelational(op string, lInstrs []opcode.Instruction, lTag langtype.Tag, rInstrs []opcode.Instruction, rTag langtype.Tag) ([]opcode.Instruction, langtype.Tag, error) {
	if lTag != langtype.Number || rTag != langtype.Number {
		return nil, 0, todo("relational operator %q requires two statically-number operands", op)
	}
	g := fc.c.generic
	var out []opcode.Instruction
	switch op {
	case "<":
		out = append(out, lInstrs...)
		out = append(out, rInstrs...)
		out = append(out, opcode.Simple(g.Lt()))
	case ">":
		out = append(out, rInstrs...)
		out = append(out, lInstrs...)
		out = append(out, opcode.Simple(g.Lt()))
	case "<=":
		out = append(out, rInstrs...)
		out = append(out, lInstrs...)
		out = append(out, opcode.Simple(g.Lt()), opcode.Simple(opcode.OpI32Eqz))
	case ">=":
		out = append(out, lInstrs...)
		out = append(out, rInstrs...)
		out = append(out, opcode.Simple(g.Lt()), opcode.Simple(opcode.OpI32Eqz))
	default:
		return nil, 0, todo("unsupported relational operator %q", op)
	}
	out = i32ToPayload(g, out)
	return out, langtype.Boolean, nil
}

// lowerEquality implements ==/===/!=/!== over two statically-known-type
// operands (spec.md §4.5 scopes loose-equality coercion out of this
// subset, so == and === share this same comparison once both tags are
// known). Operands whose static tags disagree still get evaluated, for
// their side effects, before the compile-time-constant boolean result.
func (fc *funcCtx) lowerEquality(op string, lInstrs []opcode.Instruction, lTag langtype.Tag, rInstrs []opcode.Instruction, rTag langtype.Tag) ([]opcode.Instruction, langtype.Tag, error) {
	if lTag == builtin.Unknown || rTag == builtin.Unknown {
		return nil, 0, todo("equality operator %q requires two statically-known-type operands", op)
	}
	g := fc.c.generic
	negate := op == "!=" || op == "!=="

	if lTag != rTag {
		out := append(append([]opcode.Instruction{}, lInstrs...), opcode.Simple(opcode.OpDrop))
		out = append(out, rInstrs...)
		out = append(out, opcode.Simple(opcode.OpDrop))
		result := int32(0)
		if negate {
			result = 1
		}
		out = i32ToPayload(g, append(out, opcode.ConstI32(result)))
		return out, langtype.Boolean, nil
	}

	var cmp []opcode.Instruction
	switch lTag {
	case langtype.Number:
		cmp = append(append([]opcode.Instruction{}, lInstrs...), rInstrs...)
		cmp = append(cmp, opcode.Simple(g.Eq))
	case langtype.Boolean, langtype.Undefined, langtype.Object:
		lp := payloadToI32(g, lInstrs)
		rp := payloadToI32(g, rInstrs)
		cmp = append(append([]opcode.Instruction{}, lp...), rp...)
		cmp = append(cmp, opcode.Simple(opcode.OpI32Eq))
	case langtype.String:
		cmp = fc.stringEquals(lInstrs, rInstrs)
	default:
		return nil, 0, todo("equality comparison of type %s is not supported", lTag.DisplayName())
	}
	if negate {
		cmp = append(cmp, opcode.Simple(opcode.OpI32Eqz))
	}
	cmp = i32ToPayload(g, cmp)
	return cmp, langtype.Boolean, nil
}
