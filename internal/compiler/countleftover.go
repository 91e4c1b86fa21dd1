package compiler

import (
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// calleeShape reports a called function's parameter and result counts, so
// countLeftover can account for call's net stack effect (spec.md §4.8).
// funcIndex is a resolved callee index. countLeftover runs before
// self-calls are patched, so a self-call still carries its sentinel
// immediate; that immediate does not decode as a LEB128 index and the
// call is skipped rather than passed to calleeShape.
type calleeShape func(funcIndex uint32) (params, results int)

// countLeftover is a linear approximation of the net stack effect of body
// at depth 0 (spec.md §4.8). It is not a full WASM validator: structured
// control instructions (block/loop/if/try) are not descended into
// specially, matching spec.md §9's "linear approximation adequate for
// well-formed inputs" — every lowering routine in this package is
// responsible for leaving its block's net effect consistent with what its
// caller expects, exactly as the heuristic assumes.
func countLeftover(body []opcode.Instruction, shape calleeShape) int {
	net := 0
	for _, instr := range body {
		switch instr.Op {
		case opcode.OpI32Const, opcode.OpI64Const, opcode.OpF32Const, opcode.OpF64Const,
			opcode.OpLocalGet, opcode.OpGlobalGet,
			opcode.OpI32Load, opcode.OpI64Load, opcode.OpF32Load, opcode.OpF64Load, opcode.OpI32Load16U:
			net++
		case opcode.OpDrop,
			opcode.OpLocalSet, opcode.OpGlobalSet:
			net--
		case opcode.OpI32Store, opcode.OpI64Store, opcode.OpF32Store, opcode.OpF64Store, opcode.OpI32Store16:
			net -= 2
		case opcode.OpMemoryCopy, opcode.OpMemoryFill:
			net -= 3
		case opcode.OpThrow:
			net--
		case opcode.OpReturn:
			net = 0
		case opcode.OpCall:
			idx, _, err := leb128.LoadUint32(instr.Imm)
			if err != nil || shape == nil {
				continue
			}
			params, results := shape(idx)
			net += results - params
		default:
			// Arithmetic, comparison, and conversion opcodes are not
			// adjusted: spec.md §4.8 only names the categories above, so
			// this heuristic leaves everything else untouched rather than
			// modeling each opcode's exact arity.
		}
	}
	return net
}
