package compiler

import (
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// maxLangTag is the highest tag value langtype currently defines
// (Regexp, an internal tag); the br_table dispatcher builds a dense
// table spanning every tag from 0 up to this value.
const maxLangTag = int32(langtype.Regexp)

// typeSwitchCase pairs a candidate runtime type tag with the already-
// lowered instructions to run when the dispatched value carries it.
type typeSwitchCase struct {
	tag    langtype.Tag
	instrs []opcode.Instruction
}

// lowerTypeSwitch dispatches on a runtime type tag (tagInstrs, typically
// a read of #last_type) across cases, falling back to defaultInstrs when
// none match — spec.md §4.5's "enumerate type-tag -> generator
// candidates ... emit a leading type-switch on the receiver", generalized
// to every dynamic-dispatch call site this subset needs. Every
// instruction sequence (each case and the default) must leave exactly
// one value of resultType on the stack. An if-chain is always correct
// and is the default; -typeswitch-use-brtable selects a br_table
// dispatcher instead.
func (fc *funcCtx) lowerTypeSwitch(tagInstrs []opcode.Instruction, cases []typeSwitchCase, defaultInstrs []opcode.Instruction, resultType opcode.ValType) []opcode.Instruction {
	if fc.c.cfg.UseBrTable {
		return lowerTypeSwitchBrTable(tagInstrs, cases, defaultInstrs, resultType)
	}
	return lowerTypeSwitchIfChain(tagInstrs, cases, defaultInstrs, resultType)
}

// lowerTypeSwitchIfChain builds a cascade of `tag == caseTag` checks.
// tagInstrs is re-evaluated once per case; this is only ever a local
// read (#last_type or a cached tag temp), so repeating it has no
// observable side effect.
func lowerTypeSwitchIfChain(tagInstrs []opcode.Instruction, cases []typeSwitchCase, defaultInstrs []opcode.Instruction, resultType opcode.ValType) []opcode.Instruction {
	var build func(i int) []opcode.Instruction
	build = func(i int) []opcode.Instruction {
		if i >= len(cases) {
			return defaultInstrs
		}
		var out []opcode.Instruction
		out = append(out, tagInstrs...)
		out = append(out, opcode.ConstI32(int32(cases[i].tag)))
		out = append(out, opcode.Simple(opcode.OpI32Eq))
		out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Result: resultType}))
		out = append(out, cases[i].instrs...)
		out = append(out, opcode.Simple(opcode.OpElse))
		out = append(out, build(i+1)...)
		out = append(out, opcode.Simple(opcode.OpEnd))
		return out
	}
	return build(0)
}

// lowerTypeSwitchBrTable builds a dense br_table jump table over every
// tag value from 0 to maxLangTag. Cases are nested innermost-first
// (case 0 innermost) inside a $default block inside a $exit block that
// carries resultType; a case body falls out of its own block straight
// into the case's instructions, then branches past every remaining case
// (and $default) to $exit. A tag with no matching case, including any
// value past maxLangTag, branches to $default via the same mechanism
// br_table uses for an out-of-range index — no explicit bounds check
// needed.
func lowerTypeSwitchBrTable(tagInstrs []opcode.Instruction, cases []typeSwitchCase, defaultInstrs []opcode.Instruction, resultType opcode.ValType) []opcode.Instruction {
	n := uint32(len(cases))
	byTag := make(map[int32]uint32, n)
	for i, c := range cases {
		byTag[int32(c.tag)] = uint32(i)
	}
	table := make([]uint32, maxLangTag+1)
	for v := range table {
		if depth, ok := byTag[int32(v)]; ok {
			table[v] = depth
		} else {
			table[v] = n
		}
	}

	var out []opcode.Instruction
	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Result: resultType})) // $exit
	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true}))         // $default
	for i := len(cases) - 1; i >= 0; i-- {
		out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true})) // $case[i]
	}
	out = append(out, tagInstrs...)
	out = append(out, opcode.WithImm(opcode.OpBrTable, encodeBrTable(table, n)))
	for i, c := range cases {
		out = append(out, opcode.Simple(opcode.OpEnd)) // end $case[i]
		out = append(out, c.instrs...)
		out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(n-uint32(i))))
	}
	out = append(out, opcode.Simple(opcode.OpEnd)) // end $default
	out = append(out, defaultInstrs...)
	out = append(out, opcode.Simple(opcode.OpEnd)) // end $exit
	return out
}

// encodeBrTable builds a br_table immediate: a byte-vector of target
// labels indexed by the dispatched value, followed by the default label.
func encodeBrTable(targets []uint32, def uint32) []byte {
	out := leb128.EncodeUint32(uint32(len(targets)))
	for _, t := range targets {
		out = append(out, leb128.EncodeUint32(t)...)
	}
	out = append(out, leb128.EncodeUint32(def)...)
	return out
}
