package compiler

import (
	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/scope"
)

// zeroMemarg is the (align=0, offset=0) memarg immediate shared by every
// load/store this compiler emits: every heap access goes through a
// pointer value already holding the final address, so there is never a
// static offset to fold in.
var zeroMemarg = []byte{0, 0}

// zeroMemidxPair is the (memidx=0, memidx=0) immediate bulk-memory
// instructions carry in a single-memory module.
var zeroMemidxPair = []byte{0, 0}

func localGet(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpLocalGet, leb128.EncodeUint32(idx))
}
func localSet(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpLocalSet, leb128.EncodeUint32(idx))
}
func globalGet(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpGlobalGet, leb128.EncodeUint32(idx))
}
func globalSet(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpGlobalSet, leb128.EncodeUint32(idx))
}

// tagInstr builds the instruction sequence that pushes tag's i32 value:
// a constant if known statically, or a read of #last_type if the value's
// type can only be known at runtime (spec.md §3's "discoverable either
// statically... or via a dedicated slot #last_type").
func tagInstr(fc *funcCtx, tag langtype.Tag) []opcode.Instruction {
	if tag == builtin.Unknown {
		return []opcode.Instruction{fc.getLastType()}
	}
	return []opcode.Instruction{opcode.ConstI32(int32(tag))}
}

// payloadToI32 converts a payload-valtype value already on the stack
// (via instrs) to an i32 pointer/index, per spec.md §4.1's "conversion
// between valtype and i32 is inserted only where required".
func payloadToI32(g opcode.Generic, instrs []opcode.Instruction) []opcode.Instruction {
	out := append([]opcode.Instruction{}, instrs...)
	if g.I32To != opcode.OpNop {
		out = append(out, opcode.Simple(g.I32To))
	}
	return out
}

// i32ToPayload converts an i32 value already on the stack to the module
// payload valtype.
func i32ToPayload(g opcode.Generic, instrs []opcode.Instruction) []opcode.Instruction {
	out := append([]opcode.Instruction{}, instrs...)
	if g.I32From != opcode.OpNop {
		out = append(out, opcode.Simple(g.I32From))
	}
	return out
}

// wrapArmWithTag stashes a branch's payload in a scratch local, records
// its tag into #last_type, then restores the payload. Used wherever two
// differently-typed control-flow arms (an if/else, a try/catch_all) merge
// back into a single value and the merged result's tag can only be known
// at runtime: without this, whichever arm runs last would leave
// #last_type holding only ITS tag, silently wrong if the other arm had
// run instead.
func (fc *funcCtx) wrapArmWithTag(instrs []opcode.Instruction, tag langtype.Tag) []opcode.Instruction {
	tmp := fc.scope.Temp("#arm_tmp")
	out := append([]opcode.Instruction{}, instrs...)
	out = append(out, localSet(tmp.Idx))
	out = append(out, tagInstr(fc, tag)...)
	out = append(out, localSet(fc.lastTypeIdx()))
	out = append(out, localGet(tmp.Idx))
	return out
}

// isTailProducing reports whether the last statement of a body lowered
// with tailValue=true actually leaves a value (spec.md §4.8's implicit
// return / countLeftover consequence).
func isTailProducing(stmts []*ast.Node) bool {
	if len(stmts) == 0 {
		return false
	}
	last := stmts[len(stmts)-1]
	return last.Type == ast.ExpressionStatement || last.Type == ast.TryStatement
}

// knownTagOfBinding resolves a binding's statically-known type tag from
// its metadata (an explicit type annotation, or — since this subset has
// no richer inference — the tag inferred from its initializer at
// declaration time, stashed in the same field). builtin.Unknown if
// neither is available, meaning every read of this binding must consult
// its runtime tag slot instead.
func knownTagOfBinding(b *scope.Binding) langtype.Tag {
	if b == nil || b.Metadata == nil {
		return builtin.Unknown
	}
	return tagFromTypeName(b.Metadata.DeclaredType)
}

// i32ToF64 converts an i32 value already on the stack to f64, regardless
// of the module's payload valtype. The host print_number import always
// takes f64 (spec.md §6's diagnostic printers), so callers feeding it a
// tag value can't go through the generic payload conversion helpers.
func i32ToF64(instrs []opcode.Instruction) []opcode.Instruction {
	out := append([]opcode.Instruction{}, instrs...)
	return append(out, opcode.Simple(opcode.OpF64ConvertI32S))
}

// compoundOps maps a compound-assignment operator to the binary operator
// it expands into; only the arithmetic ops this subset's lowerBinaryOp
// fully supports are listed (spec.md §4.6 scopes compound assignment to
// the same operand-type requirements as the bare operator).
var compoundOps = map[string]string{
	"+=": "+",
	"-=": "-",
	"*=": "*",
}

var tagByName = map[string]langtype.Tag{
	"number":    langtype.Number,
	"boolean":   langtype.Boolean,
	"string":    langtype.String,
	"undefined": langtype.Undefined,
	"object":    langtype.Object,
	"function":  langtype.Function,
	"symbol":    langtype.Symbol,
	"bigint":    langtype.BigInt,
	"array":     langtype.Array,
	"regexp":    langtype.Regexp,
}

// tagFromTypeName maps a declared/inferred type name (spec.md §6's
// consumed TypeScript annotation, or this compiler's own
// initializer-inference extension of that same field) back to a Tag.
func tagFromTypeName(name string) langtype.Tag {
	if t, ok := tagByName[name]; ok {
		return t
	}
	return builtin.Unknown
}

// tagDeclaredTypeName is tagFromTypeName's inverse, used to stash an
// initializer's statically-known tag into scope.Metadata.DeclaredType
// when a variable declaration carries no explicit type annotation.
// Returns "" for builtin.Unknown, leaving the runtime tag slot as the
// only source of truth for that binding.
func tagDeclaredTypeName(tag langtype.Tag) string {
	if tag == builtin.Unknown {
		return ""
	}
	return tag.DisplayName()
}
