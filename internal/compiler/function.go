package compiler

import (
	"fmt"

	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/ir"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/scope"
)

// selfCallSentinel marks a not-yet-resolved self-recursive call site
// (spec.md §4.7, §9's "self-referential function indices"): a single
// 0xff byte is never a complete LEB128 encoding on its own (the high bit
// marks a continuation byte), so it can't collide with a real callee
// index and is easy to find again during the patch pass.
var selfCallSentinel = []byte{0xff}

func isSelfCallSentinel(imm []byte) bool {
	return len(imm) == 1 && imm[0] == 0xff
}

// patchSelfCalls rewrites every `call selfCallSentinel` in body to call
// the function's own, now-known index (spec.md §4.7's "patch" state;
// §8's "Self-call patching" invariant).
func patchSelfCalls(body []opcode.Instruction, index uint32) []opcode.Instruction {
	enc := leb128.EncodeUint32(index)
	for i, instr := range body {
		if instr.Op == opcode.OpCall && isSelfCallSentinel(instr.Imm) {
			body[i].Imm = enc
		}
	}
	return body
}

// funcCtx is the per-function compile state: its scope, its own name and
// reserved index (for self-call resolution), a running count of inline
// "fresh" scratch locals, the statically-known return type seen so far
// (if any returns disagree, it falls back to Unknown), and whether a
// throw site has been lowered inside it (spec.md §7's "throws propagates
// up").
type funcCtx struct {
	c         *Compilation
	scope     *scope.Scope
	name      string
	selfIndex uint32
	fresh     int
	throws    bool

	returnTagSeen bool
	returnTag     langtype.Tag
}

// noteReturn folds one ReturnStatement's static tag into the function's
// overall statically-known return type.
func (fc *funcCtx) noteReturn(tag langtype.Tag) {
	if !fc.returnTagSeen {
		fc.returnTagSeen = true
		fc.returnTag = tag
		return
	}
	if fc.returnTag != tag {
		fc.returnTag = builtin.Unknown
	}
}

// lastTypeIdx returns the i32 local slot backing #last_type (spec.md
// §3's GLOSSARY entry): the tag-half of a dedicated temp pair, so no
// separate local-allocation mechanism is needed beyond the one scope
// already provides for ordinary bindings.
func (fc *funcCtx) lastTypeIdx() uint32 {
	return fc.scope.Temp("#last_type").TypeTagIdx()
}

// setLastType emits the instructions that record a runtime-computed tag
// into #last_type.
func (fc *funcCtx) setLastType(tagInstrs []opcode.Instruction) []opcode.Instruction {
	out := append([]opcode.Instruction{}, tagInstrs...)
	out = append(out, opcode.WithImm(opcode.OpLocalSet, leb128.EncodeUint32(fc.lastTypeIdx())))
	return out
}

// getLastType emits the instruction that reads #last_type back.
func (fc *funcCtx) getLastType() opcode.Instruction {
	return opcode.WithImm(opcode.OpLocalGet, leb128.EncodeUint32(fc.lastTypeIdx()))
}

// freshLocal implements builtin.FreshLocal: built-in generators ask for
// scratch working space without needing to know this function's scope.
// An i32 request reuses the tag-half of a throwaway temp pair (always
// i32 regardless of module valtype); any other request uses the
// payload-half, which is the module valtype.
func (fc *funcCtx) freshLocal(vt opcode.ValType) uint32 {
	fc.fresh++
	b := fc.scope.Temp(fmt.Sprintf("#fresh%d", fc.fresh))
	if vt == opcode.I32 && fc.scope.Valtype != opcode.I32 {
		return b.TypeTagIdx()
	}
	return b.Idx
}

// localPairTypes returns the alternating (payload, tag) valtype sequence
// for n local pairs, matching spec.md §3's slot-pairing invariant.
func localPairTypes(vt opcode.ValType, pairs uint32) []opcode.ValType {
	out := make([]opcode.ValType, 0, pairs*2)
	for i := uint32(0); i < pairs; i++ {
		out = append(out, vt, opcode.I32)
	}
	return out
}

// hoistFunctionIndices reserves a function-table index for every
// top-level FunctionDeclaration, in source order, before any body is
// lowered — so a call to a sibling declared later in the source (or by
// a function declared earlier, i.e. ordinary mutual recursion) resolves
// like any other named function instead of needing the -1 placeholder,
// which this compiler reserves for strict self-recursion only (spec.md
// §4.7 names self-recursion specifically).
func (c *Compilation) hoistFunctionIndices(body []*ast.Node) {
	for _, stmt := range body {
		decl := stmt
		if stmt.Type == ast.ExportNamedDeclaration && stmt.Declaration != nil {
			decl = stmt.Declaration
		}
		if decl.Type == ast.FunctionDeclaration && decl.Id != nil {
			if _, exists := c.funcIndex[decl.Id.Name]; !exists {
				c.funcIndex[decl.Id.Name] = c.nextFuncIndex()
				c.funcs = append(c.funcs, ir.Func{Name: decl.Id.Name})
			}
		}
	}
}

// compileFunction lowers a FunctionDeclaration/FunctionExpression/
// ArrowFunctionExpression node into an ir.Func (spec.md §4.7). export
// flags the resulting record; index is the (possibly pre-hoisted) slot
// this function occupies.
func (c *Compilation) compileFunction(node *ast.Node, name string, index uint32, export bool, topLevel bool) (ir.Func, error) {
	sc := scope.New(name, c.globals, c.cfg.Valtype)
	fc := &funcCtx{c: c, scope: sc, name: name, selfIndex: index, returnTag: builtin.Unknown}

	for _, p := range node.Params {
		meta := &scope.Metadata{DeclaredType: p.AnnotatedTypeName()}
		sc.AllocParam(p.Name, meta)
	}
	paramPairs := uint32(len(node.Params))

	var bodyStmts []*ast.Node
	if node.Type == ast.ArrowFunctionExpression && node.Expression != nil {
		// Expression-bodied arrow: `(x) => x + 1`, wrapped in a synthetic
		// return (spec.md §4.7).
		bodyStmts = []*ast.Node{{Type: ast.ReturnStatement, Argument: node.Expression}}
	} else {
		bodyStmts = node.Body
	}

	var body []opcode.Instruction
	for _, stmt := range bodyStmts {
		instrs, err := fc.lowerStmt(stmt, topLevel)
		if err != nil {
			return ir.Func{}, err
		}
		body = append(body, instrs...)
	}

	leftover := countLeftover(body, c.calleeShape)
	if leftover == 0 {
		payload, tag := fc.undefinedValue()
		body = append(body, payload, opcode.ConstI32(int32(tag)))
		body = append(body, opcode.Simple(opcode.OpReturn))
		fc.noteReturn(tag)
	}
	body = patchSelfCalls(body, index)

	localPairs := sc.LocalCount() - paramPairs

	fn := ir.Func{
		Name:       name,
		Params:     localPairTypes(c.cfg.Valtype, paramPairs),
		Locals:     localPairTypes(c.cfg.Valtype, localPairs),
		Returns:    []opcode.ValType{c.cfg.Valtype, opcode.I32},
		Body:       body,
		Index:      index,
		Export:     export,
		Throws:     fc.throws,
		ReturnType: int32(fc.returnTag),
	}
	return fn, nil
}

// calleeShape resolves a finalized (or hoisted-but-not-yet-compiled)
// function's parameter/result counts for countLeftover (spec.md §4.8).
func (c *Compilation) calleeShape(index uint32) (params, results int) {
	for i := range c.funcs {
		if c.funcs[i].Index == index || i == c.funcSlot(index) {
			if len(c.funcs[i].Params) > 0 || len(c.funcs[i].Returns) > 0 {
				return len(c.funcs[i].Params), len(c.funcs[i].Returns)
			}
		}
	}
	return 0, 2
}

// calleeReturnType resolves a callee's statically-known return type
// (spec.md §4.8's call-site type propagation). A hoisted-but-not-yet-
// compiled placeholder has a zero-valued ReturnType field that would
// otherwise be misread as langtype.Number (also zero), so it's guarded
// by the same "has this actually finished compiling" check calleeShape
// uses: Returns is only populated once compileFunction has run.
func (c *Compilation) calleeReturnType(index uint32) langtype.Tag {
	for i := range c.funcs {
		if c.funcs[i].Index == index || i == c.funcSlot(index) {
			if len(c.funcs[i].Returns) > 0 {
				return langtype.Tag(c.funcs[i].ReturnType)
			}
			return builtin.Unknown
		}
	}
	return builtin.Unknown
}

// calleeThrows reports whether a finalized callee's body contains a
// throw site. A not-yet-compiled placeholder (forward reference,
// mutual recursion) conservatively reports false; the fixed-point pass
// in Compile re-checks every call site after every function has
// compiled once, so a later answer is never missed.
func (c *Compilation) calleeThrows(index uint32) bool {
	for i := range c.funcs {
		if c.funcs[i].Index == index || i == c.funcSlot(index) {
			return c.funcs[i].Throws
		}
	}
	return false
}

// undefinedValue emits the single payload instruction for the canonical
// `undefined` value (spec.md §3: the distinguished value UNDEF, tag
// Undefined). Callers that need the tag alongside it append
// opcode.ConstI32(int32(tag)) themselves.
func (fc *funcCtx) undefinedValue() (instr opcode.Instruction, tag langtype.Tag) {
	return fc.c.generic.ConstF64(langtype.Undef), langtype.Undefined
}
