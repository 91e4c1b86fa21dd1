package compiler

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/ir"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/page"
	"github.com/tombl/jsaot/internal/scope"
)

// lowerExpr lowers n to an instruction sequence that leaves exactly one
// payload value on the stack (spec.md §3's value representation); tag is
// the statically-known type of that value, or builtin.Unknown when it can
// only be read back from #last_type at runtime.
func (fc *funcCtx) lowerExpr(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	switch n.Type {
	case ast.Literal:
		return fc.lowerLiteral(n)
	case ast.Identifier:
		return fc.lowerIdentifier(n)
	case ast.BinaryExpression:
		lInstrs, lTag, err := fc.lowerExpr(n.Left)
		if err != nil {
			return nil, 0, err
		}
		rInstrs, rTag, err := fc.lowerExpr(n.Right)
		if err != nil {
			return nil, 0, err
		}
		return fc.lowerBinaryOp(n.Operator, lInstrs, lTag, rInstrs, rTag)
	case ast.LogicalExpression:
		return fc.lowerLogical(n)
	case ast.UnaryExpression:
		return fc.lowerUnary(n)
	case ast.UpdateExpression:
		return fc.lowerUpdate(n)
	case ast.AssignmentExpression:
		return fc.lowerAssign(n)
	case ast.ConditionalExpression:
		return fc.lowerConditional(n)
	case ast.MemberExpression:
		return fc.lowerMember(n)
	case ast.CallExpression:
		return fc.lowerCall(n)
	case ast.NewExpression:
		return fc.lowerNew(n)
	case ast.ArrayExpression:
		return fc.lowerArrayLiteral(n, "")
	case ast.TaggedTemplateExpression:
		return fc.lowerTagged(n)
	default:
		return nil, 0, todo("unsupported expression kind %q", n.Type)
	}
}

// undefinedExpr is the canonical fallback value for an unresolved
// object-hacked identifier (spec.md §4.4: a missing property reads as
// undefined rather than throwing).
func (fc *funcCtx) undefinedExpr() ([]opcode.Instruction, langtype.Tag, error) {
	instr, tag := fc.undefinedValue()
	return []opcode.Instruction{instr}, tag, nil
}

func (fc *funcCtx) lowerLiteral(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic

	if n.IsNullLiteral() {
		return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(0)}), langtype.Object, nil
	}
	if n.Regex != nil {
		return fc.lowerRegexLiteral(n)
	}

	var raw interface{}
	if err := json.Unmarshal(n.Value, &raw); err != nil {
		return nil, 0, todoWrap(err, "decoding literal value")
	}
	switch v := raw.(type) {
	case float64:
		return []opcode.Instruction{g.ConstF64(v)}, langtype.Number, nil
	case bool:
		val := int32(0)
		if v {
			val = 1
		}
		return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(val)}), langtype.Boolean, nil
	case string:
		s, err := n.StringValue()
		if err != nil {
			return nil, 0, todoWrap(err, "decoding string literal")
		}
		reason := fc.c.nextLiteralReason("string-literal")
		ptr := fc.c.allocStringLiteral(reason, s)
		return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))}), langtype.String, nil
	case nil:
		instr, tag := fc.undefinedValue()
		return []opcode.Instruction{instr}, tag, nil
	default:
		return nil, 0, todo("unsupported literal value shape")
	}
}

// lowerRegexLiteral validates pattern/flags and, if a RegexCompiler is
// configured, compiles and registers the match function. Executing a
// match and representing the resulting object in full is out of scope
// (spec.md §1 excludes regex-compilation internals); this stashes the
// compiled function's own index as the literal's payload, tagged Regexp,
// as the minimal stand-in this subset needs to exercise the interface.
func (fc *funcCtx) lowerRegexLiteral(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	if err := fc.c.cfg.RegexChecker.Check(n.Regex.Pattern, n.Regex.Flags); err != nil {
		return nil, 0, todoWrap(err, "regex literal /%s/%s", n.Regex.Pattern, n.Regex.Flags)
	}
	if fc.c.cfg.RegexCompiler == nil {
		return nil, 0, todo("regex literal /%s/%s requires a configured RegexCompiler", n.Regex.Pattern, n.Regex.Flags)
	}
	params, results, body, err := fc.c.cfg.RegexCompiler.CompileRegexFunc(n.Regex.Pattern, n.Regex.Flags)
	if err != nil {
		return nil, 0, todoWrap(err, "compiling regex literal /%s/%s", n.Regex.Pattern, n.Regex.Flags)
	}
	idx := fc.c.nextFuncIndex()
	fc.c.funcs = append(fc.c.funcs, ir.Func{
		Name:    fmt.Sprintf("regex$%d", idx),
		Params:  params,
		Returns: results,
		Body:    body,
		Index:   idx,
	})
	return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(idx))}), langtype.Regexp, nil
}

// readBinding emits the instructions that load b's current value,
// consulting its runtime tag slot only when its statically-known tag
// (from declared/inferred metadata) is Unknown.
func (fc *funcCtx) readBinding(b *scope.Binding, isGlobal bool) ([]opcode.Instruction, langtype.Tag) {
	get := localGet
	if isGlobal {
		get = globalGet
	}
	tag := knownTagOfBinding(b)
	var out []opcode.Instruction
	if tag == builtin.Unknown {
		out = append(out, fc.setLastType([]opcode.Instruction{get(b.TypeTagIdx())})...)
	}
	out = append(out, get(b.Idx))
	return out, tag
}

func (fc *funcCtx) lowerIdentifier(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if b, isGlobal, ok := fc.scope.Lookup(n.Name); ok {
		instrs, tag := fc.readBinding(b, isGlobal)
		return instrs, tag, nil
	}
	if v, ok := fc.c.registry.LookupVar(n.Name); ok {
		if v.Const == nil {
			return nil, 0, todo("built-in variable %s has no compile-time constant body", n.Name)
		}
		return []opcode.Instruction{v.Const(fc.c.generic)}, v.Tag, nil
	}
	if strings.HasPrefix(n.Name, "__") {
		return fc.undefinedExpr()
	}
	return fc.throwError(ReferenceError, fmt.Sprintf("%s is not defined", n.Name)), builtin.Unknown, nil
}

// truthy converts an already-lowered value to an i32 boolean. Exact for
// Undefined/Array/Function/String (pointers are always non-zero once
// allocated) and for Object (null is payload zero, matching the only
// object value this subset ever produces); a statically-unknown operand
// is resolved with a genuine runtime type switch over its #last_type tag
// (spec.md §4.5), rather than the "payload != 0" approximation that would
// otherwise (incorrectly) read an empty, non-null string pointer as
// truthy only by accident.
func (fc *funcCtx) truthy(instrs []opcode.Instruction, tag langtype.Tag) []opcode.Instruction {
	g := fc.c.generic
	out := append([]opcode.Instruction{}, instrs...)
	switch tag {
	case langtype.Undefined:
		return append(out, opcode.Simple(opcode.OpDrop), opcode.ConstI32(0))
	case langtype.Array, langtype.Function:
		return append(out, opcode.Simple(opcode.OpDrop), opcode.ConstI32(1))
	case langtype.String:
		out = payloadToI32(g, out)
		return append(out, opcode.WithImm(opcode.OpI32Load, zeroMemarg))
	case builtin.Unknown:
		return fc.truthyUnknown(out)
	default:
		out = append(out, g.ConstF64(0), opcode.Simple(g.Eq), opcode.Simple(opcode.OpI32Eqz))
		return out
	}
}

// truthyUnknown dispatches a statically-unknown-typed value to the
// per-tag truthy conversion truthy applies for each known tag, switching
// at runtime on #last_type rather than guessing. Every known language-
// visible tag this subset produces gets its own case; anything else
// (including Number/Boolean/Object, which all share the same numeric
// payload!=0 rule) falls to the default arm.
func (fc *funcCtx) truthyUnknown(instrs []opcode.Instruction) []opcode.Instruction {
	g := fc.c.generic
	tmp := fc.scope.Temp("#truthy_tmp")
	var out []opcode.Instruction
	out = append(out, instrs...)
	out = append(out, localSet(tmp.Idx))

	stringCase := payloadToI32(g, []opcode.Instruction{localGet(tmp.Idx)})
	stringCase = append(stringCase, opcode.WithImm(opcode.OpI32Load, zeroMemarg))

	cases := []typeSwitchCase{
		{tag: langtype.Undefined, instrs: []opcode.Instruction{opcode.ConstI32(0)}},
		{tag: langtype.Array, instrs: []opcode.Instruction{opcode.ConstI32(1)}},
		{tag: langtype.Function, instrs: []opcode.Instruction{opcode.ConstI32(1)}},
		{tag: langtype.String, instrs: stringCase},
	}

	var def []opcode.Instruction
	def = append(def, localGet(tmp.Idx), g.ConstF64(0), opcode.Simple(g.Eq), opcode.Simple(opcode.OpI32Eqz))

	out = append(out, fc.lowerTypeSwitch([]opcode.Instruction{fc.getLastType()}, cases, def, opcode.I32)...)
	return out
}

// nullish reports whether an already-lowered value is `undefined` or
// `null` (spec.md §4.5's `??`). A statically-unknown operand only checks
// the runtime tag against Undefined — the rarer `null` (Object tag,
// zero payload) case for an unknown-typed operand is not distinguished,
// a documented simplification for this peripheral operator.
func (fc *funcCtx) nullish(instrs []opcode.Instruction, tag langtype.Tag) []opcode.Instruction {
	g := fc.c.generic
	out := append([]opcode.Instruction{}, instrs...)
	switch tag {
	case langtype.Undefined:
		return append(out, opcode.Simple(opcode.OpDrop), opcode.ConstI32(1))
	case langtype.Object:
		out = payloadToI32(g, out)
		return append(out, opcode.ConstI32(0), opcode.Simple(opcode.OpI32Eq))
	case builtin.Unknown:
		out = append(out, opcode.Simple(opcode.OpDrop))
		out = append(out, tagInstr(fc, tag)...)
		return append(out, opcode.ConstI32(int32(langtype.Undefined)), opcode.Simple(opcode.OpI32Eq))
	default:
		return append(out, opcode.Simple(opcode.OpDrop), opcode.ConstI32(0))
	}
}

func (fc *funcCtx) lowerLogical(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	leftInstrs, leftTag, err := fc.lowerExpr(n.Left)
	if err != nil {
		return nil, 0, err
	}
	rightInstrs, rightTag, err := fc.lowerExpr(n.Right)
	if err != nil {
		return nil, 0, err
	}

	resultTag := leftTag
	if leftTag != rightTag || leftTag == builtin.Unknown {
		resultTag = builtin.Unknown
	}

	tmp := fc.scope.Temp("#logic_tmp")
	var out []opcode.Instruction
	out = append(out, leftInstrs...)
	out = append(out, localSet(tmp.Idx))
	out = append(out, tagInstr(fc, leftTag)...)
	out = append(out, localSet(tmp.TypeTagIdx()))

	var cond []opcode.Instruction
	if n.Operator == "??" {
		cond = fc.nullish([]opcode.Instruction{localGet(tmp.Idx)}, leftTag)
	} else {
		cond = fc.truthy([]opcode.Instruction{localGet(tmp.Idx)}, leftTag)
	}

	leftResult := []opcode.Instruction{localGet(tmp.Idx)}
	if resultTag == builtin.Unknown {
		leftResult = fc.wrapArmWithTag(leftResult, leftTag)
		rightInstrs = fc.wrapArmWithTag(rightInstrs, rightTag)
	}

	out = append(out, cond...)
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Result: g.Valtype}))
	switch n.Operator {
	case "&&":
		out = append(out, rightInstrs...)
		out = append(out, opcode.Simple(opcode.OpElse))
		out = append(out, leftResult...)
	case "||":
		out = append(out, leftResult...)
		out = append(out, opcode.Simple(opcode.OpElse))
		out = append(out, rightInstrs...)
	case "??":
		out = append(out, rightInstrs...)
		out = append(out, opcode.Simple(opcode.OpElse))
		out = append(out, leftResult...)
	default:
		return nil, 0, todo("unsupported logical operator %q", n.Operator)
	}
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out, resultTag, nil
}

func (fc *funcCtx) lowerUnary(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	switch n.Operator {
	case "typeof":
		return fc.lowerTypeof(n.Argument)
	case "delete":
		// This subset never models property descriptors, so `delete` folds
		// to a constant (spec.md §4.5's boundary case: "delete
		// constant-true/false"): false for a declared binding, true for
		// anything else.
		val := int32(1)
		if n.Argument != nil && n.Argument.Type == ast.Identifier {
			if _, _, declared := fc.scope.Lookup(n.Argument.Name); declared {
				val = 0
			}
		}
		return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(val)}), langtype.Boolean, nil
	case "void":
		argInstrs, _, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, 0, err
		}
		instr, tag := fc.undefinedValue()
		out := append(append([]opcode.Instruction{}, argInstrs...), opcode.Simple(opcode.OpDrop), instr)
		return out, tag, nil
	case "!":
		argInstrs, argTag, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, 0, err
		}
		out := fc.truthy(argInstrs, argTag)
		out = append(out, opcode.Simple(opcode.OpI32Eqz))
		out = i32ToPayload(g, out)
		return out, langtype.Boolean, nil
	case "-":
		argInstrs, argTag, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, 0, err
		}
		if argTag != builtin.Unknown && argTag != langtype.Number {
			return nil, 0, todo("unary - requires a number operand")
		}
		out := append([]opcode.Instruction{g.ConstF64(0)}, argInstrs...)
		out = append(out, opcode.Simple(g.Sub))
		return out, langtype.Number, nil
	case "+":
		argInstrs, argTag, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, 0, err
		}
		if argTag != builtin.Unknown && argTag != langtype.Number {
			return nil, 0, todo("unary + requires a number operand")
		}
		return argInstrs, langtype.Number, nil
	case "~":
		argInstrs, argTag, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, 0, err
		}
		if argTag != builtin.Unknown && argTag != langtype.Number {
			return nil, 0, todo("unary ~ requires a number operand")
		}
		out := payloadToI32(g, argInstrs)
		out = append(out, opcode.ConstI32(-1), opcode.Simple(opcode.OpI32Xor))
		out = i32ToPayload(g, out)
		return out, langtype.Number, nil
	default:
		return nil, 0, todo("unsupported unary operator %q", n.Operator)
	}
}

// lowerTypeof never throws on an unresolvable name (spec.md §4.5's
// boundary case: typeof on an undeclared identifier is "undefined", not
// a ReferenceError). It also recognizes a hoisted top-level function's
// own name used as a bare identifier, since this subset has no
// first-class function values otherwise.
func (fc *funcCtx) lowerTypeof(arg *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if arg.Type == ast.Identifier {
		if _, _, ok := fc.scope.Lookup(arg.Name); !ok {
			if _, ok := fc.c.registry.LookupVar(arg.Name); !ok {
				if _, ok := fc.c.funcIndex[arg.Name]; ok {
					return fc.typeofStringLiteral(langtype.Function), langtype.String, nil
				}
				return fc.typeofStringLiteral(langtype.Undefined), langtype.String, nil
			}
		}
	}
	argInstrs, argTag, err := fc.lowerExpr(arg)
	if err != nil {
		return nil, 0, err
	}
	if argTag != builtin.Unknown {
		out := append(append([]opcode.Instruction{}, argInstrs...), opcode.Simple(opcode.OpDrop))
		return append(out, fc.typeofStringLiteral(argTag)...), langtype.String, nil
	}
	return nil, 0, todo("typeof of a statically-unknown value is not supported")
}

func (fc *funcCtx) typeofStringLiteral(tag langtype.Tag) []opcode.Instruction {
	g := fc.c.generic
	name := tag.TypeofName()
	reason := "typeof:" + name
	ptr := fc.c.allocStringLiteral(reason, name)
	return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))})
}

func (fc *funcCtx) lowerUpdate(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Argument.Type != ast.Identifier {
		return nil, 0, todo("update expression target must be a simple identifier")
	}
	b, isGlobal, ok := fc.scope.Lookup(n.Argument.Name)
	if !ok {
		return fc.throwError(ReferenceError, fmt.Sprintf("%s is not defined", n.Argument.Name)), builtin.Unknown, nil
	}
	if knownTagOfBinding(b) != langtype.Number {
		return nil, 0, todo("update expression requires a statically-number operand")
	}
	g := fc.c.generic
	get, set := localGet, localSet
	if isGlobal {
		get, set = globalGet, globalSet
	}
	delta := 1.0
	if n.Operator == "--" {
		delta = -1
	}

	var out []opcode.Instruction
	if n.Prefix {
		out = append(out, get(b.Idx), g.ConstF64(delta), opcode.Simple(g.Add), set(b.Idx), get(b.Idx))
	} else {
		old := fc.scope.Temp("#update_old")
		out = append(out, get(b.Idx), localSet(old.Idx))
		out = append(out, localGet(old.Idx), g.ConstF64(delta), opcode.Simple(g.Add), set(b.Idx))
		out = append(out, localGet(old.Idx))
	}
	return out, langtype.Number, nil
}

func (fc *funcCtx) lowerAssign(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Left.Type == ast.MemberExpression {
		return fc.lowerMemberAssign(n)
	}
	if n.Left.Type != ast.Identifier {
		return nil, 0, todo("assignment target must be an identifier or an indexed member")
	}
	name := n.Left.Name
	b, isGlobal, ok := fc.scope.Lookup(name)
	if !ok {
		return fc.throwError(ReferenceError, fmt.Sprintf("%s is not defined", name)), builtin.Unknown, nil
	}

	var valInstrs []opcode.Instruction
	var valTag langtype.Tag
	if n.Operator == "=" {
		instrs, tag, err := fc.lowerExpr(n.Right)
		if err != nil {
			return nil, 0, err
		}
		valInstrs, valTag = instrs, tag
	} else {
		baseOp, ok := compoundOps[n.Operator]
		if !ok {
			return nil, 0, todo("unsupported assignment operator %q", n.Operator)
		}
		lInstrs, lTag := fc.readBinding(b, isGlobal)
		rInstrs, rTag, err := fc.lowerExpr(n.Right)
		if err != nil {
			return nil, 0, err
		}
		instrs, tag, err := fc.lowerBinaryOp(baseOp, lInstrs, lTag, rInstrs, rTag)
		if err != nil {
			return nil, 0, err
		}
		valInstrs, valTag = instrs, tag
	}

	get, set := localGet, localSet
	if isGlobal {
		get, set = globalGet, globalSet
	}
	writeTag := knownTagOfBinding(b) == builtin.Unknown

	out := append([]opcode.Instruction{}, valInstrs...)
	out = append(out, set(b.Idx))
	if writeTag {
		out = append(out, tagInstr(fc, valTag)...)
		out = append(out, set(b.TypeTagIdx()))
	}
	out = append(out, get(b.Idx))
	return out, valTag, nil
}

// lowerMemberAssign handles indexed array element stores; `.length`
// assignment is rejected as a runtime TypeError (arrays in this subset
// have no resizable-length semantics), and any other non-computed target
// is unsupported.
func (fc *funcCtx) lowerMemberAssign(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	left := n.Left
	if !left.Computed {
		if left.Property != nil && left.Property.Name == "length" {
			return fc.throwError(TypeError, "cannot assign to array length"), builtin.Unknown, nil
		}
		return nil, 0, todo("unsupported member assignment target")
	}
	if n.Operator != "=" {
		return nil, 0, todo("compound assignment to an indexed element is not supported")
	}
	g := fc.c.generic
	objInstrs, objTag, err := fc.lowerExpr(left.Object)
	if err != nil {
		return nil, 0, err
	}
	if objTag == langtype.String {
		return nil, 0, todo("string index assignment is not supported")
	}
	idxInstrs, _, err := fc.lowerExpr(left.Property)
	if err != nil {
		return nil, 0, err
	}
	valInstrs, valTag, err := fc.lowerExpr(n.Right)
	if err != nil {
		return nil, 0, err
	}

	elemSize := g.Valtype.Size()
	ptr := payloadToI32(g, objInstrs)
	idx := payloadToI32(g, idxInstrs)

	tmp := fc.scope.Temp("#member_assign_val")
	var out []opcode.Instruction
	out = append(out, valInstrs...)
	out = append(out, localSet(tmp.Idx))

	out = append(out, ptr...)
	out = append(out, opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, idx...)
	out = append(out, opcode.ConstI32(int32(elemSize)), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(tmp.Idx))
	out = append(out, opcode.WithImm(g.Store, zeroMemarg))
	out = append(out, localGet(tmp.Idx))
	return out, valTag, nil
}

func (fc *funcCtx) lowerConditional(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	testInstrs, testTag, err := fc.lowerExpr(n.Test)
	if err != nil {
		return nil, 0, err
	}
	cond := fc.truthy(testInstrs, testTag)

	consInstrs, consTag, err := fc.lowerExpr(n.Consequent)
	if err != nil {
		return nil, 0, err
	}
	altInstrs, altTag, err := fc.lowerExpr(n.Alternate)
	if err != nil {
		return nil, 0, err
	}

	resultTag := consTag
	if consTag != altTag || consTag == builtin.Unknown {
		resultTag = builtin.Unknown
		consInstrs = fc.wrapArmWithTag(consInstrs, consTag)
		altInstrs = fc.wrapArmWithTag(altInstrs, altTag)
	}

	var out []opcode.Instruction
	out = append(out, cond...)
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Result: g.Valtype}))
	out = append(out, consInstrs...)
	out = append(out, opcode.Simple(opcode.OpElse))
	out = append(out, altInstrs...)
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out, resultTag, nil
}

func (fc *funcCtx) lowerMember(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if !n.Computed {
		if n.Property != nil && n.Property.Name == "length" {
			return fc.lowerLength(n.Object)
		}
		return nil, 0, todo("unsupported member access `.%s`", propName(n.Property))
	}
	return fc.lowerIndex(n.Object, n.Property)
}

func propName(n *ast.Node) string {
	if n == nil {
		return "?"
	}
	return n.Name
}

func (fc *funcCtx) lowerLength(objNode *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	objInstrs, objTag, err := fc.lowerExpr(objNode)
	if err != nil {
		return nil, 0, err
	}
	if objTag == builtin.Unknown {
		return nil, 0, todo("`.length` on a statically-unknown receiver type is not supported")
	}
	pf, ok := fc.c.registry.LookupProto(objTag, "length")
	if !ok {
		return nil, 0, todo("type %s has no length property", objTag.DisplayName())
	}
	setup, ptr, length := fc.receiverAccessors(objInstrs)
	body, tag, err := pf.Body(fc.c.generic, ptr, length, nil, fc.freshLocal)
	if err != nil {
		return nil, 0, todoWrap(err, "length")
	}
	return append(setup, body...), tag, nil
}

// lowerIndex lowers `obj[i]`. This subset's numeric indexed-read is
// array-only (string indexing isn't supported at all, known-tag or not),
// so unlike method-call dispatch a statically-unknown receiver gets no
// type-switch here: there's only ever one non-rejected candidate shape
// (Array) to dispatch to, and guessing it for an operand that might
// actually be a string or number at runtime would silently read garbage
// out of memory instead of failing loudly. Scoped out deliberately,
// not an oversight (spec.md §4.2).
func (fc *funcCtx) lowerIndex(objNode, propNode *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	objInstrs, objTag, err := fc.lowerExpr(objNode)
	if err != nil {
		return nil, 0, err
	}
	if objTag == langtype.String {
		return nil, 0, todo("string index read is not supported")
	}
	if objTag == builtin.Unknown {
		return nil, 0, todo("indexed read on a statically-unknown receiver type is not supported")
	}
	idxInstrs, _, err := fc.lowerExpr(propNode)
	if err != nil {
		return nil, 0, err
	}
	elemSize := g.Valtype.Size()
	ptr := payloadToI32(g, objInstrs)
	idx := payloadToI32(g, idxInstrs)

	var out []opcode.Instruction
	out = append(out, ptr...)
	out = append(out, opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, idx...)
	out = append(out, opcode.ConstI32(int32(elemSize)), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.Simple(opcode.OpI32Add))
	out = append(out, opcode.WithImm(g.Load, zeroMemarg))
	return out, langtype.Number, nil
}

func (fc *funcCtx) lowerCall(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Callee.Type == ast.MemberExpression && !n.Callee.Computed {
		return fc.lowerMethodCall(n)
	}
	if n.Callee.Type != ast.Identifier {
		return nil, 0, todo("call target must be a simple function name")
	}
	name := n.Callee.Name

	if name == "eval" {
		return fc.lowerEval(n)
	}
	if name == "Array" {
		return fc.lowerArrayCtor(n.Arguments)
	}
	if name == fc.name {
		return fc.lowerUserCall(selfCallSentinel, fc.selfIndex, n.Arguments)
	}
	if idx, ok := fc.c.funcIndex[name]; ok {
		return fc.lowerUserCall(leb128.EncodeUint32(idx), idx, n.Arguments)
	}

	candidates := []string{name}
	if strings.HasPrefix(name, "__") {
		candidates = append(candidates, strings.TrimPrefix(name, "__"))
	}
	for _, cand := range candidates {
		if f, ok := fc.c.registry.LookupFunc(cand); ok {
			return fc.lowerBuiltinCall(f, n.Arguments)
		}
	}
	for _, cand := range candidates {
		if ctor, ok := fc.c.registry.LookupCtor(cand); ok {
			return fc.lowerCtorCall(ctor, n.Arguments)
		}
	}
	if strings.HasPrefix(name, "__") {
		return fc.undefinedExpr()
	}
	return fc.throwError(ReferenceError, fmt.Sprintf("%s is not defined", name)), builtin.Unknown, nil
}

// lowerMethodCall dispatches `receiver.method(args)` to the registered
// prototype-method generator for the receiver's statically-known type
// tag, or to a runtime type switch across every registered receiver for
// that method name when the receiver's tag can only be known at runtime
// (spec.md §4.2).
func (fc *funcCtx) lowerMethodCall(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	method := propName(n.Callee.Property)
	objInstrs, objTag, err := fc.lowerExpr(n.Callee.Object)
	if err != nil {
		return nil, 0, err
	}
	if objTag == builtin.Unknown {
		return fc.lowerMethodCallDynamic(method, objInstrs, n.Arguments)
	}
	pf, ok := fc.c.registry.LookupProto(objTag, method)
	if !ok {
		return nil, 0, todo("no prototype method %q on type %s", method, objTag.DisplayName())
	}

	var argInstrs [][]opcode.Instruction
	if pf.NeedsDest {
		reason := fc.c.nextLiteralReason(method)
		argInstrs = append(argInstrs, fc.allocDestPage(pf.ReturnType, reason))
	}
	for _, a := range n.Arguments {
		instrs, _, err := fc.lowerExpr(a)
		if err != nil {
			return nil, 0, err
		}
		argInstrs = append(argInstrs, instrs)
	}

	setup, ptr, length := fc.receiverAccessors(objInstrs)
	body, tag, err := pf.Body(fc.c.generic, ptr, length, argInstrs, fc.freshLocal)
	if err != nil {
		return nil, 0, todoWrap(err, "method %s", method)
	}
	return append(setup, body...), tag, nil
}

// lowerMethodCallDynamic handles `receiver.method(args)` when the
// receiver's type tag can only be known at runtime: it evaluates the
// receiver and its arguments once, then type-switches on #last_type
// across every registered receiver tag for method, running that
// candidate's generator when it matches and raising a TypeError when
// none do (spec.md §4.2, §4.5). receiverAccessors is called once and
// reused across every candidate, since the shared (length-prefix, data)
// heap layout means the accessor pair itself never depends on which
// candidate tag ultimately matches.
func (fc *funcCtx) lowerMethodCallDynamic(method string, objInstrs []opcode.Instruction, argNodes []*ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	candidates := fc.c.registry.CandidateTags(method)
	if len(candidates) == 0 {
		return nil, 0, todo("no prototype method %q is registered for any type", method)
	}

	var argInstrs [][]opcode.Instruction
	for _, a := range argNodes {
		instrs, _, err := fc.lowerExpr(a)
		if err != nil {
			return nil, 0, err
		}
		argInstrs = append(argInstrs, instrs)
	}

	setup, ptr, length := fc.receiverAccessors(objInstrs)

	resultTag := fc.c.registry.SingleCandidateReturnType(method)

	var cases []typeSwitchCase
	for _, tag := range candidates {
		pf, ok := fc.c.registry.LookupProto(tag, method)
		if !ok {
			continue
		}
		callArgs := argInstrs
		if pf.NeedsDest {
			reason := fc.c.nextLiteralReason(fmt.Sprintf("%s:%s", method, tag.DisplayName()))
			callArgs = append([][]opcode.Instruction{fc.allocDestPage(pf.ReturnType, reason)}, argInstrs...)
		}
		body, bodyTag, err := pf.Body(g, ptr, length, callArgs, fc.freshLocal)
		if err != nil {
			return nil, 0, todoWrap(err, "method %s on %s", method, tag.DisplayName())
		}
		if resultTag == builtin.Unknown {
			body = fc.wrapArmWithTag(body, bodyTag)
		}
		cases = append(cases, typeSwitchCase{tag: tag, instrs: body})
	}

	def := fc.throwError(TypeError, fmt.Sprintf("receiver has no method %q", method))

	out := append([]opcode.Instruction{}, setup...)
	out = append(out, fc.lowerTypeSwitch([]opcode.Instruction{fc.getLastType()}, cases, def, g.Valtype)...)
	return out, resultTag, nil
}

// lowerUserCall emits a call to a user-defined function: each argument is
// pushed as a (payload, tag) pair, matching localPairTypes' ABI, and the
// callee's multi-value (payload, tag) result is folded back down into the
// single-payload-plus-#last_type contract every other expression obeys.
// calleeIndex resolves the callee's own statically-known return type
// (spec.md §4.8), when it has already been compiled, and records the
// caller->callee edge the throws-propagation fixed point walks (spec.md
// §7); a forward reference to a not-yet-compiled sibling just reports
// builtin.Unknown here; the call graph still catches its Throws bit once
// the fixed point runs.
func (fc *funcCtx) lowerUserCall(calleeImm []byte, calleeIndex uint32, argNodes []*ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	fc.c.recordCall(fc.selfIndex, calleeIndex)

	var out []opcode.Instruction
	for _, a := range argNodes {
		instrs, tag, err := fc.lowerExpr(a)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, instrs...)
		out = append(out, tagInstr(fc, tag)...)
	}
	out = append(out, opcode.WithImm(opcode.OpCall, calleeImm))

	tmp := fc.scope.Temp("#call_result")
	out = append(out, localSet(tmp.TypeTagIdx()))
	out = append(out, localSet(tmp.Idx))
	out = append(out, fc.setLastType([]opcode.Instruction{localGet(tmp.TypeTagIdx())})...)
	out = append(out, localGet(tmp.Idx))
	return out, fc.c.calleeReturnType(calleeIndex), nil
}

// lowerBuiltinCall invokes a registered built-in's inline generator with
// bare payload-only arguments (none of the wired built-ins set
// TypedParams).
func (fc *funcCtx) lowerBuiltinCall(f builtin.Func, argNodes []*ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	var argInstrs [][]opcode.Instruction
	for _, a := range argNodes {
		instrs, _, err := fc.lowerExpr(a)
		if err != nil {
			return nil, 0, err
		}
		argInstrs = append(argInstrs, instrs)
	}
	body, tag, err := f.Body(fc.c.generic, nil, nil, argInstrs, fc.freshLocal)
	if err != nil {
		return nil, 0, todoWrap(err, "builtin %s", f.Name)
	}
	return body, tag, nil
}

func (fc *funcCtx) lowerCtorCall(ctor builtin.Ctor, argNodes []*ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	reason := fc.c.nextLiteralReason("ctor")
	ptr := fc.c.allocRuntimeArrayPage(reason)
	ptrInstrs := []opcode.Instruction{opcode.ConstI32(int32(ptr))}

	var argInstrs [][]opcode.Instruction
	for _, a := range argNodes {
		instrs, _, err := fc.lowerExpr(a)
		if err != nil {
			return nil, 0, err
		}
		argInstrs = append(argInstrs, instrs)
	}

	body, err := ctor.Body(g, ptrInstrs, argInstrs, fc.freshLocal)
	if err != nil {
		return nil, 0, todoWrap(err, "constructor %s", ctor.Name)
	}
	out := append(body, i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))})...)
	return out, ctor.ReturnType, nil
}

func (fc *funcCtx) lowerNew(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Callee.Type == ast.Identifier && n.Callee.Name == "Array" {
		return fc.lowerArrayCtor(n.Arguments)
	}
	return nil, 0, todo("unsupported constructor in `new` expression")
}

// lowerArrayCtor implements `new Array(n)`/`Array(n)`: length must be a
// compile-time numeric literal (spec.md §4.5's boundary case covers a
// negative/fractional length as a runtime RangeError).
func (fc *funcCtx) lowerArrayCtor(args []*ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if len(args) != 1 {
		return nil, 0, todo("new Array() expects exactly one length argument")
	}
	g := fc.c.generic
	arg := args[0]
	if arg.Type != ast.Literal {
		return nil, 0, todo("new Array() length must be a compile-time numeric literal")
	}
	v, err := arg.NumberValue()
	if err != nil {
		return nil, 0, todo("new Array() length must be a compile-time numeric literal")
	}
	if v < 0 || v != math.Trunc(v) || v > 4294967295 {
		return fc.throwError(RangeError, "invalid array length"), builtin.Unknown, nil
	}
	reason := fc.c.nextLiteralReason("array-literal")
	ptr := fc.c.allocConstArrayLiteral(reason, make([]float64, int(v)))
	return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))}), langtype.Array, nil
}

// lowerArrayLiteral lowers an ArrayExpression. nameHint, if non-empty, is
// used as the page's declared-name reason (spec.md §4.3); otherwise an
// anonymous counter-based reason is used.
func (fc *funcCtx) lowerArrayLiteral(n *ast.Node, nameHint string) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic

	allConst := true
	constVals := make([]float64, len(n.Elements))
	for i, el := range n.Elements {
		if el == nil || el.Type != ast.Literal || el.IsNullLiteral() || el.Regex != nil {
			allConst = false
			break
		}
		v, err := el.NumberValue()
		if err != nil {
			allConst = false
			break
		}
		constVals[i] = v
	}

	reason := nameHint
	if reason == "" {
		reason = fc.c.nextLiteralReason("array-literal")
	} else {
		reason = page.ArrayReason(nameHint)
	}

	if allConst {
		ptr := fc.c.allocConstArrayLiteral(reason, constVals)
		if nameHint != "" {
			fc.c.pages.BindName(nameHint, reason)
		}
		return i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))}), langtype.Array, nil
	}

	ptr := fc.c.allocRuntimeArrayPage(reason)
	if nameHint != "" {
		fc.c.pages.BindName(nameHint, reason)
	}
	elemSize := g.Valtype.Size()

	var out []opcode.Instruction
	out = append(out, opcode.ConstI32(int32(ptr)), opcode.ConstI32(int32(len(n.Elements))), opcode.WithImm(opcode.OpI32Store, zeroMemarg))
	for i, el := range n.Elements {
		elInstrs, _, err := fc.lowerExpr(el)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, opcode.ConstI32(int32(ptr)+4+int32(i*elemSize)))
		out = append(out, elInstrs...)
		out = append(out, opcode.WithImm(g.Store, zeroMemarg))
	}
	out = append(out, i32ToPayload(g, []opcode.Instruction{opcode.ConstI32(int32(ptr))})...)
	return out, langtype.Array, nil
}

func (fc *funcCtx) lowerTagged(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Tag == nil || n.Tag.Type != ast.Identifier {
		return nil, 0, todo("tagged template callee must be a simple identifier")
	}
	switch n.Tag.Name {
	case "asm":
		instrs, err := lowerAsm(quasisRaw(n.Quasi))
		if err != nil {
			return nil, 0, err
		}
		return instrs, builtin.Unknown, nil
	case "__internal_print_type":
		return fc.lowerPrintType(n)
	default:
		return nil, 0, todo("unsupported tagged template %q", n.Tag.Name)
	}
}

func quasisRaw(quasi *ast.Node) string {
	if quasi == nil {
		return ""
	}
	var parts []string
	for _, q := range quasi.Quasis {
		parts = append(parts, q.Raw)
	}
	return strings.Join(parts, "")
}

// lowerPrintType implements the `__internal_print_type` diagnostic
// intrinsic: it prints the runtime type tag of its one substitution
// expression as a decimal number followed by a newline, via the same two
// host imports every printer built-in uses.
func (fc *funcCtx) lowerPrintType(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if n.Quasi == nil || len(n.Quasi.Expressions) != 1 {
		return nil, 0, todo("__internal_print_type takes exactly one substitution expression")
	}
	valInstrs, tag, err := fc.lowerExpr(n.Quasi.Expressions[0])
	if err != nil {
		return nil, 0, err
	}
	var out []opcode.Instruction
	out = append(out, valInstrs...)
	out = append(out, opcode.Simple(opcode.OpDrop))
	out = append(out, tagInstr(fc, tag)...)
	out = i32ToF64(out)
	out = append(out, opcode.WithImm(opcode.OpCall, leb128.EncodeUint32(builtin.ImportNumberPrinter)))
	out = append(out, opcode.ConstI32(10))
	out = append(out, opcode.WithImm(opcode.OpCall, leb128.EncodeUint32(builtin.ImportCharPrinter)))
	instr, undTag := fc.undefinedValue()
	out = append(out, instr)
	return out, undTag, nil
}
