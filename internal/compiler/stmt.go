package compiler

import (
	"strings"

	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/scope"
)

// lowerStmt lowers one statement to an instruction sequence with net
// stack effect zero (spec.md §4.8's assumption that countLeftover only
// needs to account for the function body's final implicit-return case).
// topLevel threads through to VariableDeclaration so a top-level `let`/
// `const`/`var` allocates a module global instead of a function local
// (spec.md §4.4).
func (fc *funcCtx) lowerStmt(n *ast.Node, topLevel bool) ([]opcode.Instruction, error) {
	if strings.HasPrefix(string(n.Type), "TS") {
		// TypeScript-only statements (interfaces, type aliases, ...) emit
		// nothing.
		return nil, nil
	}
	switch n.Type {
	case ast.BlockStatement:
		return fc.lowerStmtList(n.Body, topLevel)
	case ast.ExpressionStatement:
		instrs, _, err := fc.lowerExpr(n.Expression)
		if err != nil {
			return nil, err
		}
		return append(instrs, opcode.Simple(opcode.OpDrop)), nil
	case ast.EmptyStatement, ast.DebuggerStatement:
		return nil, nil
	case ast.VariableDeclaration:
		return fc.lowerVariableDeclaration(n, topLevel)
	case ast.IfStatement:
		return fc.lowerIf(n, topLevel)
	case ast.WhileStatement:
		return fc.lowerWhile(n)
	case ast.ForStatement:
		return fc.lowerFor(n)
	case ast.ForOfStatement:
		return fc.lowerForOf(n)
	case ast.BreakStatement:
		depth, ok := fc.scope.BreakDepth()
		if !ok {
			return nil, todo("break outside a loop or block")
		}
		return []opcode.Instruction{opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(depth))}, nil
	case ast.ContinueStatement:
		depth, ok := fc.scope.ContinueDepth()
		if !ok {
			return nil, todo("continue outside a loop")
		}
		return []opcode.Instruction{opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(depth))}, nil
	case ast.ReturnStatement:
		return fc.lowerReturn(n)
	case ast.ThrowStatement:
		return fc.lowerThrow(n)
	case ast.TryStatement:
		instrs, _, err := fc.lowerTry(n, false)
		return instrs, err
	case ast.ExportNamedDeclaration:
		if n.Declaration == nil {
			return nil, nil
		}
		if n.Declaration.Type == ast.FunctionDeclaration {
			// Compiled separately as its own ir.Func by the driver's
			// top-level pass (spec.md §4.7); nothing to emit inline here.
			return nil, nil
		}
		return fc.lowerStmt(n.Declaration, topLevel)
	case ast.FunctionDeclaration:
		return nil, todo("nested function declarations are not supported")
	default:
		return nil, todo("unsupported statement kind %q", n.Type)
	}
}

// lowerStmtList lowers a sequence of statements with no completion value
// (used for plain BlockStatement bodies and try/catch/finally bodies
// outside a value context).
func (fc *funcCtx) lowerStmtList(stmts []*ast.Node, topLevel bool) ([]opcode.Instruction, error) {
	var out []opcode.Instruction
	for _, s := range stmts {
		instrs, err := fc.lowerStmt(s, topLevel)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	return out, nil
}

// lowerBlockBody lowers stmts for a context that may want a completion
// value (spec.md §4.5's eval result): when tailValue is true and the
// last statement is value-producing (isTailProducing), every statement
// but the last is lowered as a plain no-value statement and the last is
// lowered so its value survives on the stack; otherwise the block
// completes with `undefined`, matching a JS block's implicit completion
// value when it ends on a non-expression statement.
func (fc *funcCtx) lowerBlockBody(stmts []*ast.Node, tailValue bool) ([]opcode.Instruction, langtype.Tag, error) {
	if !tailValue || !isTailProducing(stmts) {
		instrs, err := fc.lowerStmtList(stmts, false)
		if err != nil {
			return nil, 0, err
		}
		instr, tag := fc.undefinedValue()
		return append(instrs, instr), tag, nil
	}

	head, err := fc.lowerStmtList(stmts[:len(stmts)-1], false)
	if err != nil {
		return nil, 0, err
	}
	last := stmts[len(stmts)-1]
	switch last.Type {
	case ast.ExpressionStatement:
		instrs, tag, err := fc.lowerExpr(last.Expression)
		if err != nil {
			return nil, 0, err
		}
		return append(head, instrs...), tag, nil
	case ast.TryStatement:
		instrs, tag, err := fc.lowerTry(last, true)
		if err != nil {
			return nil, 0, err
		}
		return append(head, instrs...), tag, nil
	default:
		return nil, 0, todo("unsupported tail statement kind %q", last.Type)
	}
}

// lowerVariableDeclaration lowers every declarator in a `var`/`let`/
// `const` statement. A declarator with no initializer binds `undefined`
// (spec.md §4.4); one with an initializer stashes both the payload and
// the (possibly runtime-only) tag, so a later read never has to guess
// which is authoritative.
func (fc *funcCtx) lowerVariableDeclaration(n *ast.Node, topLevel bool) ([]opcode.Instruction, error) {
	var out []opcode.Instruction
	for _, decl := range n.Declarations {
		if decl.Id == nil || decl.Id.Type != ast.Identifier {
			return nil, todo("variable declaration target must be a simple identifier")
		}
		name := decl.Id.Name

		var valInstrs []opcode.Instruction
		var tag langtype.Tag
		if decl.Init != nil {
			instrs, t, err := fc.lowerExpr(decl.Init)
			if err != nil {
				return nil, err
			}
			valInstrs, tag = instrs, t
		} else {
			instr, t := fc.undefinedValue()
			valInstrs, tag = []opcode.Instruction{instr}, t
		}

		declaredType := decl.Id.AnnotatedTypeName()
		if declaredType == "" {
			declaredType = tagDeclaredTypeName(tag)
		}
		meta := &scope.Metadata{DeclaredType: declaredType}

		var set, setTag func(uint32) opcode.Instruction
		var idx, tagIdx uint32
		if topLevel {
			if _, ok := fc.c.globals.Lookup(name); ok {
				out = append(out, fc.throwError(SyntaxError, "identifier '"+name+"' has already been declared")...)
				continue
			}
			b := fc.c.globals.Alloc(name, meta)
			set, setTag = globalSet, globalSet
			idx, tagIdx = b.Idx, b.TypeTagIdx()
		} else {
			b := fc.scope.AllocLocal(name, meta)
			set, setTag = localSet, localSet
			idx, tagIdx = b.Idx, b.TypeTagIdx()
		}

		out = append(out, valInstrs...)
		out = append(out, set(idx))
		out = append(out, tagInstr(fc, tag)...)
		out = append(out, setTag(tagIdx))
	}
	return out, nil
}

func (fc *funcCtx) lowerIf(n *ast.Node, topLevel bool) ([]opcode.Instruction, error) {
	g := fc.c.generic
	testInstrs, testTag, err := fc.lowerExpr(n.Test)
	if err != nil {
		return nil, err
	}
	cond := fc.truthy(testInstrs, testTag)

	fc.scope.PushDepth(scope.DepthIf)
	consInstrs, err := fc.lowerStmt(n.Consequent, topLevel)
	if err != nil {
		fc.scope.PopDepth()
		return nil, err
	}
	var altInstrs []opcode.Instruction
	if n.Alternate != nil {
		altInstrs, err = fc.lowerStmt(n.Alternate, topLevel)
		if err != nil {
			fc.scope.PopDepth()
			return nil, err
		}
	}
	fc.scope.PopDepth()

	var out []opcode.Instruction
	out = append(out, cond...)
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, consInstrs...)
	if n.Alternate != nil {
		out = append(out, opcode.Simple(opcode.OpElse))
		out = append(out, altInstrs...)
	}
	out = append(out, opcode.Simple(opcode.OpEnd))
	_ = g
	return out, nil
}

// lowerWhile emits the standard block+loop shape: the wrapping block
// exists purely so `break` has a branch target one level further out
// than the loop itself (spec.md §4.6, scope.Scope.BreakDepth's doc).
func (fc *funcCtx) lowerWhile(n *ast.Node) ([]opcode.Instruction, error) {
	testInstrs, testTag, err := fc.lowerExpr(n.Test)
	if err != nil {
		return nil, err
	}
	cond := fc.truthy(testInstrs, testTag)

	fc.scope.PushDepth(scope.DepthWhile)
	bodyInstrs, err := fc.lowerStmtList(n.Body, false)
	fc.scope.PopDepth()
	if err != nil {
		return nil, err
	}

	var out []opcode.Instruction
	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true}))
	out = append(out, opcode.Block(opcode.OpLoop, opcode.BlockType{Empty: true}))
	out = append(out, cond...)
	out = append(out, opcode.Simple(opcode.OpI32Eqz))
	out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(1)))
	out = append(out, bodyInstrs...)
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(0)))
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out, nil
}

// lowerFor lowers a C-style for loop. The update expression is guarded
// by a "#for_started" flag and run at the TOP of the loop body (skipped
// only on the very first pass) rather than after the body: this way a
// `continue`, which can only branch to the loop's own start (scope.Scope
// only models one continue target per loop, not a separate per-construct
// one), still runs the update on its next pass through instead of
// silently skipping it.
func (fc *funcCtx) lowerFor(n *ast.Node) ([]opcode.Instruction, error) {
	var out []opcode.Instruction
	if n.Init != nil {
		if n.Init.Type == ast.VariableDeclaration {
			instrs, err := fc.lowerVariableDeclaration(n.Init, false)
			if err != nil {
				return nil, err
			}
			out = append(out, instrs...)
		} else {
			instrs, _, err := fc.lowerExpr(n.Init)
			if err != nil {
				return nil, err
			}
			out = append(out, instrs...)
			out = append(out, opcode.Simple(opcode.OpDrop))
		}
	}

	var cond []opcode.Instruction
	if n.Test != nil {
		testInstrs, testTag, err := fc.lowerExpr(n.Test)
		if err != nil {
			return nil, err
		}
		cond = fc.truthy(testInstrs, testTag)
	} else {
		cond = []opcode.Instruction{opcode.ConstI32(1)}
	}

	var updateInstrs []opcode.Instruction
	if n.Update != nil {
		instrs, _, err := fc.lowerExpr(n.Update)
		if err != nil {
			return nil, err
		}
		updateInstrs = append(instrs, opcode.Simple(opcode.OpDrop))
	}

	fc.scope.PushDepth(scope.DepthFor)
	bodyInstrs, err := fc.lowerStmtList(n.Body, false)
	fc.scope.PopDepth()
	if err != nil {
		return nil, err
	}

	started := fc.scope.Temp("#for_started")
	out = append(out, opcode.ConstI32(0), localSet(started.Idx))

	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true}))
	out = append(out, opcode.Block(opcode.OpLoop, opcode.BlockType{Empty: true}))
	out = append(out, localGet(started.Idx))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, updateInstrs...)
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, opcode.ConstI32(1), localSet(started.Idx))
	out = append(out, cond...)
	out = append(out, opcode.Simple(opcode.OpI32Eqz))
	out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(1)))
	out = append(out, bodyInstrs...)
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(0)))
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out, nil
}

// lowerForOf implements `for (const x of arr)` over a statically-array
// expression (spec.md §4.6 scopes for-of to arrays; string/iterator
// iteration is a TodoError). The index advance is guarded the same
// "#forof_started" way lowerFor guards its update, for the same
// continue-must-still-advance reason.
func (fc *funcCtx) lowerForOf(n *ast.Node) ([]opcode.Instruction, error) {
	if n.Left == nil || n.Left.Type != ast.VariableDeclaration || len(n.Left.Declarations) != 1 {
		return nil, todo("for-of loop variable must be a single declared binding")
	}
	decl := n.Left.Declarations[0]
	if decl.Id == nil || decl.Id.Type != ast.Identifier {
		return nil, todo("for-of loop variable must be a simple identifier")
	}

	g := fc.c.generic
	objInstrs, objTag, err := fc.lowerExpr(n.Right)
	if err != nil {
		return nil, err
	}
	if objTag != langtype.Array {
		return nil, todo("for-of iteration is only supported over a statically-array expression")
	}
	elemSize := g.Valtype.Size()

	arrPtr := fc.scope.Temp("#forof_ptr")
	arrLen := fc.scope.Temp("#forof_len")
	idx := fc.scope.Temp("#forof_idx")
	started := fc.scope.Temp("#forof_started")
	loopVar := fc.scope.AllocLocal(decl.Id.Name, &scope.Metadata{DeclaredType: "number"})

	var out []opcode.Instruction
	out = append(out, payloadToI32(g, objInstrs)...)
	out = append(out, localSet(arrPtr.Idx))
	out = append(out, localGet(arrPtr.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg), localSet(arrLen.Idx))
	out = append(out, opcode.ConstI32(0), localSet(idx.Idx))
	out = append(out, opcode.ConstI32(0), localSet(started.Idx))

	fc.scope.PushDepth(scope.DepthForOf)
	bodyInstrs, err := fc.lowerStmtList(n.Body, false)
	fc.scope.PopDepth()
	if err != nil {
		return nil, err
	}

	out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true}))
	out = append(out, opcode.Block(opcode.OpLoop, opcode.BlockType{Empty: true}))

	out = append(out, localGet(started.Idx))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, localGet(idx.Idx), opcode.ConstI32(1), opcode.Simple(opcode.OpI32Add), localSet(idx.Idx))
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, opcode.ConstI32(1), localSet(started.Idx))

	out = append(out, localGet(idx.Idx), localGet(arrLen.Idx), opcode.Simple(opcode.OpI32GeS))
	out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(1)))

	out = append(out, localGet(arrPtr.Idx), opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
	out = append(out, localGet(idx.Idx), opcode.ConstI32(int32(elemSize)), opcode.Simple(opcode.OpI32Mul))
	out = append(out, opcode.Simple(opcode.OpI32Add))
	out = append(out, opcode.WithImm(g.Load, zeroMemarg))
	out = append(out, localSet(loopVar.Idx))
	out = append(out, opcode.ConstI32(int32(langtype.Number)), localSet(loopVar.TypeTagIdx()))

	out = append(out, bodyInstrs...)
	out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(0)))
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out, nil
}

func (fc *funcCtx) lowerReturn(n *ast.Node) ([]opcode.Instruction, error) {
	var valInstrs []opcode.Instruction
	var tag langtype.Tag
	if n.Argument != nil {
		instrs, t, err := fc.lowerExpr(n.Argument)
		if err != nil {
			return nil, err
		}
		valInstrs, tag = instrs, t
	} else {
		instr, t := fc.undefinedValue()
		valInstrs, tag = []opcode.Instruction{instr}, t
	}
	fc.noteReturn(tag)

	out := append(append([]opcode.Instruction{}, valInstrs...), tagInstr(fc, tag)...)
	out = append(out, opcode.Simple(opcode.OpReturn))
	return out, nil
}

// lowerThrow only supports `throw new XError("literal message")` (spec.md
// §4.6, §3): the exception table records a constructor name and a
// compile-time message string, so throwing a computed or non-literal
// value has no representation this subset can encode.
func (fc *funcCtx) lowerThrow(n *ast.Node) ([]opcode.Instruction, error) {
	arg := n.Argument
	if arg == nil || arg.Type != ast.NewExpression || arg.Callee == nil || arg.Callee.Type != ast.Identifier ||
		len(arg.Arguments) != 1 || arg.Arguments[0].Type != ast.Literal {
		return nil, todo("throw only supports `throw new XError(\"literal message\")`")
	}
	msg, err := arg.Arguments[0].StringValue()
	if err != nil {
		return nil, todoWrap(err, "throw message must be a string literal")
	}
	return fc.throwError(SemanticErrorKind(arg.Callee.Name), msg), nil
}

// lowerTry lowers a try/catch(/finally) statement. valueContext selects
// whether the try/catch arms' tail value is kept (spec.md §4.5's eval
// completion-value case) or discarded. The catch parameter, if named,
// is bound to the numeric exceptions-table index that was thrown — a
// deliberately crude stand-in for a real Error object, consistent with
// this subset's whole exception model being (constructor, message)
// pairs rather than first-class exception values.
//
// A `finally` block, if present, is emitted unconditionally after the
// try/catch completes normally; it does not run if an exception escapes
// past the catch or if the try/catch body returns or breaks out —
// implementing that correctly needs a second wrapping try whose own
// catch_all re-throws after running the finalizer, which this subset
// does not build.
func (fc *funcCtx) lowerTry(n *ast.Node, valueContext bool) ([]opcode.Instruction, langtype.Tag, error) {
	g := fc.c.generic
	if n.Handler == nil {
		return nil, 0, todo("try without a catch clause is not supported")
	}
	if n.Block == nil {
		return nil, 0, todo("try statement is missing its block")
	}

	fc.scope.PushDepth(scope.DepthTry)
	var tryInstrs []opcode.Instruction
	var tryTag langtype.Tag
	var err error
	if valueContext {
		tryInstrs, tryTag, err = fc.lowerBlockBody(n.Block.Body, true)
	} else {
		tryInstrs, err = fc.lowerStmtList(n.Block.Body, false)
	}
	fc.scope.PopDepth()
	if err != nil {
		return nil, 0, err
	}

	fc.scope.PushDepth(scope.DepthCatch)
	var exBinding *scope.Binding
	if n.Handler.Param != nil && n.Handler.Param.Type == ast.Identifier {
		exBinding = fc.scope.AllocLocal(n.Handler.Param.Name, &scope.Metadata{DeclaredType: "number"})
	}
	var catchInstrs []opcode.Instruction
	var catchTag langtype.Tag
	if valueContext {
		catchInstrs, catchTag, err = fc.lowerBlockBody(n.Handler.Body, true)
	} else {
		catchInstrs, err = fc.lowerStmtList(n.Handler.Body, false)
	}
	fc.scope.PopDepth()
	if err != nil {
		return nil, 0, err
	}

	var catchBind []opcode.Instruction
	if exBinding != nil {
		catchBind = append(catchBind, i32ToPayload(g, nil)...)
		catchBind = append(catchBind, localSet(exBinding.Idx))
		catchBind = append(catchBind, opcode.ConstI32(int32(langtype.Number)), localSet(exBinding.TypeTagIdx()))
	} else {
		catchBind = append(catchBind, opcode.Simple(opcode.OpDrop))
	}

	resultTag := tryTag
	if valueContext {
		if tryTag != catchTag || tryTag == builtin.Unknown {
			resultTag = builtin.Unknown
			tryInstrs = fc.wrapArmWithTag(tryInstrs, tryTag)
			catchInstrs = fc.wrapArmWithTag(catchInstrs, catchTag)
		}
	}

	bt := opcode.BlockType{Empty: true}
	if valueContext {
		bt = opcode.BlockType{Result: g.Valtype}
	}

	var out []opcode.Instruction
	out = append(out, opcode.Block(opcode.OpTry, bt))
	out = append(out, tryInstrs...)
	out = append(out, opcode.WithImm(opcode.OpCatch, leb128.EncodeUint32(0)))
	out = append(out, catchBind...)
	out = append(out, catchInstrs...)
	out = append(out, opcode.Simple(opcode.OpEnd))

	if n.Finalizer != nil {
		finallyInstrs, err := fc.lowerStmtList(n.Finalizer.Body, false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, finallyInstrs...)
	}

	return out, resultTag, nil
}
