package compiler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/scope"
)

func numberAnnotation() *ast.Node { return &ast.Node{Name: "number"} }

func ident(name string) *ast.Node { return &ast.Node{Type: ast.Identifier, Name: name} }

func numberParam(name string) *ast.Node {
	return &ast.Node{Type: ast.Identifier, Name: name, TypeAnnotation: numberAnnotation()}
}

func numLit(v string) *ast.Node {
	return &ast.Node{Type: ast.Literal, Value: json.RawMessage(v)}
}

func strLit(v string) *ast.Node {
	enc, _ := json.Marshal(v)
	return &ast.Node{Type: ast.Literal, Value: json.RawMessage(enc)}
}

func newTestFuncCtx() *funcCtx {
	c := newCompilation(Config{})
	sc := scope.New("test", c.globals, c.cfg.Valtype)
	return &funcCtx{c: c, scope: sc, name: "test", returnTag: builtin.Unknown}
}

func lastOp(instrs []opcode.Instruction) opcode.Op {
	return instrs[len(instrs)-1].Op
}

func containsOp(instrs []opcode.Instruction, op opcode.Op) bool {
	for _, i := range instrs {
		if i.Op == op {
			return true
		}
	}
	return false
}

func TestLowerBinaryOpAddNumbers(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(2)}
	instrs, tag, err := fc.lowerBinaryOp("+", l, langtype.Number, r, langtype.Number)
	require.NoError(t, err)
	require.Equal(t, langtype.Number, tag)
	require.Equal(t, fc.c.generic.Add, lastOp(instrs))
}

func TestLowerPlusStringConcat(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(100)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(200)}
	instrs, tag, err := fc.lowerBinaryOp("+", l, langtype.String, r, langtype.String)
	require.NoError(t, err)
	require.Equal(t, langtype.String, tag)
	require.True(t, containsOp(instrs, opcode.OpMemoryCopy))
}

func TestLowerPlusMixedTypesIsTodo(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(2)}
	_, _, err := fc.lowerBinaryOp("+", l, langtype.Number, r, langtype.String)
	require.Error(t, err)
	var todoErr *TodoError
	require.ErrorAs(t, err, &todoErr)
}

func TestLowerRelational(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(2)}
	instrs, tag, err := fc.lowerBinaryOp("<=", l, langtype.Number, r, langtype.Number)
	require.NoError(t, err)
	require.Equal(t, langtype.Boolean, tag)
	require.True(t, containsOp(instrs, opcode.OpI32Eqz))
}

func TestLowerEqualitySameTag(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	instrs, tag, err := fc.lowerBinaryOp("===", l, langtype.Number, r, langtype.Number)
	require.NoError(t, err)
	require.Equal(t, langtype.Boolean, tag)
	require.True(t, containsOp(instrs, fc.c.generic.Eq))
}

func TestLowerEqualityDifferingTagsIsConstantFalse(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r, tag := fc.undefinedValue()
	instrs, resultTag, err := fc.lowerBinaryOp("===", l, langtype.Number, []opcode.Instruction{r}, tag)
	require.NoError(t, err)
	require.Equal(t, langtype.Boolean, resultTag)
	// Both operand evaluations are kept (for side effects) before the
	// compile-time-constant boolean result.
	require.True(t, containsOp(instrs, opcode.OpDrop))
}

func TestLowerEqualityUnknownTagIsTodo(t *testing.T) {
	fc := newTestFuncCtx()
	l := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	r := []opcode.Instruction{fc.c.generic.ConstF64(1)}
	_, _, err := fc.lowerBinaryOp("==", l, builtin.Unknown, r, langtype.Number)
	require.Error(t, err)
}

func TestLowerWhileEmitsLoopShape(t *testing.T) {
	fc := newTestFuncCtx()
	whileNode := &ast.Node{
		Type: ast.WhileStatement,
		Test: &ast.Node{Type: ast.Literal, Value: json.RawMessage("true")},
		Body: []*ast.Node{{Type: ast.BlockStatement, Body: nil}},
	}
	instrs, err := fc.lowerStmt(whileNode, false)
	require.NoError(t, err)
	require.True(t, containsOp(instrs, opcode.OpLoop))
	require.True(t, containsOp(instrs, opcode.OpBrIf))
}

func TestLowerForRunsUpdateOnContinue(t *testing.T) {
	fc := newTestFuncCtx()
	forNode := &ast.Node{
		Type: ast.ForStatement,
		Init: &ast.Node{
			Type: ast.VariableDeclaration,
			Kind: "let",
			Declarations: []*ast.Node{
				{Type: ast.VariableDeclarator, Id: ident("i"), Init: numLit("0")},
			},
		},
		Test: &ast.Node{
			Type:     ast.BinaryExpression,
			Operator: "<",
			Left:     ident("i"),
			Right:    numLit("10"),
		},
		Update: &ast.Node{
			Type:     ast.UpdateExpression,
			Operator: "++",
			Prefix:   false,
			Argument: ident("i"),
		},
		Body: []*ast.Node{{
			Type: ast.BlockStatement,
			Body: []*ast.Node{
				{Type: ast.ContinueStatement},
			},
		}},
	}
	instrs, err := fc.lowerFor(forNode)
	require.NoError(t, err)
	require.True(t, containsOp(instrs, opcode.OpLoop))
	// The continue branches to depth 0 (the loop start), which is where
	// the guarded update now lives.
	require.True(t, containsOp(instrs, opcode.OpBr))
}

func TestLowerTryCatchBindsExceptionIndex(t *testing.T) {
	fc := newTestFuncCtx()
	tryNode := &ast.Node{
		Type: ast.TryStatement,
		Block: &ast.Node{
			Type: ast.BlockStatement,
			Body: []*ast.Node{
				{
					Type: ast.ThrowStatement,
					Argument: &ast.Node{
						Type:      ast.NewExpression,
						Callee:    ident("RangeError"),
						Arguments: []*ast.Node{strLit("boom")},
					},
				},
			},
		},
		Handler: &ast.Node{
			Type:  ast.CatchClause,
			Param: ident("e"),
			Body:  []*ast.Node{{Type: ast.ReturnStatement, Argument: ident("e")}},
		},
	}
	instrs, _, err := fc.lowerTry(tryNode, false)
	require.NoError(t, err)
	require.True(t, containsOp(instrs, opcode.OpTry))
	require.True(t, containsOp(instrs, opcode.OpCatch))
	require.True(t, containsOp(instrs, opcode.OpThrow))
	require.Len(t, fc.c.exceptions, 1)
	require.Equal(t, "RangeError", fc.c.exceptions[0].Constructor)
	require.Equal(t, "boom", fc.c.exceptions[0].Message)
}

// TestCompileFunctionCallAndGlobal exercises the full driver: a top-level
// function declaration, hoisted and compiled independently, called from
// a top-level variable declaration that becomes part of the synthesized
// main entry point.
func TestCompileFunctionCallAndGlobal(t *testing.T) {
	addFn := &ast.Node{
		Type:   ast.FunctionDeclaration,
		Id:     ident("add"),
		Params: []*ast.Node{numberParam("a"), numberParam("b")},
		Body: []*ast.Node{
			{
				Type: ast.ReturnStatement,
				Argument: &ast.Node{
					Type:     ast.BinaryExpression,
					Operator: "+",
					Left:     ident("a"),
					Right:    ident("b"),
				},
			},
		},
	}

	xDecl := &ast.Node{
		Type: ast.VariableDeclaration,
		Kind: "let",
		Declarations: []*ast.Node{
			{
				Type: ast.VariableDeclarator,
				Id:   ident("x"),
				Init: &ast.Node{
					Type:      ast.CallExpression,
					Callee:    ident("add"),
					Arguments: []*ast.Node{numLit("1"), numLit("2")},
				},
			},
		},
	}

	program := &ast.Node{Type: ast.Program, Body: []*ast.Node{addFn, xDecl}}

	mod, err := Compile(program, Config{})
	require.NoError(t, err)
	require.Len(t, mod.Funcs, 2)
	require.Equal(t, "add", mod.Funcs[0].Name)
	require.Equal(t, "main", mod.Funcs[1].Name)
	require.True(t, mod.Funcs[1].Export)
	require.False(t, mod.Funcs[0].Export)

	require.Len(t, mod.Globals, 1)
	require.Equal(t, "x", mod.Globals[0].Name)
}

func TestCompileEmptyProgram(t *testing.T) {
	program := &ast.Node{Type: ast.Program, Body: nil}
	mod, err := Compile(program, Config{})
	require.NoError(t, err)
	require.Len(t, mod.Funcs, 1)
	require.Equal(t, "main", mod.Funcs[0].Name)
}

func TestCompileThrowUncaughtMarksThrows(t *testing.T) {
	fn := &ast.Node{
		Type: ast.FunctionDeclaration,
		Id:   ident("boom"),
		Body: []*ast.Node{
			{
				Type: ast.ThrowStatement,
				Argument: &ast.Node{
					Type:      ast.NewExpression,
					Callee:    ident("TypeError"),
					Arguments: []*ast.Node{strLit("nope")},
				},
			},
		},
	}
	program := &ast.Node{Type: ast.Program, Body: []*ast.Node{fn}}
	mod, err := Compile(program, Config{})
	require.NoError(t, err)
	require.Len(t, mod.Exceptions, 1)
	require.True(t, mod.Funcs[0].Throws)
}
