package hostparser

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tombl/jsaot/ast"
)

func parseOne(t *testing.T, src string) *ast.Node {
	t.Helper()
	p := &miniParser{src: []rune(src)}
	prog, err := p.parseProgram()
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	return prog.Body[0].Expression
}

func TestMiniParserArithmeticPrecedence(t *testing.T) {
	expr := parseOne(t, "1 + 2 * 3")
	require.Equal(t, ast.BinaryExpression, expr.Type)
	require.Equal(t, "+", expr.Operator)
	require.Equal(t, ast.BinaryExpression, expr.Right.Type)
	require.Equal(t, "*", expr.Right.Operator)
}

func TestMiniParserMemberAndCall(t *testing.T) {
	expr := parseOne(t, `a.b.c(1, "x")`)
	require.Equal(t, ast.CallExpression, expr.Type)
	require.Len(t, expr.Arguments, 2)
	require.Equal(t, ast.MemberExpression, expr.Callee.Type)
}

func TestMiniParserArrayLiteral(t *testing.T) {
	expr := parseOne(t, "[1, 2, 3]")
	require.Equal(t, ast.ArrayExpression, expr.Type)
	require.Len(t, expr.Elements, 3)
}

func TestMiniParserUnsupportedConstructErrors(t *testing.T) {
	p := &miniParser{src: []rune("function f() {}")}
	_, err := p.parseProgram()
	require.Error(t, err)
}
