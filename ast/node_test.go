package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProgram(t *testing.T) {
	src := `{
		"type": "Program",
		"body": [
			{
				"type": "VariableDeclaration",
				"kind": "let",
				"declarations": [
					{
						"type": "VariableDeclarator",
						"id": {"type": "Identifier", "name": "x"},
						"init": {"type": "Literal", "value": 1, "raw": "1"}
					}
				]
			}
		]
	}`
	n, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, Program, n.Type)
	require.Len(t, n.Body, 1)

	decl := n.Body[0]
	require.Equal(t, VariableDeclaration, decl.Type)
	require.Equal(t, "let", decl.Kind)

	v, err := decl.Declarations[0].Init.NumberValue()
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}

func TestLiteralAccessors(t *testing.T) {
	n, err := Parse([]byte(`{"type": "Literal", "value": "hi"}`))
	require.NoError(t, err)
	s, err := n.StringValue()
	require.NoError(t, err)
	require.Equal(t, "hi", s)

	_, err = n.NumberValue()
	require.Error(t, err)
}

func TestAnnotatedTypeName(t *testing.T) {
	n, err := Parse([]byte(`{
		"type": "Identifier",
		"name": "x",
		"typeAnnotation": {"type": "TSTypeAnnotation", "typeAnnotation": {"type": "TSNumberKeyword", "name": "number"}}
	}`))
	require.NoError(t, err)
	require.Equal(t, "number", n.AnnotatedTypeName())
}
