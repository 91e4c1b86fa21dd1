// Package ast declares the ESTree-shaped AST node this compiler accepts
// as input (spec.md §6). It is intentionally a single flat struct rather
// than one Go type per ESTree node kind: the node kinds this compiler
// supports all decode from the same JSON shape, and a flat struct lets
// encoding/json's ordinary recursive struct handling do all the work
// without a custom UnmarshalJSON per kind.
//
// Every `body` field decodes as a statement list (Node.Body). An ESTree
// document whose `body` is a single node object (a function's or loop's
// BlockStatement, a CatchClause's block) does not decode: Parse returns
// an error for it.
package ast

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind names every ESTree node type this compiler understands (spec.md
// §6). Any "TS…" kind not listed here is silently skipped by the
// statement-lowering switch; in expression position it is a TodoError.
type Kind string

const (
	Program                   Kind = "Program"
	BlockStatement            Kind = "BlockStatement"
	ExpressionStatement       Kind = "ExpressionStatement"
	EmptyStatement            Kind = "EmptyStatement"
	VariableDeclaration       Kind = "VariableDeclaration"
	VariableDeclarator        Kind = "VariableDeclarator"
	FunctionDeclaration       Kind = "FunctionDeclaration"
	ArrowFunctionExpression   Kind = "ArrowFunctionExpression"
	FunctionExpression        Kind = "FunctionExpression"
	ReturnStatement           Kind = "ReturnStatement"
	IfStatement               Kind = "IfStatement"
	ForStatement              Kind = "ForStatement"
	WhileStatement            Kind = "WhileStatement"
	ForOfStatement            Kind = "ForOfStatement"
	BreakStatement            Kind = "BreakStatement"
	ContinueStatement         Kind = "ContinueStatement"
	TryStatement              Kind = "TryStatement"
	CatchClause               Kind = "CatchClause"
	ThrowStatement            Kind = "ThrowStatement"
	DebuggerStatement         Kind = "DebuggerStatement"
	ExportNamedDeclaration    Kind = "ExportNamedDeclaration"
	BinaryExpression          Kind = "BinaryExpression"
	LogicalExpression         Kind = "LogicalExpression"
	UnaryExpression           Kind = "UnaryExpression"
	UpdateExpression          Kind = "UpdateExpression"
	AssignmentExpression      Kind = "AssignmentExpression"
	ConditionalExpression     Kind = "ConditionalExpression"
	Identifier                Kind = "Identifier"
	Literal                   Kind = "Literal"
	MemberExpression          Kind = "MemberExpression"
	CallExpression            Kind = "CallExpression"
	NewExpression             Kind = "NewExpression"
	ArrayExpression           Kind = "ArrayExpression"
	TaggedTemplateExpression  Kind = "TaggedTemplateExpression"
	TemplateLiteral           Kind = "TemplateLiteral"
	TemplateElement           Kind = "TemplateElement"
	ObjectPattern             Kind = "ObjectPattern"
)

// Node is every supported ESTree node, decoded into one flat shape.
// Fields are zero-valued/nil when not applicable to Type.
type Node struct {
	Type Kind `json:"type"`

	// Containers
	Body         []*Node `json:"body,omitempty"`
	Declarations []*Node `json:"declarations,omitempty"`
	Params       []*Node `json:"params,omitempty"`
	Elements     []*Node `json:"elements,omitempty"` // ArrayExpression; nil entries are holes
	Arguments    []*Node `json:"arguments,omitempty"`
	Quasis       []*Node `json:"quasis,omitempty"`
	Expressions  []*Node `json:"expressions,omitempty"` // TemplateLiteral substitutions
	Properties   []*Node `json:"properties,omitempty"`  // ObjectPattern, ignored

	// Single children, reused across kinds
	Expression *Node `json:"expression,omitempty"`
	Id         *Node `json:"id,omitempty"`
	Init       *Node `json:"init,omitempty"`
	Test       *Node `json:"test,omitempty"`
	Update     *Node `json:"update,omitempty"`
	Consequent *Node `json:"consequent,omitempty"`
	Alternate  *Node `json:"alternate,omitempty"`
	Argument   *Node `json:"argument,omitempty"`
	Left       *Node `json:"left,omitempty"`
	Right      *Node `json:"right,omitempty"`
	Object     *Node `json:"object,omitempty"`
	Property   *Node `json:"property,omitempty"`
	Callee     *Node `json:"callee,omitempty"`
	Label      *Node `json:"label,omitempty"`
	Block      *Node `json:"block,omitempty"`
	Handler    *Node `json:"handler,omitempty"`
	Finalizer  *Node `json:"finalizer,omitempty"`
	Param      *Node `json:"param,omitempty"`
	Tag        *Node `json:"tag,omitempty"`
	Quasi      *Node `json:"quasi,omitempty"`
	Declaration *Node `json:"declaration,omitempty"`

	// Scalars
	Kind       string          `json:"kind,omitempty"` // var|let|const, or a UnaryExpression/LogicalExpression operator on some parsers
	Operator   string          `json:"operator,omitempty"`
	Name       string          `json:"name,omitempty"`
	Computed   bool            `json:"computed,omitempty"`
	Optional   bool            `json:"optional,omitempty"`
	Prefix     bool            `json:"prefix,omitempty"`
	Async      bool            `json:"async,omitempty"`
	Generator  bool            `json:"generator,omitempty"`
	ExportedID bool            `json:"-"`
	Raw        string          `json:"raw,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Regex      *RegexInfo      `json:"regex,omitempty"`
	Tail       bool            `json:"tail,omitempty"`

	// TypeScript-style annotation, consumed when present (spec.md §6),
	// otherwise ignored. Only a simple identifier/keyword annotation is
	// read; anything richer is treated as absent.
	TypeAnnotation *Node `json:"typeAnnotation,omitempty"`
}

// RegexInfo is ESTree's `Literal.regex` shape for a regular expression
// literal.
type RegexInfo struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

// IsNullLiteral reports whether n is the `null` literal.
func (n *Node) IsNullLiteral() bool {
	return n != nil && n.Type == Literal && string(n.Value) == "null"
}

// NumberValue decodes a numeric Literal's value.
func (n *Node) NumberValue() (float64, error) {
	if n == nil || n.Type != Literal {
		return 0, fmt.Errorf("ast: NumberValue on non-literal %v", n.nodeType())
	}
	var f float64
	if err := json.Unmarshal(n.Value, &f); err != nil {
		return 0, fmt.Errorf("ast: literal is not a number: %w", err)
	}
	if math.IsNaN(f) {
		return f, nil
	}
	return f, nil
}

// StringValue decodes a string Literal's value.
func (n *Node) StringValue() (string, error) {
	if n == nil || n.Type != Literal {
		return "", fmt.Errorf("ast: StringValue on non-literal %v", n.nodeType())
	}
	var s string
	if err := json.Unmarshal(n.Value, &s); err != nil {
		return "", fmt.Errorf("ast: literal is not a string: %w", err)
	}
	return s, nil
}

// BoolValue decodes a boolean Literal's value.
func (n *Node) BoolValue() (bool, error) {
	if n == nil || n.Type != Literal {
		return false, fmt.Errorf("ast: BoolValue on non-literal %v", n.nodeType())
	}
	var b bool
	if err := json.Unmarshal(n.Value, &b); err != nil {
		return false, fmt.Errorf("ast: literal is not a bool: %w", err)
	}
	return b, nil
}

func (n *Node) nodeType() Kind {
	if n == nil {
		return "<nil>"
	}
	return n.Type
}

// AnnotatedTypeName returns the simple type name of a consumed
// TypeScript-style annotation (e.g. "number", "string"), or "" if none is
// present or it isn't a simple reference this compiler recognizes.
func (n *Node) AnnotatedTypeName() string {
	if n == nil || n.TypeAnnotation == nil {
		return ""
	}
	ta := n.TypeAnnotation
	// Accept either a pre-flattened {name: "number"} shape or one level of
	// nesting whose inner node carries the name; a deeper chain (such as
	// TSTypeReference -> Identifier) is not followed.
	if ta.Name != "" {
		return ta.Name
	}
	if ta.TypeAnnotation != nil && ta.TypeAnnotation.Name != "" {
		return ta.TypeAnnotation.Name
	}
	return ""
}

// Parse decodes a single ESTree-shaped JSON document into a Node tree.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("ast: %w", err)
	}
	return &n, nil
}
