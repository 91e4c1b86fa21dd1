// Package hostparser implements the "external parser invoked only for
// eval-of-literal" boundary spec.md §1/§6/§4.5 describes: the compiler
// never parses source itself except to support evaluating a string
// literal argument to `eval`.
package hostparser

import "github.com/tombl/jsaot/ast"

// HostParser parses JavaScript source text into this compiler's own
// ESTree-shaped ast.Node, for inline lowering as a BlockStatement
// (spec.md §4.5). Implementations may additionally validate against the
// full ECMAScript grammar before translating, to give better diagnostics
// than the limited literal-eval subset's own grammar would.
type HostParser interface {
	// ParseLiteral parses src as a sequence of statements (a Program
	// body) and returns it ready to splice into the calling function's
	// lowered body. An error should be a construct outside the
	// supported literal-eval subset, not a Go-level panic.
	ParseLiteral(src string) (*ast.Node, error)
}
