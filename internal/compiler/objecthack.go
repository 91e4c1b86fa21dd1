package compiler

import "github.com/tombl/jsaot/ast"

// reservedNamespaces lists the identifier roots object-hack is willing to
// flatten. Anything else (a local variable, a parameter, an array) is left
// as a real MemberExpression so its receiver can still be lowered and
// dispatched to a prototype method by type tag (spec.md §4.2).
var reservedNamespaces = map[string]bool{
	"Math":  true,
	"Array": true,
}

// objectHack rewrites every non-computed, non-optional MemberExpression
// whose object resolves to a chain of Identifiers rooted at a reserved
// namespace, and whose property is not "length", into a single flat
// Identifier named "__<object>_<prop>" (spec.md §4.9). This is how
// well-known namespaces (Math.floor, ...) get bound to built-ins at
// compile time, before any scope/type information exists.
//
// spec.md §9 notes the hack is only sound when the top-level identifier
// names a reserved namespace — restricting it to reservedNamespaces is
// what keeps `arr.push(x)` (arr a plain local) a real member access
// instead of colliding with this mechanism. An unresolved "__x_y"
// identifier still falls back to undefined at lowering time (spec.md
// §4.4), matching a plain missing-property read.
func objectHack(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	rewritten := *n
	switch n.Type {
	case ast.MemberExpression:
		if chain, ok := flattenMember(n); ok {
			return &ast.Node{Type: ast.Identifier, Name: "__" + chain}
		}
		rewritten.Object = objectHack(n.Object)
		rewritten.Property = objectHack(n.Property)
		return &rewritten
	}

	rewritten.Body = mapNodes(n.Body)
	rewritten.Declarations = mapNodes(n.Declarations)
	rewritten.Params = mapNodes(n.Params)
	rewritten.Elements = mapNodes(n.Elements)
	rewritten.Arguments = mapNodes(n.Arguments)
	rewritten.Quasis = mapNodes(n.Quasis)
	rewritten.Expressions = mapNodes(n.Expressions)

	rewritten.Expression = objectHack(n.Expression)
	rewritten.Id = objectHack(n.Id)
	rewritten.Init = objectHack(n.Init)
	rewritten.Test = objectHack(n.Test)
	rewritten.Update = objectHack(n.Update)
	rewritten.Consequent = objectHack(n.Consequent)
	rewritten.Alternate = objectHack(n.Alternate)
	rewritten.Argument = objectHack(n.Argument)
	rewritten.Left = objectHack(n.Left)
	rewritten.Right = objectHack(n.Right)
	rewritten.Object = objectHack(n.Object)
	rewritten.Property = objectHack(n.Property)
	rewritten.Callee = objectHack(n.Callee)
	rewritten.Block = objectHack(n.Block)
	rewritten.Handler = objectHack(n.Handler)
	rewritten.Finalizer = objectHack(n.Finalizer)
	rewritten.Param = objectHack(n.Param)
	rewritten.Tag = objectHack(n.Tag)
	rewritten.Quasi = objectHack(n.Quasi)
	rewritten.Declaration = objectHack(n.Declaration)
	return &rewritten
}

func mapNodes(nodes []*ast.Node) []*ast.Node {
	if nodes == nil {
		return nil
	}
	out := make([]*ast.Node, len(nodes))
	for i, n := range nodes {
		out[i] = objectHack(n)
	}
	return out
}

// flattenMember attempts to collapse n (a MemberExpression) into the
// underscore-joined chain "a_b_c" (without the leading "__", which the
// caller adds once). It only succeeds when every link in the chain is a
// non-computed, non-optional access rooted at an Identifier, and the
// final property is not "length" (spec.md §4.9 preserves `.length` as a
// real member read).
func flattenMember(n *ast.Node) (string, bool) {
	if n.Computed || n.Optional || n.Property == nil {
		return "", false
	}
	if n.Property.Name == "length" {
		return "", false
	}
	var base string
	switch n.Object.Type {
	case ast.Identifier:
		if !reservedNamespaces[n.Object.Name] {
			return "", false
		}
		base = n.Object.Name
	case ast.MemberExpression:
		chain, ok := flattenMember(n.Object)
		if !ok {
			return "", false
		}
		base = chain
	default:
		return "", false
	}
	return base + "_" + n.Property.Name, true
}
