package compiler

import (
	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/opcode"
)

// lowerEval implements `eval(literalString)` (spec.md §4.5, §9's
// "literal eval only"): the argument must be a compile-time string
// literal, parsed once by the configured HostParser and spliced inline
// as a block whose tail expression becomes eval's result. A non-literal
// argument is indistinguishable, at compile time, from a dynamic eval
// this subset doesn't support — rather than a TodoError it is the
// runtime ReferenceError a real engine would raise for an unresolvable
// indirect-eval binding in this narrow context.
func (fc *funcCtx) lowerEval(n *ast.Node) ([]opcode.Instruction, langtype.Tag, error) {
	if len(n.Arguments) != 1 || n.Arguments[0].Type != ast.Literal {
		return fc.throwError(ReferenceError, "eval argument must be a string literal"), builtin.Unknown, nil
	}
	src, err := n.Arguments[0].StringValue()
	if err != nil {
		return nil, 0, todoWrap(err, "eval argument must be a string literal")
	}
	if fc.c.cfg.HostParser == nil {
		return nil, 0, todo("eval requires a configured HostParser")
	}
	prog, err := fc.c.cfg.HostParser.ParseLiteral(src)
	if err != nil {
		return nil, 0, todoWrap(err, "eval(%q)", src)
	}
	prog = objectHack(prog)
	return fc.lowerBlockBody(prog.Body, true)
}
