package hostparser

import (
	"fmt"

	"github.com/dop251/goja/file"
	gojaparser "github.com/dop251/goja/parser"
	"github.com/tombl/jsaot/ast"
)

// validating wraps miniParser with a goja/parser syntax check, so a
// literal-eval argument that merely happens to parse under our narrow
// grammar but isn't valid ECMAScript at all is rejected with a clearer
// diagnostic than our own recursive descent would give.
//
// goja's own *ast.Program is discarded: translating it would mean
// depending on goja's internal ast package field layout, which this
// compiler has no way to verify against since it never runs the Go
// toolchain. Only the pass/fail syntax-check result is used; the actual
// translation into our own ast.Node tree is done by miniParser, grounded
// on _examples/other_examples/297925c0_0x5457-wasm-go__parser.go.go.
type validating struct{}

// New returns the default HostParser: goja/parser validates the source
// is syntactically valid ECMAScript, then miniParser lowers the (much
// narrower) literal-eval subset spec.md §4.5/§9 actually supports into
// this compiler's own ast.Node shape.
func New() HostParser {
	return validating{}
}

func (validating) ParseLiteral(src string) (*ast.Node, error) {
	if _, err := gojaparser.ParseFile(file.NewFileSet(), "<eval>", src, 0); err != nil {
		return nil, fmt.Errorf("eval: not valid ECMAScript: %w", err)
	}
	p := &miniParser{src: []rune(src)}
	n, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return n, nil
}
