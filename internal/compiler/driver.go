package compiler

import (
	"encoding/json"

	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/ir"
)

// Compile lowers a parsed program into a compilation record (spec.md §6).
// Every top-level FunctionDeclaration (directly, or wrapped in an
// ExportNamedDeclaration) becomes its own ir.Func at its hoisted index,
// exported only when wrapped in an ExportNamedDeclaration; every other top-level statement is gathered into a
// synthesized "main" entry point, the implicit top-level entry point
// spec.md §4.7 describes. A program with no non-function top-level
// statements still gets an (empty, undefined-returning) main: the
// boundary case falls out of compileFunction's own empty-body handling
// rather than needing a special case here.
func Compile(program *ast.Node, cfg Config) (*ir.Module, error) {
	program = objectHack(program)
	c := newCompilation(cfg)
	if c.cfg.ASTLog {
		if dump, err := json.Marshal(program); err == nil {
			c.log.Debug(string(dump))
		}
	}
	c.hoistFunctionIndices(program.Body)

	var mainStmts []*ast.Node
	for _, stmt := range program.Body {
		decl := stmt
		export := false
		if stmt.Type == ast.ExportNamedDeclaration && stmt.Declaration != nil {
			decl = stmt.Declaration
			export = true
		}
		if decl.Type != ast.FunctionDeclaration || decl.Id == nil {
			mainStmts = append(mainStmts, stmt)
			continue
		}

		index, ok := c.funcIndex[decl.Id.Name]
		if !ok {
			return nil, todo("function %q was not hoisted", decl.Id.Name)
		}
		fn, err := c.compileFunction(decl, decl.Id.Name, index, export, false)
		if err != nil {
			return nil, err
		}
		c.funcs[c.funcSlot(index)] = fn
	}

	mainIndex := c.nextFuncIndex()
	c.funcs = append(c.funcs, ir.Func{Name: "main"})
	mainNode := &ast.Node{Type: ast.FunctionDeclaration, Body: mainStmts}
	mainFn, err := c.compileFunction(mainNode, "main", mainIndex, true, true)
	if err != nil {
		return nil, err
	}
	c.funcs[c.funcSlot(mainIndex)] = mainFn

	c.propagateThrows()

	return c.module(), nil
}

// propagateThrows walks the call graph recorded during lowering to a
// fixed point: if a function calls one that (transitively) throws, it
// throws too (spec.md §7's "throws propagates up"), even across forward
// references and mutual recursion that lowerUserCall alone can't see
// because the callee hadn't compiled yet at the call site.
func (c *Compilation) propagateThrows() {
	for changed := true; changed; {
		changed = false
		for caller, callees := range c.callGraph {
			slot := c.funcSlot(caller)
			if slot < 0 || slot >= len(c.funcs) || c.funcs[slot].Throws {
				continue
			}
			for _, callee := range callees {
				if c.calleeThrows(callee) {
					c.funcs[slot].Throws = true
					changed = true
					break
				}
			}
		}
	}
}

// funcSlot converts a function-table index (which accounts for the
// imported-function prefix importedFuncs() contributes) back to its
// position in c.funcs.
func (c *Compilation) funcSlot(index uint32) int {
	return int(index) - len(importedFuncs())
}
