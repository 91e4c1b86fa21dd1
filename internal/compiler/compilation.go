package compiler

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/dataseg"
	"github.com/tombl/jsaot/internal/ir"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/page"
	"github.com/tombl/jsaot/internal/scope"
)

// Compilation holds every piece of state one Compile call threads through
// the lowering routines: the function table under construction, the
// module-global table, the page allocator, the data emitter, the
// exception/tag tables, and the name→index map used to resolve calls
// (spec.md §5, §9's "a reimplementation should encapsulate them in a
// Compilation value"). A fresh Compilation is built per Compile call, so
// repeated or concurrent compilations never share state — this is what
// makes the round-trip/idempotence properties in spec.md §8 mechanically
// true rather than accidental.
type Compilation struct {
	cfg     Config
	generic opcode.Generic
	log     *logrus.Logger

	globals  *scope.Globals
	pages    *page.Allocator
	data     *dataseg.Emitter
	registry *builtin.Registry

	funcs     []ir.Func
	funcIndex map[string]uint32

	// callGraph records, per caller index, every callee index reached by
	// an ordinary (non-builtin) call site (spec.md §7's "throws
	// propagates up"): Compile walks it to a fixed point once every
	// function has been lowered once, so a callee compiled after its
	// caller still contributes its Throws bit back to that caller.
	callGraph map[uint32][]uint32

	tags       []ir.Tag
	exceptions []ir.Exception

	// litCounter numbers array/string literals and string-concat
	// destinations that have no declared name to derive a page "reason"
	// from (spec.md §4.3 only names the declared-binding case).
	litCounter int
}

// nextLiteralReason returns a fresh, stable page-allocation reason for an
// anonymous literal or intermediate value, tagged with prefix so a page
// dump still shows what produced it.
func (c *Compilation) nextLiteralReason(prefix string) string {
	c.litCounter++
	return fmt.Sprintf("%s:%d", prefix, c.litCounter)
}

// importedFuncs is the fixed ABI surface spec.md §6 assumes: a character
// printer and a number printer, always imports 0 and 1.
func importedFuncs() []ir.ImportedFunc {
	return []ir.ImportedFunc{
		{Module: "env", Name: "print_char", Params: []opcode.ValType{opcode.I32}},
		{Module: "env", Name: "print_number", Params: []opcode.ValType{opcode.F64}},
	}
}

func newCompilation(cfg Config) *Compilation {
	cfg = cfg.normalized()
	c := &Compilation{
		cfg:       cfg,
		generic:   opcode.NewGeneric(cfg.Valtype),
		log:       cfg.Logger,
		globals:   scope.NewGlobals(cfg.Valtype),
		pages:     page.New(cfg.PageSizeKiB),
		data:      dataseg.New(),
		registry:  cfg.Registry,
		funcIndex: make(map[string]uint32),
		callGraph: make(map[uint32][]uint32),
	}
	// One shared exception tag with a single i32 parameter suffices for
	// every user throw (spec.md §3).
	c.tags = append(c.tags, ir.Tag{Params: []opcode.ValType{opcode.I32}})
	return c
}

// nextFuncIndex returns the index the next *appended* function will
// receive, accounting for the imported-function prefix (spec.md §6).
func (c *Compilation) nextFuncIndex() uint32 {
	return uint32(len(importedFuncs()) + len(c.funcs))
}

// recordCall notes a caller->callee edge for the throws-propagation
// fixed point (spec.md §7).
func (c *Compilation) recordCall(caller, callee uint32) {
	c.callGraph[caller] = append(c.callGraph[caller], callee)
}

// recordException appends a new exceptions-table entry and returns its
// index (spec.md §3, §4.6).
func (c *Compilation) recordException(constructor, message string) int32 {
	c.exceptions = append(c.exceptions, ir.Exception{Constructor: constructor, Message: message})
	return int32(len(c.exceptions) - 1)
}

// module assembles the final compilation record (spec.md §6's output).
func (c *Compilation) module() *ir.Module {
	globalNames := c.globals.Names()
	globals := make([]ir.Global, 0, len(globalNames))
	for _, name := range globalNames {
		b, _ := c.globals.Lookup(name)
		globals = append(globals, ir.Global{Name: name, Index: b.Idx, Valtype: b.Valtype})
	}

	reasons := c.pages.Reasons()
	pages := make([]ir.PageEntry, 0, len(reasons))
	for i, reason := range reasons {
		pages = append(pages, ir.PageEntry{Reason: reason, Index: i})
	}

	return &ir.Module{
		Funcs:         c.funcs,
		Globals:       globals,
		Tags:          c.tags,
		Exceptions:    c.exceptions,
		Pages:         pages,
		Data:          c.data.Segments(),
		ImportedFuncs: importedFuncs(),
	}
}
