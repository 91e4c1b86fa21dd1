package compiler

import (
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/dataseg"
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/page"
)

// allocStringLiteral reserves a page for the UTF-16 encoding of s and
// writes it as a data segment, returning the page's byte offset. Callers
// pass a stable reason (a declared name's page.StringReason, or an
// anonymous nextLiteralReason) so repeated compilation of the same source
// is idempotent (spec.md §8's round-trip property).
func (c *Compilation) allocStringLiteral(reason, s string) uint32 {
	c.pages.Alloc(reason, page.KindString)
	ptr := c.pages.Pointer(reason)
	c.data.Add(ptr, dataseg.EncodeStringBytes(s))
	return ptr
}

// allocConstArrayLiteral reserves a page for an all-constant-number array
// literal and writes it as a data segment, returning the page's offset.
func (c *Compilation) allocConstArrayLiteral(reason string, elems []float64) uint32 {
	c.pages.Alloc(reason, page.KindArray)
	ptr := c.pages.Pointer(reason)
	c.data.Add(ptr, dataseg.EncodeArrayBytes(elems, c.generic.Valtype))
	return ptr
}

// allocRuntimeArrayPage reserves a page for an array literal that needs
// runtime-computed element stores (spec.md §4.3); the region starts
// zeroed, consistent with WASM linear memory's initial state.
func (c *Compilation) allocRuntimeArrayPage(reason string) uint32 {
	c.pages.Alloc(reason, page.KindArray)
	return c.pages.Pointer(reason)
}

// allocRuntimeStringPage reserves a page for a string value computed at
// runtime (e.g. the destination of a `+` concatenation), writing its
// contents via bulk-memory ops rather than a data segment.
func (c *Compilation) allocRuntimeStringPage(reason string) uint32 {
	c.pages.Alloc(reason, page.KindString)
	return c.pages.Pointer(reason)
}

// allocDestPage reserves a fresh heap page for a prototype method that
// builds a brand-new value rather than mutating its receiver in place
// (builtin.ProtoFunc.NeedsDest — Array.prototype.slice,
// String.prototype.slice), choosing the page kind from the result's
// statically-known tag.
func (fc *funcCtx) allocDestPage(tag langtype.Tag, reason string) []opcode.Instruction {
	var ptr uint32
	if tag == langtype.String {
		ptr = fc.c.allocRuntimeStringPage(reason)
	} else {
		ptr = fc.c.allocRuntimeArrayPage(reason)
	}
	return []opcode.Instruction{opcode.ConstI32(int32(ptr))}
}

// receiverAccessors stashes an already-lowered receiver payload (objInstrs)
// into a scratch pointer local and eagerly caches its length, then returns
// the setup instructions plus the ptr/length accessor pair a
// builtin.ProtoFunc/Ctor generator expects (spec.md §4.2's "cached-length
// accessor bundle"). Always caching the length even when a given method
// doesn't read it costs one extra load; reusing one temp pair per call
// site is simpler than conditionally wiring the cache through the
// generator's own control flow.
func (fc *funcCtx) receiverAccessors(objInstrs []opcode.Instruction) (setup []opcode.Instruction, ptr []opcode.Instruction, length builtin.LenAccessor) {
	g := fc.c.generic
	ptrTmp := fc.scope.Temp("#recv_ptr")
	lenTmp := fc.scope.Temp("#recv_len")

	setup = append(setup, payloadToI32(g, objInstrs)...)
	setup = append(setup, localSet(ptrTmp.Idx))
	setup = append(setup, localGet(ptrTmp.Idx), opcode.WithImm(opcode.OpI32Load, zeroMemarg), localSet(lenTmp.Idx))

	ptr = []opcode.Instruction{localGet(ptrTmp.Idx)}
	length = func() []opcode.Instruction { return []opcode.Instruction{localGet(lenTmp.Idx)} }
	return setup, ptr, length
}
