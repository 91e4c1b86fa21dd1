// Package scope implements the per-function locals / module globals /
// temporary-slot bookkeeping described in spec.md §4.4: every named
// binding occupies a pair of slots, payload at idx and type tag at
// idx+1.
package scope

import "github.com/tombl/jsaot/internal/opcode"

// Metadata carries optional static information about a binding, such as
// a declared type annotation (spec.md §4.6 "Optional type annotations
// set metadata used later by knownType").
type Metadata struct {
	// DeclaredType, if non-empty, is the type annotation's simple name
	// (e.g. "number") consumed from the AST (spec.md §6).
	DeclaredType string
}

// Binding is one named slot pair: Idx holds the payload, Idx+1 the i32
// type tag (spec.md §3 invariant).
type Binding struct {
	Idx      uint32
	Valtype  opcode.ValType
	Metadata *Metadata
}

// TypeTagIdx returns the sibling type-tag slot index for b.
func (b Binding) TypeTagIdx() uint32 { return b.Idx + 1 }

// DepthKind names the kind of an open structured-control block, used by
// the depth stack break/continue walk down to (spec.md §4.6).
type DepthKind int

const (
	DepthIf DepthKind = iota
	DepthWhile
	DepthFor
	DepthForOf
	DepthBlock
	DepthTry
	DepthCatch
)

// IsLoop reports whether a DepthKind is a break/continue target.
func (k DepthKind) IsLoop() bool {
	switch k {
	case DepthWhile, DepthFor, DepthForOf:
		return true
	default:
		return false
	}
}

// Globals is the module-scope binding table. Unlike a function Scope, it
// has no loop-depth stack and no temporaries, and its index space is
// reused by every compiled function.
type Globals struct {
	locals   map[string]*Binding
	valtype  opcode.ValType
	nextIdx  uint32
	declOrd  []string
}

// NewGlobals creates an empty module-global table for a module compiled
// with the given valtype.
func NewGlobals(vt opcode.ValType) *Globals {
	return &Globals{locals: make(map[string]*Binding), valtype: vt}
}

// Alloc reserves a new payload+type-tag global pair for name. It panics
// if name is already declared — re-declaration of a global is a
// SyntaxError the caller must check for (via Lookup) before calling.
func (g *Globals) Alloc(name string, meta *Metadata) *Binding {
	if _, ok := g.locals[name]; ok {
		panic("scope: global " + name + " already declared")
	}
	b := &Binding{Idx: g.nextIdx, Valtype: g.valtype, Metadata: meta}
	g.locals[name] = b
	g.nextIdx += 2
	g.declOrd = append(g.declOrd, name)
	return b
}

// Lookup returns the global binding for name, if any.
func (g *Globals) Lookup(name string) (*Binding, bool) {
	b, ok := g.locals[name]
	return b, ok
}

// Count returns the number of declared globals (not slot count).
func (g *Globals) Count() int { return len(g.declOrd) }

// Names returns declared global names in declaration order.
func (g *Globals) Names() []string {
	out := make([]string, len(g.declOrd))
	copy(out, g.declOrd)
	return out
}

// Scope is one function's locals table plus the loop-depth stack used by
// break/continue/try lowering (spec.md §3, §4.6).
type Scope struct {
	Name    string
	Globals *Globals
	Valtype opcode.ValType

	locals  map[string]*Binding
	nextIdx uint32

	// temps memoizes named temporary slots (spec.md §4.4's "#typeswitch_tmp"
	// style sentinels), so repeated requests for the same temp name within
	// one scope reuse the same pair.
	temps map[string]*Binding

	Returns []opcode.ValType
	Throws  bool

	Depth []DepthKind
}

// New creates a function scope named name over globals g.
func New(name string, g *Globals, vt opcode.ValType) *Scope {
	return &Scope{
		Name:    name,
		Globals: g,
		Valtype: vt,
		locals:  make(map[string]*Binding),
		temps:   make(map[string]*Binding),
	}
}

// AllocParam reserves the next local pair for a declared parameter.
// Parameters are allocated before any other locals, in declaration order,
// so they occupy the lowest local pairs.
func (s *Scope) AllocParam(name string, meta *Metadata) *Binding {
	return s.alloc(name, meta)
}

// AllocLocal reserves a local pair for an inner (non-parameter, non-temp)
// declaration.
func (s *Scope) AllocLocal(name string, meta *Metadata) *Binding {
	return s.alloc(name, meta)
}

func (s *Scope) alloc(name string, meta *Metadata) *Binding {
	b := &Binding{Idx: s.nextIdx, Valtype: s.Valtype, Metadata: meta}
	s.locals[name] = b
	s.nextIdx += 2
	return b
}

// Temp returns the slot pair for a memoized temporary named by
// sentinel (e.g. "#typeswitch_tmp"), allocating it on first request.
func (s *Scope) Temp(sentinel string) *Binding {
	if b, ok := s.temps[sentinel]; ok {
		return b
	}
	b := s.alloc(sentinel, nil)
	s.temps[sentinel] = b
	return b
}

// LocalCount returns the number of local pairs (params + inner locals +
// temporaries) allocated so far — the value used to size the function's
// Locals vector at finalization.
func (s *Scope) LocalCount() uint32 { return s.nextIdx / 2 }

// Lookup searches locals first, then globals, mirroring spec.md §4.4's
// lookupName. ok is false if name is bound nowhere.
func (s *Scope) Lookup(name string) (b *Binding, isGlobal bool, ok bool) {
	if b, ok := s.locals[name]; ok {
		return b, false, true
	}
	if s.Globals != nil {
		if b, ok := s.Globals.Lookup(name); ok {
			return b, true, true
		}
	}
	return nil, false, false
}

// PushDepth opens a new structured-control block of kind k.
func (s *Scope) PushDepth(k DepthKind) { s.Depth = append(s.Depth, k) }

// PopDepth closes the innermost open block.
func (s *Scope) PopDepth() {
	if len(s.Depth) > 0 {
		s.Depth = s.Depth[:len(s.Depth)-1]
	}
}

// BreakDepth walks the depth stack from the innermost block outward and
// returns the branch depth (WASM relative block index) a `break` at this
// point must target. Every loop construct is emitted wrapped in an extra
// plain block purely so `break` has somewhere to land (the `loop`
// instruction itself only ever branches back to its own start); reaching
// that wrapping block is therefore one level further out than the loop.
func (s *Scope) BreakDepth() (depth uint32, ok bool) {
	for i := len(s.Depth) - 1; i >= 0; i-- {
		if s.Depth[i].IsLoop() || s.Depth[i] == DepthBlock {
			return uint32(len(s.Depth)-1-i) + 1, true
		}
	}
	return 0, false
}

// ContinueDepth returns the branch depth `continue` must target: the loop
// construct itself, one shallower than the matching `break` depth
// (spec.md §4.6), since branching to a `loop` re-enters it.
func (s *Scope) ContinueDepth() (depth uint32, ok bool) {
	for i := len(s.Depth) - 1; i >= 0; i-- {
		if s.Depth[i].IsLoop() {
			return uint32(len(s.Depth) - 1 - i), true
		}
	}
	return 0, false
}
