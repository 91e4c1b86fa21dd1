// Package builtin is the lookup registry for built-in variables,
// functions, prototype methods, and internal constructors (spec.md
// §4.2). Built-in *bodies* are pre-written opcode sequences; the actual
// semantics of complex built-ins (full Math, full Array/String method
// set, regex execution) are a peripheral concern spec.md §1 explicitly
// excludes — this registry wires a representative, runnable slice
// (SPEC_FULL.md's "built-in bodies wiring" note). A called name that is
// neither registered here nor a user function is not a compile error:
// internal/compiler lowers the call to a runtime ReferenceError throw, or
// to undefined for a `__`-prefixed name.
package builtin

import (
	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/opcode"
)

// FreshLocal allocates a new scratch local of the given valtype and
// returns its payload slot index, for use by a generator that needs
// working space the caller's scope doesn't already have.
type FreshLocal func(vt opcode.ValType) uint32

// LenAccessor emits code that pushes (and internally caches) the length
// of the receiver, per spec.md §4.2's "cached-length accessor bundle".
type LenAccessor func() []opcode.Instruction

// Gen is the generator signature shared by built-in functions and
// prototype methods: given the already-lowered receiver pointer and
// argument instruction sequences plus a length accessor and a scratch
// local allocator, it emits the inline body and reports the static
// result tag (langtype.Tag(-1) if unknown statically).
type Gen func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error)

// Unknown is the sentinel returned by a Gen when the result's static type
// cannot be determined at compile time.
const Unknown langtype.Tag = -1

// Var is a named built-in constant or host-imported value.
type Var struct {
	Name    string
	Valtype opcode.ValType
	Tag     langtype.Tag
	// Const, if non-nil, supplies the compile-time constant payload
	// (pushed directly rather than loaded from an imported global).
	Const func(g opcode.Generic) opcode.Instruction
}

// Func is a named built-in function.
type Func struct {
	Name        string
	Params      []opcode.ValType
	Results     []opcode.ValType
	FloatOnly   bool // only valid when the module valtype is a float
	TypedParams bool // each argument is pushed as a (payload,type) pair
	TypedReturn bool // the callee itself sets #last_type
	ReturnType  langtype.Tag
	Body        Gen
}

// ProtoKey identifies a prototype method by receiver tag and method name
// (spec.md §4.2's "(type-tag, method-name)").
type ProtoKey struct {
	Tag    langtype.Tag
	Method string
}

// ProtoFunc is one prototype-method candidate.
type ProtoFunc struct {
	ReturnType langtype.Tag
	// NeedsDest marks a method that builds a brand-new array/string
	// (Array.prototype.slice, String.prototype.slice) rather than reading
	// or mutating the receiver in place: the compiler allocates a fresh
	// heap page sized for the receiver's own kind and passes its pointer
	// as args[0], ahead of the method's JS-level arguments, mirroring how
	// Ctor.Body already receives a pre-allocated destination.
	NeedsDest bool
	Body      Gen
}

// Ctor is an internal constructor (`Array`, `Array.of`). ptr is the
// instruction sequence that leaves the destination page's pointer on the
// stack; the caller (internal/compiler) has already allocated that page
// before invoking Body.
type Ctor struct {
	Name       string
	ReturnType langtype.Tag
	Body       func(g opcode.Generic, ptr []opcode.Instruction, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, error)
}

// Registry is the queryable table of all four built-in categories.
type Registry struct {
	vars  map[string]Var
	funcs map[string]Func
	proto map[ProtoKey][]ProtoFunc // keyed by (receiver tag, method name); protoByName enumerates the tags per name
	ctors map[string]Ctor

	protoByName map[string][]langtype.Tag // method name -> receiver tags with that method, for enumeration
}

// New creates a registry with the concrete bodies described in
// SPEC_FULL.md wired in (see concrete.go).
func New() *Registry {
	r := &Registry{
		vars:        make(map[string]Var),
		funcs:       make(map[string]Func),
		proto:       make(map[ProtoKey][]ProtoFunc),
		ctors:       make(map[string]Ctor),
		protoByName: make(map[string][]langtype.Tag),
	}
	registerConcrete(r)
	return r
}

// RegisterVar adds/overwrites a built-in variable.
func (r *Registry) RegisterVar(v Var) { r.vars[v.Name] = v }

// RegisterFunc adds/overwrites a built-in function.
func (r *Registry) RegisterFunc(f Func) { r.funcs[f.Name] = f }

// RegisterProto adds a prototype-method candidate for (tag, method).
func (r *Registry) RegisterProto(tag langtype.Tag, method string, pf ProtoFunc) {
	key := ProtoKey{Tag: tag, Method: method}
	r.proto[key] = append(r.proto[key], pf)
	r.protoByName[method] = append(r.protoByName[method], tag)
}

// RegisterCtor adds/overwrites an internal constructor.
func (r *Registry) RegisterCtor(c Ctor) { r.ctors[c.Name] = c }

// LookupVar finds a built-in variable by name.
func (r *Registry) LookupVar(name string) (Var, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// LookupFunc finds a built-in function by name.
func (r *Registry) LookupFunc(name string) (Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// LookupProto finds the method candidate for an exact (tag, method) pair.
func (r *Registry) LookupProto(tag langtype.Tag, method string) (ProtoFunc, bool) {
	pf, ok := r.proto[ProtoKey{Tag: tag, Method: method}]
	if !ok || len(pf) == 0 {
		return ProtoFunc{}, false
	}
	return pf[0], true
}

// CandidateTags returns every receiver tag that has a method named
// method, for the enumeration spec.md §4.5 describes ("the generator
// enumerates type-tag → generator candidates").
func (r *Registry) CandidateTags(method string) []langtype.Tag {
	tags := r.protoByName[method]
	out := make([]langtype.Tag, len(tags))
	copy(out, tags)
	return out
}

// SingleCandidateReturnType implements spec.md §9's "prototype-method
// single-candidate fast path": if method has exactly one registered
// candidate, its ReturnType is used as the statically-known call result;
// with zero or multiple (possibly disagreeing) candidates the result is
// Unknown (SPEC_FULL.md §9 Open Question resolution).
func (r *Registry) SingleCandidateReturnType(method string) langtype.Tag {
	tags := r.CandidateTags(method)
	if len(tags) != 1 {
		return Unknown
	}
	pf, ok := r.LookupProto(tags[0], method)
	if !ok {
		return Unknown
	}
	return pf.ReturnType
}

// LookupCtor finds an internal constructor by name.
func (r *Registry) LookupCtor(name string) (Ctor, bool) {
	c, ok := r.ctors[name]
	return c, ok
}
