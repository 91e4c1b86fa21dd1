// Package page implements the named fixed-size memory-region allocator
// described in spec.md §4.3: every heap-allocated array or string gets
// one page, identified by a stable "reason" string, and page indices are
// assigned monotonically and never reused.
package page

import "fmt"

// DefaultSizeKiB is the page size spec.md's configuration table defaults
// to when -page-size is absent.
const DefaultSizeKiB = 64

// Kind distinguishes why a page was allocated, driving the HasArray/
// HasString flags consumed by later emission decisions (spec.md §4.3).
type Kind int

const (
	KindArray Kind = iota
	KindString
	KindIntrinsic
)

// Allocator hands out page indices for named regions and tracks pointer
// assignments for declared array/string names (the "arrays" map in
// spec.md §3).
type Allocator struct {
	sizeBytes int

	indexByReason map[string]int
	kindByReason  map[string]Kind
	order         []string

	// pointerByName maps a declared array/string name to the byte offset
	// (page index * sizeBytes) where its region begins.
	pointerByName map[string]uint32

	hasArray  bool
	hasString bool
}

// New creates an Allocator using the given page size in KiB.
func New(pageSizeKiB int) *Allocator {
	if pageSizeKiB <= 0 {
		pageSizeKiB = DefaultSizeKiB
	}
	return &Allocator{
		sizeBytes:     pageSizeKiB * 1024,
		indexByReason: make(map[string]int),
		kindByReason:  make(map[string]Kind),
		pointerByName: make(map[string]uint32),
	}
}

// PageSize returns the configured page size in bytes.
func (a *Allocator) PageSize() int { return a.sizeBytes }

// Alloc returns the existing page index for reason, or assigns and
// returns the next monotonically-increasing index. Re-allocating the
// same reason is idempotent and a no-op beyond the lookup.
func (a *Allocator) Alloc(reason string, kind Kind) int {
	if ind, ok := a.indexByReason[reason]; ok {
		return ind
	}
	ind := len(a.order)
	a.indexByReason[reason] = ind
	a.kindByReason[reason] = kind
	a.order = append(a.order, reason)

	switch kind {
	case KindArray:
		a.hasArray = true
	case KindString:
		a.hasString = true
	}
	return ind
}

// Pointer returns the byte offset of the page allocated for reason. It
// panics if reason was never allocated — callers must Alloc first, same
// as the teacher's own invariant that page indices are assigned before
// they're dereferenced.
func (a *Allocator) Pointer(reason string) uint32 {
	ind, ok := a.indexByReason[reason]
	if !ok {
		panic(fmt.Sprintf("page: reason %q was never allocated", reason))
	}
	return uint32(ind * a.sizeBytes)
}

// BindName records that declared name now lives at the page allocated
// under reason (e.g. BindName("a", "array:a")), populating the "arrays"
// map from spec.md §3.
func (a *Allocator) BindName(name, reason string) {
	a.pointerByName[name] = a.Pointer(reason)
}

// NamePointer looks up a previously-bound declared array/string name.
func (a *Allocator) NamePointer(name string) (uint32, bool) {
	p, ok := a.pointerByName[name]
	return p, ok
}

// HasArray reports whether any array page has been allocated.
func (a *Allocator) HasArray() bool { return a.hasArray }

// HasString reports whether any string page has been allocated.
func (a *Allocator) HasString() bool { return a.hasString }

// Count returns the number of distinct pages allocated so far.
func (a *Allocator) Count() int { return len(a.order) }

// Reasons returns allocated reasons in assignment order, for deterministic
// dumps/tests.
func (a *Allocator) Reasons() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// ArrayReason builds the canonical reason string for a declared array
// name (spec.md §4.3: `"array:<name>"`).
func ArrayReason(name string) string { return "array:" + name }

// StringReason builds the canonical reason string for a declared string
// name (spec.md §4.3: `"string:<name>"`).
func StringReason(name string) string { return "string:" + name }

// IntrinsicReason is the fixed reason used by asm-intrinsic scratch pages
// (spec.md §4.3: `"asm intrinsic"`).
const IntrinsicReason = "asm intrinsic"
