// Package dataseg accumulates the initialized byte ranges that will end
// up in the module's data section (spec.md §4.3): literal array/string
// contents known entirely at compile time are written here instead of
// being reconstructed by store instructions at runtime.
package dataseg

// Segment is one `{offset, bytes}` entry destined for the module's data
// section.
type Segment struct {
	Offset uint32
	Bytes  []byte
}

// Emitter collects data segments in emission order.
type Emitter struct {
	segments []Segment
}

// New creates an empty Emitter.
func New() *Emitter { return &Emitter{} }

// Add appends a segment placing bytes at offset. Overlapping segments are
// not validated here — the page allocator guarantees distinct pages never
// share an offset range, so overlap would indicate a page-allocator bug
// upstream, not something this package should paper over.
func (e *Emitter) Add(offset uint32, bytes []byte) {
	e.segments = append(e.segments, Segment{Offset: offset, Bytes: bytes})
}

// Segments returns the accumulated segments in emission order.
func (e *Emitter) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// Len reports how many segments have been emitted.
func (e *Emitter) Len() int { return len(e.segments) }
