// Package langtype is the closed enumeration of language-level value type
// tags (spec.md §3) and their typeof display names (spec.md §4.2).
package langtype

// Tag is the i32 runtime type discriminant carried alongside every value's
// payload. Values below 0x10 are language-visible (observable via
// typeof); values at/above 0x10 are compiler-internal. New tags must be
// assigned within the same partition to keep typeof lowering coherent
// (spec.md §9).
type Tag int32

const (
	Number    Tag = 0x00
	Boolean   Tag = 0x01
	String    Tag = 0x02
	Undefined Tag = 0x03
	Object    Tag = 0x04
	Function  Tag = 0x05
	Symbol    Tag = 0x06
	BigInt    Tag = 0x07

	// Array and Regexp are internal tags: they do not appear as a typeof
	// result (both typeof to "object"), but are distinguished so the
	// generator can pick specialized member/prototype-method lowering.
	Array  Tag = 0x10
	Regexp Tag = 0x11
)

// languageVisible is the partition boundary between typeof-visible and
// internal tags (spec.md §9).
const languageVisible = 0x10

// IsInternal reports whether t is a compiler-internal tag not directly
// observable via typeof.
func (t Tag) IsInternal() bool { return int32(t) >= languageVisible }

// TypeofName returns the string typeof(x) evaluates to for a value
// carrying tag t. Array and Regexp both report "object", matching
// JavaScript's typeof semantics despite having distinct internal tags.
func (t Tag) TypeofName() string {
	switch t {
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case Undefined:
		return "undefined"
	case Function:
		return "function"
	case Symbol:
		return "symbol"
	case BigInt:
		return "bigint"
	case Object, Array, Regexp:
		return "object"
	default:
		return "object"
	}
}

// DisplayName is a debugging-oriented name (used in error messages and
// as the declared-type name recorded for inferred bindings) that, unlike
// TypeofName, distinguishes the internal tags.
func (t Tag) DisplayName() string {
	switch t {
	case Array:
		return "array"
	case Regexp:
		return "regexp"
	default:
		return t.TypeofName()
	}
}

// Null is the distinguished number value representing JavaScript's null,
// tagged Object (spec.md §3).
const Null float64 = 0

// Undef is the distinguished number value representing undefined, tagged
// Undefined (spec.md §3).
const Undef float64 = 0
