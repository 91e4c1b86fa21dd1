// Package regexcheck validates a regex literal's pattern/flags before a
// RegexCompiler is asked to compile it (spec.md §4.5, §6): the compiler
// itself never executes a regex, only validates its syntax so an
// unsupported or malformed pattern is reported as a TodoError rather
// than surfacing as an opaque codegen panic later.
package regexcheck

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Checker validates ECMAScript regex syntax using the same engine
// (dlclark/regexp2, in ECMAScript mode) that a real runtime evaluating
// this language's regex literals would use, so a pattern this Checker
// accepts is one the eventual RegexCompiler can reasonably be expected
// to handle.
type Checker struct{}

// New returns a ready-to-use Checker.
func New() *Checker { return &Checker{} }

// Check validates pattern against flags-adjusted ECMAScript regex
// syntax, returning a descriptive error for the first rejected
// construct.
func (c *Checker) Check(pattern, flags string) error {
	opts := regexp2.ECMAScript
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'u', 'y', 'd':
			// Match-time/encoding flags with no syntax-level effect on
			// regexp2's compiled form.
		default:
			return fmt.Errorf("regexcheck: unsupported flag %q", f)
		}
	}
	if _, err := regexp2.Compile(pattern, opts); err != nil {
		return fmt.Errorf("regexcheck: %w", err)
	}
	return nil
}
