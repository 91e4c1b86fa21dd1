package compiler

import (
	"fmt"

	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// TodoError marks a compile-time unsupported construct (spec.md §7
// stratum 1): compilation halts and is never recovered.
type TodoError struct {
	Msg   string
	Cause error
}

func (e *TodoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jsaot: not supported: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("jsaot: not supported: %s", e.Msg)
}

func (e *TodoError) Unwrap() error { return e.Cause }

func todo(format string, args ...interface{}) error {
	return &TodoError{Msg: fmt.Sprintf(format, args...)}
}

func todoWrap(cause error, format string, args ...interface{}) error {
	return &TodoError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// SemanticErrorKind names one of the runtime-throw-producing error kinds
// spec.md §7 stratum 2 uses.
type SemanticErrorKind string

const (
	ReferenceError SemanticErrorKind = "ReferenceError"
	TypeError      SemanticErrorKind = "TypeError"
	SyntaxError    SemanticErrorKind = "SyntaxError"
	RangeError     SemanticErrorKind = "RangeError"
)

// SemanticError records a compile-time-detected semantic error that is
// emitted as a *runtime throw* (not a Go-level compile failure): the
// generator still produces a valid instruction sequence for the
// enclosing expression/statement (spec.md §7 stratum 2).
type SemanticError struct {
	Kind    SemanticErrorKind
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("jsaot: %s: %s", e.Kind, e.Message)
}

// throwError emits a runtime throw of the given kind/message: it records
// a fresh exceptions-table entry (spec.md §3, §4.6) and pushes the
// entry's index before a `throw` against the shared exception tag
// (index 0 of c.tags, the only tag this compiler ever declares). The
// enclosing function is marked as a throw site so its Throws flag is
// set correctly in the final ir.Func.
func (fc *funcCtx) throwError(kind SemanticErrorKind, message string) []opcode.Instruction {
	fc.throws = true
	idx := fc.c.recordException(string(kind), message)
	return []opcode.Instruction{
		opcode.ConstI32(idx),
		opcode.WithImm(opcode.OpThrow, leb128.EncodeUint32(0)),
	}
}
