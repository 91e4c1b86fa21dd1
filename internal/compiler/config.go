package compiler

import (
	"github.com/sirupsen/logrus"
	"github.com/tombl/jsaot/internal/builtin"
	"github.com/tombl/jsaot/internal/hostparser"
	"github.com/tombl/jsaot/internal/opcode"
	"github.com/tombl/jsaot/internal/regexcheck"
)

// RegexCompiler is the fixed registration interface spec.md §6 describes
// for literal regex compilation: given a validated pattern/flags pair, it
// compiles a fresh WASM function implementing the match and returns that
// function's compiled body plus its parameter/result shape. The actual
// regex→WASM compiler is out of scope (spec.md §1); callers inject one,
// or leave it nil to make regex literals a TodoError.
type RegexCompiler interface {
	CompileRegexFunc(pattern, flags string) (params, results []opcode.ValType, body []opcode.Instruction, err error)
}

// Config configures one Compile invocation (spec.md §6's configuration
// flags plus the ambient dependencies the core is given rather than
// constructs itself).
type Config struct {
	// Valtype is the module-wide payload representation (-valtype).
	// Defaults to F64.
	Valtype opcode.ValType

	// PageSizeKiB is the page allocator's region size (-page-size).
	// Defaults to page.DefaultSizeKiB.
	PageSizeKiB int

	// UseBrTable selects br_table emission for type switches instead of
	// if-chains (-typeswitch-use-brtable).
	UseBrTable bool

	// StringApproximation records the -aot-well-formed-string-approximation
	// flag. No lowering routine reads it: string-concat sites are emitted
	// the same way whether it is set or not, and carry no annotation.
	StringApproximation bool

	// ASTLog dumps the (object-hacked) AST to the configured Logger at
	// debug level before lowering (-ast-log).
	ASTLog bool

	// Logger receives compile-time diagnostics. A Compilation never
	// touches a package-level logger (spec.md §5's isolation
	// requirement); nil defaults to a discarding logger.
	Logger *logrus.Logger

	// Registry supplies built-in vars/funcs/prototype-funcs/ctors. nil
	// defaults to builtin.New().
	Registry *builtin.Registry

	// HostParser parses eval-of-literal source (spec.md §4.5, §6). nil
	// makes an `eval` of a string literal a TodoError; an `eval` whose
	// argument is not a string literal compiles to a runtime
	// ReferenceError either way.
	HostParser hostparser.HostParser

	// RegexCompiler compiles literal regexes (spec.md §4.5, §6). nil
	// makes any regex literal a TodoError.
	RegexCompiler RegexCompiler

	// RegexChecker validates regex syntax before RegexCompiler is
	// invoked. nil defaults to regexcheck.New().
	RegexChecker *regexcheck.Checker
}

func (c Config) normalized() Config {
	if c.Valtype == 0 {
		c.Valtype = opcode.F64
	}
	if c.PageSizeKiB == 0 {
		c.PageSizeKiB = 64
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(discardWriter{})
		c.Logger = l
	}
	if c.Registry == nil {
		c.Registry = builtin.New()
	}
	if c.RegexChecker == nil {
		c.RegexChecker = regexcheck.New()
	}
	return c
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
