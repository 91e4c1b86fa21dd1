// Command jsaotc reads a JSON ESTree-shaped AST and writes the compiled
// jsaot record (functions, globals, exception/tag tables, page map, data
// segments) as JSON, the hand-off point to the out-of-scope binary
// encoder (spec.md §1, §6).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tombl/jsaot/ast"
	"github.com/tombl/jsaot/internal/compiler"
	"github.com/tombl/jsaot/internal/opcode"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "Prints usage.")

	var valtypeName string
	flag.StringVar(&valtypeName, "valtype", "f64", "Module payload representation: f64 or i64.")

	var pageSizeKiB int
	flag.IntVar(&pageSizeKiB, "page-size", 64, "Heap page size, in KiB, allocated per named/anonymous array or string.")

	var useBrTable bool
	flag.BoolVar(&useBrTable, "typeswitch-use-brtable", false, "Emit br_table for runtime type switches instead of an if-chain.")

	var stringApprox bool
	flag.BoolVar(&stringApprox, "aot-well-formed-string-approximation", false, "Accepted and stored in the compiler config; it does not change the output (string-concat sites are not annotated).")

	var astLog bool
	flag.BoolVar(&astLog, "ast-log", false, "Log the object-hacked AST at debug level before lowering.")

	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Enable debug logging.")

	flag.Parse()

	if help {
		printUsage(stdErr)
		return 0
	}
	if flag.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to a JSON AST file")
		printUsage(stdErr)
		return 1
	}

	valtype, err := parseValtype(valtypeName)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	program, err := ast.Parse(src)
	if err != nil {
		fmt.Fprintln(stdErr, "parsing AST:", err)
		return 1
	}

	log := logrus.New()
	log.SetOutput(stdErr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	mod, err := compiler.Compile(program, compiler.Config{
		Valtype:             valtype,
		PageSizeKiB:         pageSizeKiB,
		UseBrTable:          useBrTable,
		StringApproximation: stringApprox,
		ASTLog:              astLog,
		Logger:              log,
	})
	if err != nil {
		fmt.Fprintln(stdErr, "compiling:", err)
		return 1
	}

	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(mod); err != nil {
		fmt.Fprintln(stdErr, "encoding module:", err)
		return 1
	}

	return 0
}

func parseValtype(name string) (opcode.ValType, error) {
	switch name {
	case "f64":
		return opcode.F64, nil
	case "i64":
		return opcode.I64, nil
	default:
		return 0, fmt.Errorf("unsupported -valtype %q (want f64 or i64)", name)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "jsaotc compiles a JSON AST into a jsaot compilation record.")
	fmt.Fprintln(w, "usage: jsaotc [flags] <ast.json>")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
