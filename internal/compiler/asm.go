package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// asmMnemonics maps the dotted textual opcode name used by the inline
// `asm` intrinsic (spec.md §6) to its raw Op. Only the subset this
// compiler itself ever needs to hand-emit is listed; anything else is a
// TodoError rather than a guess.
var asmMnemonics = map[string]opcode.Op{
	"unreachable":   opcode.OpUnreachable,
	"drop":          opcode.OpDrop,
	"return":        opcode.OpReturn,
	"local.get":     opcode.OpLocalGet,
	"local.set":     opcode.OpLocalSet,
	"local.tee":     opcode.OpLocalTee,
	"global.get":    opcode.OpGlobalGet,
	"global.set":    opcode.OpGlobalSet,
	"call":          opcode.OpCall,
	"i32.const":     opcode.OpI32Const,
	"i64.const":     opcode.OpI64Const,
	"f32.const":     opcode.OpF32Const,
	"f64.const":     opcode.OpF64Const,
	"i32.load":      opcode.OpI32Load,
	"i64.load":      opcode.OpI64Load,
	"f32.load":      opcode.OpF32Load,
	"f64.load":      opcode.OpF64Load,
	"i32.load16_u":  opcode.OpI32Load16U,
	"i32.store":     opcode.OpI32Store,
	"i64.store":     opcode.OpI64Store,
	"f32.store":     opcode.OpF32Store,
	"f64.store":     opcode.OpF64Store,
	"i32.store16":   opcode.OpI32Store16,
	"i32.add":       opcode.OpI32Add,
	"i32.sub":       opcode.OpI32Sub,
	"i32.mul":       opcode.OpI32Mul,
	"i64.add":       opcode.OpI64Add,
	"i64.sub":       opcode.OpI64Sub,
	"f64.add":       opcode.OpF64Add,
	"f64.sub":       opcode.OpF64Sub,
	"memory.copy":   opcode.OpMemoryCopy,
	"memory.fill":   opcode.OpMemoryFill,
}

// memargOps take two LEB128 immediates (align, offset) rather than a
// single value.
var memargOps = map[string]bool{
	"i32.load": true, "i64.load": true, "f32.load": true, "f64.load": true,
	"i32.load16_u": true,
	"i32.store":    true, "i64.store": true, "f32.store": true, "f64.store": true,
	"i32.store16": true,
}

// noImmOps take no immediate at all.
var noImmOps = map[string]bool{
	"unreachable": true, "drop": true, "return": true,
	"i32.add": true, "i32.sub": true, "i32.mul": true,
	"i64.add": true, "i64.sub": true,
	"f64.add": true, "f64.sub": true,
	"memory.copy": true, "memory.fill": true,
}

// lowerAsm parses raw as the `asm` tagged-template's line-oriented
// assembler (spec.md §6): `local <name> <idx> <type>` aliases a name to
// an existing local slot index for later opcode lines to reference by
// name instead of raw index; `returns <types>` and `memory` are accepted
// as documentation-only directives (this compiler's function ABI and
// memory layout are already fixed elsewhere); every other non-blank line
// is an opcode mnemonic with zero, one, or two immediates.
func lowerAsm(raw string) ([]opcode.Instruction, error) {
	locals := map[string]uint32{}
	var out []opcode.Instruction

	for lineNo, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Fields(line)
		head := fields[0]

		switch head {
		case "local":
			if len(fields) != 4 {
				return nil, fmt.Errorf("asm: line %d: `local` wants name idx type", lineNo+1)
			}
			idx, err := strconv.ParseUint(fields[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("asm: line %d: bad local index: %w", lineNo+1, err)
			}
			locals[fields[1]] = uint32(idx)
			continue
		case "returns", "memory":
			continue
		}

		op, ok := asmMnemonics[head]
		if !ok {
			return nil, &TodoError{Msg: fmt.Sprintf("asm: unsupported opcode %q on line %d", head, lineNo+1)}
		}

		args := fields[1:]
		resolve := func(a string) (uint32, error) {
			if idx, ok := locals[a]; ok {
				return idx, nil
			}
			v, err := strconv.ParseUint(a, 10, 32)
			if err != nil {
				return 0, fmt.Errorf("asm: line %d: unresolvable operand %q", lineNo+1, a)
			}
			return uint32(v), nil
		}

		switch {
		case noImmOps[head]:
			out = append(out, opcode.Simple(op))
		case memargOps[head]:
			if len(args) != 2 {
				return nil, fmt.Errorf("asm: line %d: %s wants align and offset", lineNo+1, head)
			}
			align, err := resolve(args[0])
			if err != nil {
				return nil, err
			}
			offset, err := resolve(args[1])
			if err != nil {
				return nil, err
			}
			imm := append(leb128.EncodeUint32(align), leb128.EncodeUint32(offset)...)
			out = append(out, opcode.WithImm(op, imm))
		case head == "i32.const":
			if len(args) != 1 {
				return nil, fmt.Errorf("asm: line %d: i32.const wants one immediate", lineNo+1)
			}
			v, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("asm: line %d: %w", lineNo+1, err)
			}
			out = append(out, opcode.Const(op, leb128.EncodeInt32(int32(v))))
		case head == "i64.const":
			if len(args) != 1 {
				return nil, fmt.Errorf("asm: line %d: i64.const wants one immediate", lineNo+1)
			}
			v, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("asm: line %d: %w", lineNo+1, err)
			}
			out = append(out, opcode.Const(op, leb128.EncodeInt64(v)))
		case head == "f32.const" || head == "f64.const":
			if len(args) != 1 {
				return nil, fmt.Errorf("asm: line %d: %s wants one immediate", lineNo+1, head)
			}
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return nil, fmt.Errorf("asm: line %d: %w", lineNo+1, err)
			}
			if head == "f32.const" {
				out = append(out, opcode.Const(op, leb128.EncodeF32(float32(v))))
			} else {
				out = append(out, opcode.Const(op, leb128.EncodeF64(v)))
			}
		case head == "local.get" || head == "local.set" || head == "local.tee" ||
			head == "global.get" || head == "global.set":
			if len(args) != 1 {
				return nil, fmt.Errorf("asm: line %d: %s wants one operand", lineNo+1, head)
			}
			idx, err := resolve(args[0])
			if err != nil {
				return nil, err
			}
			out = append(out, opcode.WithImm(op, leb128.EncodeUint32(idx)))
		case head == "call":
			if len(args) != 1 {
				return nil, fmt.Errorf("asm: line %d: call wants one operand", lineNo+1)
			}
			idx, err := resolve(args[0])
			if err != nil {
				return nil, err
			}
			out = append(out, opcode.WithImm(op, leb128.EncodeUint32(idx)))
		default:
			return nil, &TodoError{Msg: fmt.Sprintf("asm: opcode %q on line %d has no immediate-parsing rule", head, lineNo+1)}
		}
	}
	return out, nil
}
