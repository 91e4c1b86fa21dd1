package builtin

import (
	"fmt"

	"github.com/tombl/jsaot/internal/langtype"
	"github.com/tombl/jsaot/internal/leb128"
	"github.com/tombl/jsaot/internal/opcode"
)

// Fixed ABI import indices spec.md §6 assumes: "Imported functions
// numbered 0..importedFuncs.length-1 include a character printer and a
// number printer used by built-ins and typeof tests."
const (
	ImportCharPrinter   uint32 = 0
	ImportNumberPrinter uint32 = 1
)

func callImport(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpCall, leb128.EncodeUint32(idx))
}

var zeroMemarg = []byte{0, 0}

func localGetI(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpLocalGet, leb128.EncodeUint32(idx))
}

func localSetI(idx uint32) opcode.Instruction {
	return opcode.WithImm(opcode.OpLocalSet, leb128.EncodeUint32(idx))
}

// clampI clips the i32 local at idxLocal into [0, the i32 local at
// maxLocal], in place.
func clampI(idxLocal, maxLocal uint32) []opcode.Instruction {
	var out []opcode.Instruction
	out = append(out, localGetI(idxLocal), opcode.ConstI32(0), opcode.Simple(opcode.OpI32LtS))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, opcode.ConstI32(0), localSetI(idxLocal))
	out = append(out, opcode.Simple(opcode.OpEnd))
	out = append(out, localGetI(idxLocal), localGetI(maxLocal), opcode.Simple(opcode.OpI32GtS))
	out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
	out = append(out, localGetI(maxLocal), localSetI(idxLocal))
	out = append(out, opcode.Simple(opcode.OpEnd))
	return out
}

// sliceGen builds the shared Array.prototype.slice/String.prototype.slice
// body: a start/end pair clamped into [0, length] (no negative-index
// support in this subset — a documented simplification), copied
// element-wise into the pre-allocated destination page args[0] supplies
// (ProtoFunc.NeedsDest). arrayElem selects module-valtype-sized elements
// read/written through g's own Load/Store (Array); when false, elements
// are the fixed 2-byte UTF-16 units String pages always use, regardless
// of module valtype. The page layout ([0..3] length, [4..] elements) is
// otherwise identical for both kinds.
func sliceGen(arrayElem bool, resultTag langtype.Tag) Gen {
	return func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
		if len(args) < 1 {
			return nil, Unknown, fmt.Errorf("builtin: slice requires a pre-allocated destination page")
		}
		destPtr := args[0]
		userArgs := args[1:]
		if len(userArgs) > 2 {
			return nil, Unknown, fmt.Errorf("builtin: slice takes at most two arguments in this subset")
		}

		loadOp, storeOp, elemSize := opcode.OpI32Load16U, opcode.OpI32Store16, int32(2)
		if arrayElem {
			loadOp, storeOp, elemSize = g.Load, g.Store, int32(g.Valtype.Size())
		}

		lenIdx := fresh(opcode.I32)
		startIdx := fresh(opcode.I32)
		endIdx := fresh(opcode.I32)
		sliceLenIdx := fresh(opcode.I32)
		iIdx := fresh(opcode.I32)

		var out []opcode.Instruction
		out = append(out, length()...)
		out = append(out, localSetI(lenIdx))

		if len(userArgs) >= 1 {
			out = append(out, userArgs[0]...)
			out = append(out, i32ToInstrs(g)...)
		} else {
			out = append(out, opcode.ConstI32(0))
		}
		out = append(out, localSetI(startIdx))
		out = append(out, clampI(startIdx, lenIdx)...)

		if len(userArgs) >= 2 {
			out = append(out, userArgs[1]...)
			out = append(out, i32ToInstrs(g)...)
			out = append(out, localSetI(endIdx))
			out = append(out, clampI(endIdx, lenIdx)...)
		} else {
			out = append(out, localGetI(lenIdx), localSetI(endIdx))
		}

		out = append(out, localGetI(endIdx), localGetI(startIdx), opcode.Simple(opcode.OpI32Sub), localSetI(sliceLenIdx))
		out = append(out, localGetI(sliceLenIdx), opcode.ConstI32(0), opcode.Simple(opcode.OpI32LtS))
		out = append(out, opcode.Block(opcode.OpIf, opcode.BlockType{Empty: true}))
		out = append(out, opcode.ConstI32(0), localSetI(sliceLenIdx))
		out = append(out, opcode.Simple(opcode.OpEnd))

		out = append(out, destPtr...)
		out = append(out, localGetI(sliceLenIdx))
		out = append(out, opcode.WithImm(opcode.OpI32Store, zeroMemarg))

		out = append(out, opcode.ConstI32(0), localSetI(iIdx))
		out = append(out, opcode.Block(opcode.OpBlock, opcode.BlockType{Empty: true})) // $done
		out = append(out, opcode.Block(opcode.OpLoop, opcode.BlockType{Empty: true}))  // $loop
		out = append(out, localGetI(iIdx), localGetI(sliceLenIdx), opcode.Simple(opcode.OpI32GeS))
		out = append(out, opcode.WithImm(opcode.OpBrIf, leb128.EncodeUint32(1)))

		out = append(out, destPtr...)
		out = append(out, opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
		out = append(out, localGetI(iIdx), opcode.ConstI32(elemSize), opcode.Simple(opcode.OpI32Mul), opcode.Simple(opcode.OpI32Add))

		out = append(out, ptr...)
		out = append(out, opcode.ConstI32(4), opcode.Simple(opcode.OpI32Add))
		out = append(out, localGetI(startIdx), localGetI(iIdx), opcode.Simple(opcode.OpI32Add))
		out = append(out, opcode.ConstI32(elemSize), opcode.Simple(opcode.OpI32Mul), opcode.Simple(opcode.OpI32Add))
		out = append(out, opcode.WithImm(loadOp, zeroMemarg))
		out = append(out, opcode.WithImm(storeOp, zeroMemarg))

		out = append(out, localGetI(iIdx), opcode.ConstI32(1), opcode.Simple(opcode.OpI32Add), localSetI(iIdx))
		out = append(out, opcode.WithImm(opcode.OpBr, leb128.EncodeUint32(0)))
		out = append(out, opcode.Simple(opcode.OpEnd)) // end $loop
		out = append(out, opcode.Simple(opcode.OpEnd)) // end $done

		out = append(out, destPtr...)
		out = append(out, i32FromInstrs(g)...)
		return out, resultTag, nil
	}
}

// registerConcrete wires the representative built-in slice named in
// SPEC_FULL.md: Math.*, the two printers, Array/String prototype
// methods, and the Array.of internal constructor.
func registerConcrete(r *Registry) {
	registerMath(r)
	registerPrint(r)
	registerArrayProto(r)
	registerStringProto(r)
	registerCtors(r)
}

func registerMath(r *Registry) {
	unary := func(name string, op opcode.Op) {
		r.RegisterFunc(Func{
			Name:       "Math_" + name,
			FloatOnly:  true,
			ReturnType: langtype.Number,
			Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
				if g.Valtype != opcode.F64 {
					return nil, Unknown, fmt.Errorf("builtin: Math.%s requires a float module valtype", name)
				}
				if len(args) != 1 {
					return nil, Unknown, fmt.Errorf("builtin: Math.%s takes exactly one argument", name)
				}
				var out []opcode.Instruction
				out = append(out, args[0]...)
				out = append(out, opcode.Simple(op))
				return out, langtype.Number, nil
			},
		})
	}
	unary("floor", opcode.OpF64Floor)
	unary("ceil", opcode.OpF64Ceil)
	unary("sqrt", opcode.OpF64Sqrt)
	unary("abs", opcode.OpF64Abs)

	r.RegisterVar(Var{
		Name: "Math_PI", Valtype: opcode.F64, Tag: langtype.Number,
		Const: func(g opcode.Generic) opcode.Instruction { return g.ConstF64(3.141592653589793) },
	})
}

func registerPrint(r *Registry) {
	r.RegisterFunc(Func{
		Name:       "__print_number",
		ReturnType: langtype.Undefined,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			if len(args) != 1 {
				return nil, Unknown, fmt.Errorf("builtin: __print_number takes exactly one argument")
			}
			var out []opcode.Instruction
			out = append(out, args[0]...)
			out = append(out, callImport(ImportNumberPrinter))
			return out, langtype.Undefined, nil
		},
	})
	r.RegisterFunc(Func{
		Name:       "__print_char",
		ReturnType: langtype.Undefined,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			if len(args) != 1 {
				return nil, Unknown, fmt.Errorf("builtin: __print_char takes exactly one argument")
			}
			var out []opcode.Instruction
			out = append(out, args[0]...)
			out = append(out, callImport(ImportCharPrinter))
			return out, langtype.Undefined, nil
		},
	})
}

// registerArrayProto wires a handful of Array.prototype methods as
// inline generators operating on the page layout from spec.md §3:
// [0..3] u32 length, [4..] elements.
func registerArrayProto(r *Registry) {
	r.RegisterProto(langtype.Array, "length", ProtoFunc{
		ReturnType: langtype.Number,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			out := append([]opcode.Instruction{}, length()...)
			out = append(out, i32FromInstrs(g)...)
			return out, langtype.Number, nil
		},
	})

	r.RegisterProto(langtype.Array, "push", ProtoFunc{
		ReturnType: langtype.Number,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			if len(args) != 1 {
				return nil, Unknown, fmt.Errorf("builtin: Array.prototype.push takes exactly one argument in this subset")
			}
			elemSize := g.Valtype.Size()
			var out []opcode.Instruction
			// addr = ptr + 4 + length*elemSize
			out = append(out, ptr...)
			out = append(out, opcode.ConstI32(4))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, length()...)
			out = append(out, opcode.ConstI32(int32(elemSize)))
			out = append(out, opcode.Simple(opcode.OpI32Mul))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, args[0]...)
			out = append(out, opcode.WithImm(g.Store, []byte{0, 0}))
			// new length = length+1, written back and pushed as the result
			out = append(out, ptr...)
			out = append(out, length()...)
			out = append(out, opcode.ConstI32(1))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, opcode.WithImm(opcode.OpI32Store, []byte{0, 0}))
			out = append(out, length()...)
			out = append(out, opcode.ConstI32(1), opcode.Simple(opcode.OpI32Add))
			out = append(out, i32FromInstrs(g)...)
			return out, langtype.Number, nil
		},
	})

	r.RegisterProto(langtype.Array, "pop", ProtoFunc{
		ReturnType: langtype.Number,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			if len(args) != 0 {
				return nil, Unknown, fmt.Errorf("builtin: Array.prototype.pop takes no arguments")
			}
			elemSize := g.Valtype.Size()
			newLenIdx := fresh(opcode.I32)
			var out []opcode.Instruction
			out = append(out, length()...)
			out = append(out, opcode.ConstI32(1))
			out = append(out, opcode.Simple(opcode.OpI32Sub))
			out = append(out, localSetI(newLenIdx))
			out = append(out, ptr...)
			out = append(out, localGetI(newLenIdx))
			out = append(out, opcode.WithImm(opcode.OpI32Store, zeroMemarg))
			out = append(out, ptr...)
			out = append(out, opcode.ConstI32(4))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, localGetI(newLenIdx))
			out = append(out, opcode.ConstI32(int32(elemSize)))
			out = append(out, opcode.Simple(opcode.OpI32Mul))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, opcode.WithImm(g.Load, zeroMemarg))
			return out, langtype.Number, nil
		},
	})

	r.RegisterProto(langtype.Array, "slice", ProtoFunc{
		ReturnType: langtype.Array,
		NeedsDest:  true,
		Body:       sliceGen(true, langtype.Array),
	})
}

func registerStringProto(r *Registry) {
	r.RegisterProto(langtype.String, "length", ProtoFunc{
		ReturnType: langtype.Number,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			out := append([]opcode.Instruction{}, length()...)
			out = append(out, i32FromInstrs(g)...)
			return out, langtype.Number, nil
		},
	})

	r.RegisterProto(langtype.String, "charCodeAt", ProtoFunc{
		ReturnType: langtype.Number,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, length LenAccessor, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, langtype.Tag, error) {
			if len(args) != 1 {
				return nil, Unknown, fmt.Errorf("builtin: String.prototype.charCodeAt takes exactly one argument")
			}
			var out []opcode.Instruction
			out = append(out, ptr...)
			out = append(out, opcode.ConstI32(4))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, args[0]...)
			out = append(out, i32ToInstrs(g)...)
			out = append(out, opcode.ConstI32(2))
			out = append(out, opcode.Simple(opcode.OpI32Mul))
			out = append(out, opcode.Simple(opcode.OpI32Add))
			out = append(out, opcode.WithImm(opcode.OpI32Load16U, []byte{0, 0}))
			out = append(out, i32FromInstrs(g)...)
			return out, langtype.Number, nil
		},
	})

	r.RegisterProto(langtype.String, "slice", ProtoFunc{
		ReturnType: langtype.String,
		NeedsDest:  true,
		Body:       sliceGen(false, langtype.String),
	})
}

func registerCtors(r *Registry) {
	r.RegisterCtor(Ctor{
		Name:       "Array_of",
		ReturnType: langtype.Array,
		Body: func(g opcode.Generic, ptr []opcode.Instruction, args [][]opcode.Instruction, fresh FreshLocal) ([]opcode.Instruction, error) {
			elemSize := g.Valtype.Size()
			var out []opcode.Instruction
			// [ptr+0..3] = len(args)
			out = append(out, ptr...)
			out = append(out, opcode.ConstI32(int32(len(args))))
			out = append(out, opcode.WithImm(opcode.OpI32Store, []byte{0, 0}))
			for i, arg := range args {
				out = append(out, ptr...)
				out = append(out, opcode.ConstI32(int32(4+i*elemSize)))
				out = append(out, opcode.Simple(opcode.OpI32Add))
				out = append(out, arg...)
				out = append(out, opcode.WithImm(g.Store, []byte{0, 0}))
			}
			return out, nil
		},
	})
}

// i32ToInstrs/i32FromInstrs expose the generic int32 conversion pair as
// instruction slices (possibly empty, for an i32 module valtype).
func i32ToInstrs(g opcode.Generic) []opcode.Instruction {
	if g.I32To == opcode.OpNop {
		return nil
	}
	return []opcode.Instruction{opcode.Simple(g.I32To)}
}

func i32FromInstrs(g opcode.Generic) []opcode.Instruction {
	if g.I32From == opcode.OpNop {
		return nil
	}
	return []opcode.Instruction{opcode.Simple(g.I32From)}
}
