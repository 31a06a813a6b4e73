package wasm

// Op is the opcode of an Instruction. Numeric values are not required to
// match the WebAssembly binary encoding (the decoder maps binary opcodes to
// these constants); they only need to be distinct.
type Op uint8

const (
	OpUnreachable Op = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect
	OpDrop
	OpSelect
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet
	OpI32Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpF64Load
	OpI32Store
	OpI32Store8
	OpI32Store16
	OpF64Store
	OpMemorySize
	OpMemoryGrow
	OpI32Const
	OpF64Const
	OpI32Unop
	OpI32Binop
	OpF64Unop
	OpF64Binop
)

func (o Op) String() string {
	names := [...]string{
		"unreachable", "nop", "block", "loop", "if", "else", "end",
		"br", "br_if", "br_table", "return", "call", "call_indirect",
		"drop", "select", "local.get", "local.set", "local.tee",
		"global.get", "global.set",
		"i32.load", "i32.load8_s", "i32.load8_u", "i32.load16_s", "i32.load16_u", "f64.load",
		"i32.store", "i32.store8", "i32.store16", "f64.store",
		"memory.size", "memory.grow",
		"i32.const", "f64.const",
		"i32unop", "i32binop", "f64unop", "f64binop",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "op(?)"
}

// I32UnopKind enumerates the unary i32 opcodes of §6.
type I32UnopKind uint8

const (
	I32Eqz I32UnopKind = iota
	I32Clz
	I32Ctz
	I32Popcnt
	I32Extend8S
	I32Extend16S
	I32TruncF64S
	I32TruncF64U
	F64ConvertI32S
	F64ConvertI32U
)

// I32BinopKind enumerates the binary i32 opcodes of §6, including comparisons.
type I32BinopKind uint8

const (
	I32Eq I32BinopKind = iota
	I32Ne
	I32LtS
	I32LtU
	I32GtS
	I32GtU
	I32LeS
	I32LeU
	I32GeS
	I32GeU
	I32Add
	I32Sub
	I32Mul
	I32DivS
	I32DivU
	I32RemS
	I32RemU
	I32And
	I32Or
	I32Xor
	I32Shl
	I32ShrS
	I32ShrU
	I32Rotl
	I32Rotr
)

// F64UnopKind enumerates the unary f64 opcodes of §6.
type F64UnopKind uint8

const (
	F64Abs F64UnopKind = iota
	F64Neg
	F64Ceil
	F64Floor
	F64Trunc
	F64Nearest
	F64Sqrt
)

// F64BinopKind enumerates the binary f64 opcodes of §6, including comparisons.
type F64BinopKind uint8

const (
	F64Eq F64BinopKind = iota
	F64Ne
	F64Lt
	F64Gt
	F64Le
	F64Ge
	F64Add
	F64Sub
	F64Mul
	F64Div
	F64Min
	F64Max
)

// BlockTypeKind selects which of the three block-type shapes a BlockType
// describes, per §3 "Block type".
type BlockTypeKind uint8

const (
	BlockEmpty BlockTypeKind = iota
	BlockValue
	BlockFuncType
)

// BlockType is the descriptor attached to block/loop/if, used to compute
// the stack-height delta and result count at block entry (§4.1
// "Block-type arithmetic").
type BlockType struct {
	Kind    BlockTypeKind
	Value   ValueType // meaningful when Kind == BlockValue
	SigIdx  uint32    // meaningful when Kind == BlockFuncType
}

// Delta returns stack_height_delta(bt) against the owning module's
// signature table (needed only for BlockFuncType).
func (bt BlockType) Delta(sigs []FuncSig) int {
	switch bt.Kind {
	case BlockEmpty:
		return 0
	case BlockValue:
		return 1
	case BlockFuncType:
		sig := sigs[bt.SigIdx]
		return len(sig.Results) - len(sig.Params)
	}
	return 0
}

// NumResults returns num_results(bt) against the owning module's signature
// table (needed only for BlockFuncType).
func (bt BlockType) NumResults(sigs []FuncSig) int {
	switch bt.Kind {
	case BlockEmpty:
		return 0
	case BlockValue:
		return 1
	case BlockFuncType:
		return len(sigs[bt.SigIdx].Results)
	}
	return 0
}

// MemArg is the offset/alignment immediate carried by every load/store
// instruction. Align is decoded but unused by this engine (neither engine
// needs alignment hints to behave correctly).
type MemArg struct {
	Offset uint32
	Align  uint32
}

// Instruction is one decoded opcode plus whatever immediates it carries.
// Only the fields relevant to Op are populated; the rest are zero.
type Instruction struct {
	Op Op

	// control: block/loop/if
	Block BlockType

	// control: br / br_if
	RelDepth uint32

	// control: br_table
	BrTable        []uint32
	BrTableDefault uint32

	// call / call_indirect
	FuncIdx  uint32
	TypeIdx  uint32
	TableIdx uint32

	// local.{get,set,tee} / global.{get,set}
	Index uint32

	// memory ops
	Mem MemArg

	// constants
	I32Const int32
	F64Const float64

	// arithmetic groups
	I32Unop  I32UnopKind
	I32Binop I32BinopKind
	F64Unop  F64UnopKind
	F64Binop F64BinopKind

	// set by the decoder on block/loop/if: absolute index, within the
	// same instruction list, of the matching `end` (and, for `if`, the
	// nearest top-level `else`, or -1 if none). Pre-computing these at
	// decode time mirrors the depth-counter matching described in §4.1
	// but avoids redoing the scan on every dispatch of a loop body.
	EndPC  int
	ElsePC int
}
