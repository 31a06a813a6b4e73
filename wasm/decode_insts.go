package wasm

import "github.com/pkg/errors"

// decodeBlockType reads the block-type immediate shared by block/loop/if,
// per §3 "Block type": empty (0x40), a single value type (0x7F/0x7C), or a
// signed LEB128 type-section index (any other value, always non-negative
// for the modules this engine accepts).
func decodeBlockType(c *cursor) (BlockType, error) {
	v, err := c.s33leb()
	if err != nil {
		return BlockType{}, err
	}
	switch v {
	case -0x40:
		return BlockType{Kind: BlockEmpty}, nil
	case -0x01:
		return BlockType{Kind: BlockValue, Value: I32}, nil
	case -0x04:
		return BlockType{Kind: BlockValue, Value: F64}, nil
	default:
		if v < 0 {
			return BlockType{}, errors.New("unsupported block value type")
		}
		return BlockType{Kind: BlockFuncType, SigIdx: uint32(v)}, nil
	}
}

// decodeInstructions decodes the flat instruction stream of one function
// body (the decoder does not nest; block/loop/if/else/end remain ordinary
// entries in the same linear list, matched up after the fact by
// linkStructuredControl, exactly as §4.1 "Dispatch model" assumes).
func decodeInstructions(c *cursor) ([]Instruction, error) {
	var out []Instruction
	for c.remaining() > 0 {
		opByte, err := c.byte()
		if err != nil {
			return nil, err
		}

		var inst Instruction
		switch opByte {
		case 0x00:
			inst.Op = OpUnreachable
		case 0x01:
			inst.Op = OpNop
		case 0x02:
			inst.Op = OpBlock
			if inst.Block, err = decodeBlockType(c); err != nil {
				return nil, err
			}
		case 0x03:
			inst.Op = OpLoop
			if inst.Block, err = decodeBlockType(c); err != nil {
				return nil, err
			}
		case 0x04:
			inst.Op = OpIf
			if inst.Block, err = decodeBlockType(c); err != nil {
				return nil, err
			}
			inst.ElsePC = -1
		case 0x05:
			inst.Op = OpElse
		case 0x0B:
			inst.Op = OpEnd
		case 0x0C:
			inst.Op = OpBr
			if inst.RelDepth, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x0D:
			inst.Op = OpBrIf
			if inst.RelDepth, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x0E:
			inst.Op = OpBrTable
			n, err := c.u32leb()
			if err != nil {
				return nil, err
			}
			tbl := make([]uint32, n)
			for i := range tbl {
				if tbl[i], err = c.u32leb(); err != nil {
					return nil, err
				}
			}
			def, err := c.u32leb()
			if err != nil {
				return nil, err
			}
			inst.BrTable = tbl
			inst.BrTableDefault = def
		case 0x0F:
			inst.Op = OpReturn
		case 0x10:
			inst.Op = OpCall
			if inst.FuncIdx, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x11:
			inst.Op = OpCallIndirect
			if inst.TypeIdx, err = c.u32leb(); err != nil {
				return nil, err
			}
			if inst.TableIdx, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x1A:
			inst.Op = OpDrop
		case 0x1B:
			inst.Op = OpSelect
		case 0x20:
			inst.Op = OpLocalGet
			if inst.Index, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x21:
			inst.Op = OpLocalSet
			if inst.Index, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x22:
			inst.Op = OpLocalTee
			if inst.Index, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x23:
			inst.Op = OpGlobalGet
			if inst.Index, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x24:
			inst.Op = OpGlobalSet
			if inst.Index, err = c.u32leb(); err != nil {
				return nil, err
			}
		case 0x28:
			inst.Op = OpI32Load
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x2B:
			inst.Op = OpF64Load
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x2C:
			inst.Op = OpI32Load8S
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x2D:
			inst.Op = OpI32Load8U
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x2E:
			inst.Op = OpI32Load16S
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x2F:
			inst.Op = OpI32Load16U
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x36:
			inst.Op = OpI32Store
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x39:
			inst.Op = OpF64Store
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x3A:
			inst.Op = OpI32Store8
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x3B:
			inst.Op = OpI32Store16
			if inst.Mem, err = decodeMemArg(c); err != nil {
				return nil, err
			}
		case 0x3F:
			inst.Op = OpMemorySize
			if _, err = c.byte(); err != nil { // reserved memory index, must be 0
				return nil, err
			}
		case 0x40:
			inst.Op = OpMemoryGrow
			if _, err = c.byte(); err != nil {
				return nil, err
			}
		case 0x41:
			inst.Op = OpI32Const
			if inst.I32Const, err = c.s32leb(); err != nil {
				return nil, err
			}
		case 0x44:
			inst.Op = OpF64Const
			if inst.F64Const, err = c.f64(); err != nil {
				return nil, err
			}

		case 0x45:
			inst = unop(OpI32Unop, uint8(I32Eqz))
		case 0x67:
			inst = unop(OpI32Unop, uint8(I32Clz))
		case 0x68:
			inst = unop(OpI32Unop, uint8(I32Ctz))
		case 0x69:
			inst = unop(OpI32Unop, uint8(I32Popcnt))
		case 0xC0:
			inst = unop(OpI32Unop, uint8(I32Extend8S))
		case 0xC1:
			inst = unop(OpI32Unop, uint8(I32Extend16S))
		case 0xAA:
			inst = unop(OpI32Unop, uint8(I32TruncF64S))
		case 0xAB:
			inst = unop(OpI32Unop, uint8(I32TruncF64U))
		case 0xB7:
			inst = unop(OpI32Unop, uint8(F64ConvertI32S))
		case 0xB8:
			inst = unop(OpI32Unop, uint8(F64ConvertI32U))

		case 0x46:
			inst = binop(I32Eq)
		case 0x47:
			inst = binop(I32Ne)
		case 0x48:
			inst = binop(I32LtS)
		case 0x49:
			inst = binop(I32LtU)
		case 0x4A:
			inst = binop(I32GtS)
		case 0x4B:
			inst = binop(I32GtU)
		case 0x4C:
			inst = binop(I32LeS)
		case 0x4D:
			inst = binop(I32LeU)
		case 0x4E:
			inst = binop(I32GeS)
		case 0x4F:
			inst = binop(I32GeU)
		case 0x6A:
			inst = binop(I32Add)
		case 0x6B:
			inst = binop(I32Sub)
		case 0x6C:
			inst = binop(I32Mul)
		case 0x6D:
			inst = binop(I32DivS)
		case 0x6E:
			inst = binop(I32DivU)
		case 0x6F:
			inst = binop(I32RemS)
		case 0x70:
			inst = binop(I32RemU)
		case 0x71:
			inst = binop(I32And)
		case 0x72:
			inst = binop(I32Or)
		case 0x73:
			inst = binop(I32Xor)
		case 0x74:
			inst = binop(I32Shl)
		case 0x75:
			inst = binop(I32ShrS)
		case 0x76:
			inst = binop(I32ShrU)
		case 0x77:
			inst = binop(I32Rotl)
		case 0x78:
			inst = binop(I32Rotr)

		case 0x61:
			inst = f64binop(F64Eq)
		case 0x62:
			inst = f64binop(F64Ne)
		case 0x63:
			inst = f64binop(F64Lt)
		case 0x64:
			inst = f64binop(F64Gt)
		case 0x65:
			inst = f64binop(F64Le)
		case 0x66:
			inst = f64binop(F64Ge)
		case 0x99:
			inst = f64unop(F64Abs)
		case 0x9A:
			inst = f64unop(F64Neg)
		case 0x9B:
			inst = f64unop(F64Ceil)
		case 0x9C:
			inst = f64unop(F64Floor)
		case 0x9D:
			inst = f64unop(F64Trunc)
		case 0x9E:
			inst = f64unop(F64Nearest)
		case 0x9F:
			inst = f64unop(F64Sqrt)
		case 0xA0:
			inst = f64binop(F64Add)
		case 0xA1:
			inst = f64binop(F64Sub)
		case 0xA2:
			inst = f64binop(F64Mul)
		case 0xA3:
			inst = f64binop(F64Div)
		case 0xA4:
			inst = f64binop(F64Min)
		case 0xA5:
			inst = f64binop(F64Max)

		default:
			return nil, errors.Errorf("unsupported opcode byte 0x%x", opByte)
		}

		out = append(out, inst)
	}
	return out, nil
}

func decodeMemArg(c *cursor) (MemArg, error) {
	align, err := c.u32leb()
	if err != nil {
		return MemArg{}, err
	}
	offset, err := c.u32leb()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Offset: offset, Align: align}, nil
}

func unop(op Op, kind uint8) Instruction {
	return Instruction{Op: op, I32Unop: I32UnopKind(kind)}
}

func binop(kind I32BinopKind) Instruction {
	return Instruction{Op: OpI32Binop, I32Binop: kind}
}

func f64unop(kind F64UnopKind) Instruction {
	return Instruction{Op: OpF64Unop, F64Unop: kind}
}

func f64binop(kind F64BinopKind) Instruction {
	return Instruction{Op: OpF64Binop, F64Binop: kind}
}
