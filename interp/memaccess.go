package interp

import (
	"encoding/binary"
	"math"

	"wasmvm/wasm"
)

// effectiveAddr implements §4.1 "Memory access": the popped base is
// treated as unsigned and added to the memarg offset.
func effectiveAddr(base wasm.Value, mem wasm.MemArg) uint64 {
	return uint64(base.U32()) + uint64(mem.Offset)
}

func (e *Executor) execLoad(inst wasm.Instruction) (wasm.Value, error) {
	base := e.pop()
	ea := effectiveAddr(base, inst.Mem)

	width := map[wasm.Op]uint64{
		wasm.OpI32Load:     4,
		wasm.OpI32Load8S:   1,
		wasm.OpI32Load8U:   1,
		wasm.OpI32Load16S:  2,
		wasm.OpI32Load16U:  2,
		wasm.OpF64Load:     8,
	}[inst.Op]

	b, ok := e.store.Mem.slice(ea, width)
	if !ok {
		return wasm.Value{}, errOutOfBoundsMemory
	}

	switch inst.Op {
	case wasm.OpI32Load:
		return wasm.I32Val(int32(binary.LittleEndian.Uint32(b))), nil
	case wasm.OpI32Load8S:
		return wasm.I32Val(int32(int8(b[0]))), nil
	case wasm.OpI32Load8U:
		return wasm.I32Val(int32(b[0])), nil
	case wasm.OpI32Load16S:
		return wasm.I32Val(int32(int16(binary.LittleEndian.Uint16(b)))), nil
	case wasm.OpI32Load16U:
		return wasm.I32Val(int32(binary.LittleEndian.Uint16(b))), nil
	case wasm.OpF64Load:
		return wasm.F64Val(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	}
	panic("unreachable load op")
}

func (e *Executor) execStore(inst wasm.Instruction) error {
	v := e.pop()
	base := e.pop()
	ea := effectiveAddr(base, inst.Mem)

	width := map[wasm.Op]uint64{
		wasm.OpI32Store:   4,
		wasm.OpI32Store8:  1,
		wasm.OpI32Store16: 2,
		wasm.OpF64Store:   8,
	}[inst.Op]

	b, ok := e.store.Mem.slice(ea, width)
	if !ok {
		return errOutOfBoundsMemory
	}

	switch inst.Op {
	case wasm.OpI32Store:
		binary.LittleEndian.PutUint32(b, uint32(v.I32))
	case wasm.OpI32Store8:
		b[0] = byte(v.I32)
	case wasm.OpI32Store16:
		binary.LittleEndian.PutUint16(b, uint16(v.I32))
	case wasm.OpF64Store:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.F64))
	}
	return nil
}
