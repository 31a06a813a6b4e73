package jit

import (
	"fmt"

	"wasmvm/wasm"
)

// Run locates and invokes the exported "main" function of m via the
// one-pass native-code emitter, binding args as its parameters, and
// returns its result. Mirrors interp.Run's structure (memory setup, data
// segment loading) but through the JIT's own LinearMemory rather than
// interp.Memory, and with no globals/table/GC-disable step: any module
// whose main reaches an opcode this emitter doesn't lower (calls,
// globals — see jit/ops.go) makes Compile return an error wrapping
// errJITUnsupported, which the caller is expected to treat as "fall back
// to the interpreter" rather than a hard failure.
func Run(m *wasm.Module, args []wasm.Value) (*wasm.Value, error) {
	main, err := m.MainFunc()
	if err != nil {
		return nil, err
	}

	var mem *LinearMemory
	if m.Mem != nil {
		mem, err = NewLinearMemory(m.Mem.Min, m.Mem.Max, m.Mem.HasMax)
	} else {
		mem, err = NewLinearMemory(0, 0, true)
	}
	if err != nil {
		return nil, fmt.Errorf("allocating JIT linear memory: %w", err)
	}
	defer mem.Close()

	for _, d := range m.Datas {
		region := mem.Bytes()
		off := uint64(uint32(d.Offset))
		if off+uint64(len(d.Bytes)) > uint64(len(region)) {
			return nil, fmt.Errorf("data segment at %#x: %w", off, errOutOfBoundsData)
		}
		copy(region[off:], d.Bytes)
	}

	InstallTrapHandler()

	fn, err := Compile(m, main, mem)
	if err != nil {
		return nil, err
	}
	return fn.Call(args), nil
}
