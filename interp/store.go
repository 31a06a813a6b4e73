package interp

import (
	"bufio"
	"io"

	"wasmvm/wasm"
)

// Store holds everything a module invocation needs beyond the immutable
// Module itself: mutable globals (as native values, not re-encoded
// LEB128/IEEE bytes — the "shared mutable module" decision in
// SPEC_FULL.md §9), the single linear memory, and the single function
// table. One Store is constructed per loaded module and shared by every
// call frame, matching §5 "owned by the module (for shared state)".
type Store struct {
	Module  *wasm.Module
	Globals []wasm.Value
	Mem     *Memory
	Table   *wasm.Table

	Stdout *bufio.Writer
}

// NewStore builds a Store from a decoded module: memory is allocated at
// its declared minimum size, globals are evaluated from their constant
// initializer once, and active data segments are copied in.
func NewStore(m *wasm.Module, stdout io.Writer) (*Store, error) {
	s := &Store{
		Module: m,
		Stdout: bufio.NewWriter(stdout),
	}

	if m.Mem != nil {
		s.Mem = NewMemory(m.Mem.Min, m.Mem.Max, m.Mem.HasMax)
	} else {
		s.Mem = NewMemory(0, 0, true)
	}

	s.Globals = make([]wasm.Value, len(m.Globals))
	for i, g := range m.Globals {
		s.Globals[i] = g.Init
	}

	if len(m.Tables) > 0 {
		s.Table = &m.Tables[0]
	}

	for _, d := range m.Datas {
		dst, ok := s.Mem.slice(uint64(uint32(d.Offset)), uint64(len(d.Bytes)))
		if !ok {
			return nil, errOutOfBoundsMemory
		}
		copy(dst, d.Bytes)
	}

	return s, nil
}

// GlobalGet implements §4.1 "Globals": global.get just reads the stored
// native value (the initializer-expression re-decoding the original
// design called for is unnecessary once globals are native values).
func (s *Store) GlobalGet(idx uint32) wasm.Value {
	return s.Globals[idx]
}

// GlobalSet implements §4.1 "Globals": rejects immutable globals and
// type-mismatched values.
func (s *Store) GlobalSet(idx uint32, v wasm.Value) error {
	g := s.Module.Globals[idx]
	if !g.Mutable {
		return errImmutableGlobal
	}
	if v.Type != g.Type {
		return errGlobalTypeMismatch
	}
	s.Globals[idx] = v
	return nil
}
