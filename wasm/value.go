// Package wasm holds the value, instruction and module data model shared by
// the interpreter and the JIT, along with the binary decoder that turns a
// .wasm byte stream into a Module.
package wasm

import "fmt"

// ValueType identifies one of the two value kinds this engine supports.
//
// The full WebAssembly 1.0 core also has i64 and f32; both are outside the
// subset this engine implements and are rejected by the decoder.
type ValueType uint8

const (
	I32 ValueType = iota
	F64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valuetype(%d)", uint8(t))
	}
}

// Value is a tagged union of I32(int32) and F64(float64). Exactly one of
// the two fields is meaningful, selected by Type.
type Value struct {
	Type ValueType
	I32  int32
	F64  float64
}

// I32Val wraps an int32 as a Value.
func I32Val(v int32) Value { return Value{Type: I32, I32: v} }

// F64Val wraps a float64 as a Value.
func F64Val(v float64) Value { return Value{Type: F64, F64: v} }

// Zero returns the default value for t, per the "locals are zero
// initialized" invariant.
func (t ValueType) Zero() Value {
	if t == F64 {
		return F64Val(0)
	}
	return I32Val(0)
}

func (v Value) String() string {
	if v.Type == F64 {
		return fmt.Sprintf("%.6f", v.F64)
	}
	return fmt.Sprintf("%d", v.I32)
}

// U32 reinterprets the i32 bit pattern as an unsigned 32-bit value, the
// representation used by every _u opcode variant.
func (v Value) U32() uint32 { return uint32(v.I32) }
