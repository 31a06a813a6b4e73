// +build amd64

package jit

// jitcall transfers control to a block of native machine code previously
// produced by Compile (and made executable via mmapCodeSegment), passing
// localsPtr and resultPtr as its first two System V integer arguments.
// Implemented in jitcall_amd64.s; grounded on the wazero JIT's
// jitcall(codeSegment, engine, memory uintptr) trampoline shape
// (other_examples/dae1d11e_tetratelabs-wazero__wasm-jit-jit_amd64.go.go).
func jitcall(code, localsPtr, resultPtr uintptr)
