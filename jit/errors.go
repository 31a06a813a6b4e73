package jit

import "errors"

// ErrUnsupported marks an instruction category this one-pass emitter
// does not yet lower to native code. Compile returns it wrapped with the
// offending opcode; callers (the driver, C9) fall back to the
// interpreter for such a module rather than rejecting it outright.
var ErrUnsupported = errors.New("unsupported by the JIT emitter")

// errJITUnsupported is the internal alias used throughout the emitter.
var errJITUnsupported = ErrUnsupported

// errOutOfBoundsData is returned by Run when a data segment's offset and
// length fall outside the memory reserved for it — a load-time error,
// distinct from the runtime SIGSEGV traps raised by emitted code.
var errOutOfBoundsData = errors.New("data segment out of bounds")
