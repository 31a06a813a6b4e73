// Package regalloc is the JIT's abstract register allocator: it models the
// virtual operand stack as a vector of locations (physical GPR, physical
// XMM, or spill slot), per spec.md §4.2 "Abstract register allocator".
//
// Grounded on original_source's X86RegisterAllocator
// (src/jit/regalloc/{allocator,register,mod}.rs) for the next()/new_spill()/
// drop() shape, and on the wazero JIT's valueLocationStack
// (other_examples/dae1d11e_tetratelabs-wazero__wasm-jit-jit_amd64.go.go)
// for the idiomatic Go rendition of the same idea as a slice-backed stack.
package regalloc

// LocKind distinguishes where a virtual operand-stack slot currently
// lives.
type LocKind uint8

const (
	LocGPR LocKind = iota
	LocXMM
	LocStack
)

// Location is one entry of the abstract register allocator's view of the
// operand stack.
type Location struct {
	Kind    LocKind
	Reg     int  // x86 register encoding (see regs.go), meaningful for LocGPR/LocXMM
	Offset  int  // byte offset from RSP, meaningful for LocStack
	IsFloat bool // true for f64 values, selecting MOVSD/XMM over MOVQ/GPR moves
}

// Allocator is the abstract register allocator of §4.2/C5. It hands out
// GPR/XMM registers from a fixed pool and falls back to spill slots once
// the pool is exhausted, exactly like original_source's next()/new_spill().
type Allocator struct {
	freeGPR []int
	freeXMM []int

	stackOffset int
	maxOffset   int
}

// New builds an allocator with the full GPR pool (the 9 registers of
// GPRPool: RSP, RBP, RCX, RSI, R10, R11 and R15 are kept out of it, see
// regs.go) and the XMM pool.
func New() *Allocator {
	a := &Allocator{}
	a.freeGPR = append(a.freeGPR, GPRPool...)
	a.freeXMM = append(a.freeXMM, XMMPool...)
	return a
}

// Next returns the first free location for a value of the given kind
// (float selects the XMM pool), allocating a new spill slot if the pool is
// exhausted.
func (a *Allocator) Next(isFloat bool) Location {
	if isFloat {
		if len(a.freeXMM) > 0 {
			reg := a.freeXMM[len(a.freeXMM)-1]
			a.freeXMM = a.freeXMM[:len(a.freeXMM)-1]
			return Location{Kind: LocXMM, Reg: reg, IsFloat: true}
		}
	} else {
		if len(a.freeGPR) > 0 {
			reg := a.freeGPR[len(a.freeGPR)-1]
			a.freeGPR = a.freeGPR[:len(a.freeGPR)-1]
			return Location{Kind: LocGPR, Reg: reg}
		}
	}
	return a.newSpill(isFloat)
}

func (a *Allocator) newSpill(isFloat bool) Location {
	off := a.stackOffset
	a.stackOffset += 8
	if a.stackOffset > a.maxOffset {
		a.maxOffset = a.stackOffset
	}
	return Location{Kind: LocStack, Offset: off, IsFloat: isFloat}
}

// MaxSpillBytes is the largest stack-offset footprint reached. The
// emitter does not consult it: its prologue reserves the fixed frameSize.
func (a *Allocator) MaxSpillBytes() int { return a.maxOffset }

// Drop releases loc back to its pool (a no-op for spill slots — spill
// space is sized once for the whole function rather than individually
// freed, matching original_source's treatment of stack_offset as a
// monotonic high-water mark).
func (a *Allocator) Drop(loc Location) {
	switch loc.Kind {
	case LocGPR:
		a.freeGPR = append(a.freeGPR, loc.Reg)
	case LocXMM:
		a.freeXMM = append(a.freeXMM, loc.Reg)
	}
}
