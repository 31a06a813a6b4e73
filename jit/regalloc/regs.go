package regalloc

import "github.com/twitchyliquid64/golang-asm/obj/x86"

// GPRPool is the fixed pool of general-purpose registers the allocator
// hands out, grounded on original_source's X86Register enum. RSP stays
// reserved for the stack pointer, RBP holds the locals base
// (LocalBaseReg below) and R15 is reserved as the linear-memory base
// register (§4.3 "Memory base register"), so none of them appears here.
// R10/R11 are also excluded: they are TempReg/TempReg2 below, and
// arithmetic templates load directly into them, so handing them out as
// operand-stack homes would let a template clobber a live value sitting
// in its own scratch register. RCX is excluded for the same reason (the
// shift/rotate templates route their count through it, and the
// memory.grow syscall clobbers it), and RSI because it carries the
// caller's result pointer until the epilogue writes through it.
var GPRPool = []int{
	x86.REG_AX,
	x86.REG_BX,
	x86.REG_DX,
	x86.REG_DI,
	x86.REG_R8,
	x86.REG_R9,
	x86.REG_R12,
	x86.REG_R13,
	x86.REG_R14,
}

// XMMPool is the fixed pool of XMM registers used for f64 values.
var XMMPool = []int{
	x86.REG_X0,
	x86.REG_X1,
	x86.REG_X2,
	x86.REG_X3,
	x86.REG_X4,
	x86.REG_X5,
	x86.REG_X6,
	x86.REG_X7,
}

// MemBaseReg is the register permanently dedicated to holding the base
// address of the mmap'd linear memory arena (§4.3).
const MemBaseReg = x86.REG_R15

// LocalBaseReg holds the pointer to the current call's locals array
// (REG_LOCAL_BASE in original_source's mod.rs); local.get/set/tee always
// address through it at a fixed 8-byte stride.
const LocalBaseReg = x86.REG_BP

// TempReg and TempReg2 are the two fixed scratch GPRs arithmetic templates
// load their operands into before computing and writing back (§4.2
// "Arithmetic emits ... load the two operands ... into two fixed scratch
// registers"), grounded on original_source's REG_TEMP/REG_TEMP2. R10/R11
// are reserved out of GPRPool above specifically so these never alias a
// live operand-stack value.
const (
	TempReg  = x86.REG_R10
	TempReg2 = x86.REG_R11
)

// TempFPReg and TempFPReg2 are the floating-point equivalents of
// TempReg/TempReg2, used by f64 arithmetic templates.
const (
	TempFPReg  = x86.REG_X14
	TempFPReg2 = x86.REG_X15
)
