package jit

import (
	"fmt"
	"math"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"wasmvm/jit/regalloc"
	"wasmvm/wasm"
)

// loadI32 emits a 32-bit move of loc's value into dstReg, regardless of
// whether loc is register- or stack-resident. Every i32 arithmetic op in
// this file operates through 32-bit (*L) instructions exclusively, so
// the always-zero-extend-on-write rule of x86-64 keeps every derived
// value's upper 32 bits clean no matter how the operand it came from was
// originally produced (a sign-extended immediate, a zero-extending load).
func (c *compiler) loadI32(loc regalloc.Location, dstReg int) {
	p := c.newProg()
	p.As = x86.AMOVL
	if loc.Kind == regalloc.LocStack {
		p.From.Type = obj.TYPE_MEM
		p.From.Reg = x86.REG_SP
		p.From.Offset = int64(loc.Offset)
	} else {
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(loc.Reg)
	}
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(dstReg)
	c.add(p)
}

// loadF64 is loadI32's float counterpart, always through MOVSD.
func (c *compiler) loadF64(loc regalloc.Location, dstReg int) {
	p := c.newProg()
	p.As = x86.AMOVSD
	if loc.Kind == regalloc.LocStack {
		p.From.Type = obj.TYPE_MEM
		p.From.Reg = x86.REG_SP
		p.From.Offset = int64(loc.Offset)
	} else {
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(loc.Reg)
	}
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(dstReg)
	c.add(p)
}

// popOperands pops a then b (b is the top of the virtual stack: WASM
// evaluates the left operand first, so it's deeper), dropping whichever
// locations were register-resident.
func (c *compiler) popOperands() (a, b regalloc.Location) {
	b = c.pop()
	a = c.pop()
	return a, b
}

func (c *compiler) dropIfReg(loc regalloc.Location) {
	if loc.Kind != regalloc.LocStack {
		c.alloc.Drop(loc)
	}
}

// pushResultI32 hands the caller a fresh i32 location loaded with srcReg.
// The fresh location may itself be a spill slot if the pool is exhausted
// (§4.2 "if the pool is exhausted, a new spill slot is allocated"), so the
// value is written through emitStoreStack rather than assumed to be a
// register move.
func (c *compiler) pushResultI32(srcReg int) {
	loc := c.alloc.Next(false)
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(srcReg, loc, false)
	} else {
		c.emitMovRegReg(srcReg, loc.Reg, false)
	}
	c.push(loc)
}

func (c *compiler) pushResultF64(srcReg int) {
	loc := c.alloc.Next(true)
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(srcReg, loc, true)
	} else {
		c.emitMovRegReg(srcReg, loc.Reg, true)
	}
	c.push(loc)
}

// cmpL emits `CMPL left, right` (flags = left - right, per this engine's
// established From/To convention — see emitMemoryGrow's delta<0 check).
func (c *compiler) cmpL(left, right int) {
	p := c.newProg()
	p.As = x86.ACMPL
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(left)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(right)
	c.add(p)
}

func (c *compiler) cmpLConst(left int, right int32) {
	p := c.newProg()
	p.As = x86.ACMPL
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(left)
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = int64(right)
	c.add(p)
}

// setccAndMask emits `SETcc dst; ANDQ $1, dst`, the pattern used to
// collapse a condition-code flag into a clean i32 0/1, grounded on the
// wazero JIT's moveConditionalToGPRegister.
func (c *compiler) setccAndMask(as obj.As, dst int) {
	set := c.newProg()
	set.As = as
	set.To.Type = obj.TYPE_REG
	set.To.Reg = int16(dst)
	c.add(set)

	and := c.newProg()
	and.As = x86.AANDQ
	and.From.Type = obj.TYPE_CONST
	and.From.Offset = 0x1
	and.To.Type = obj.TYPE_REG
	and.To.Reg = int16(dst)
	c.add(and)
}

func (c *compiler) jmpProg() *obj.Prog {
	p := c.newProg()
	p.As = obj.AJMP
	p.To.Type = obj.TYPE_BRANCH
	return p
}

func (c *compiler) nopLabel() *obj.Prog {
	p := c.newProg()
	p.As = obj.ANOP
	c.add(p)
	return p
}

// emitI32Unop implements §4.2's unary templates: eqz/clz/ctz/popcnt and
// the sign-extensions operate entirely within a 32-bit register; the two
// truncating conversions bounds-check the source float before
// truncating, trapping exactly where interp.truncF64ToI32 would error.
func (c *compiler) emitI32Unop(kind wasm.I32UnopKind) {
	switch kind {
	case wasm.I32TruncF64S, wasm.I32TruncF64U:
		a := c.pop()
		c.emitTruncF64ToI32(a, kind == wasm.I32TruncF64S)
		c.dropIfReg(a)
		return
	case wasm.F64ConvertI32S, wasm.F64ConvertI32U:
		a := c.pop()
		c.loadI32(a, regalloc.TempReg)
		c.dropIfReg(a)
		if kind == wasm.F64ConvertI32U {
			// loadI32 already zero-extended the 32-bit pattern into the
			// full 64-bit register (MOVL's architectural guarantee), so a
			// plain 64-bit signed conversion reads it as the large
			// unsigned value WASM intends.
			cvt := c.newProg()
			cvt.As = x86.ACVTSQ2SD
			cvt.From.Type = obj.TYPE_REG
			cvt.From.Reg = int16(regalloc.TempReg)
			cvt.To.Type = obj.TYPE_REG
			cvt.To.Reg = int16(regalloc.TempFPReg)
			c.add(cvt)
		} else {
			cvt := c.newProg()
			cvt.As = x86.ACVTSL2SD
			cvt.From.Type = obj.TYPE_REG
			cvt.From.Reg = int16(regalloc.TempReg)
			cvt.To.Type = obj.TYPE_REG
			cvt.To.Reg = int16(regalloc.TempFPReg)
			c.add(cvt)
		}
		c.pushResultF64(regalloc.TempFPReg)
		return
	}

	a := c.pop()
	c.loadI32(a, regalloc.TempReg)
	c.dropIfReg(a)

	switch kind {
	case wasm.I32Eqz:
		c.cmpLConst(regalloc.TempReg, 0)
		c.setccAndMask(x86.ASETEQ, regalloc.TempReg)
	case wasm.I32Clz:
		p := c.newProg()
		p.As = x86.ALZCNTL
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	case wasm.I32Ctz:
		p := c.newProg()
		p.As = x86.ATZCNTL
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	case wasm.I32Popcnt:
		p := c.newProg()
		p.As = x86.APOPCNTL
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	case wasm.I32Extend8S:
		p := c.newProg()
		p.As = x86.AMOVBLSX
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	case wasm.I32Extend16S:
		p := c.newProg()
		p.As = x86.AMOVWLSX
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	}
	c.pushResultI32(regalloc.TempReg)
}

// emitTruncF64ToI32 bounds-checks the source float against the target
// range and traps outside it (or on NaN/Inf), mirroring
// interp.truncF64ToI32's trap conditions, then truncates via CVTTSD2SQ
// (the 64-bit form, wide enough to hold either range without overflow
// ambiguity) and keeps the low 32 bits.
func (c *compiler) emitTruncF64ToI32(a regalloc.Location, signed bool) {
	c.loadF64(a, regalloc.TempFPReg)

	// NaN check: an operand compared against itself sets the parity flag
	// only when unordered.
	ucom := c.newProg()
	ucom.As = x86.AUCOMISD
	ucom.From.Type = obj.TYPE_REG
	ucom.From.Reg = int16(regalloc.TempFPReg)
	ucom.To.Type = obj.TYPE_REG
	ucom.To.Reg = int16(regalloc.TempFPReg)
	c.add(ucom)
	trapNaN := c.newProg()
	trapNaN.As = x86.AJPS
	trapNaN.To.Type = obj.TYPE_BRANCH
	c.add(trapNaN)

	var lo, hi float64
	if signed {
		lo, hi = math.MinInt32-1, math.MaxInt32+1
	} else {
		lo, hi = -1, math.MaxUint32+1
	}
	c.loadF64Imm(lo, regalloc.TempFPReg2)
	cmpLo := c.newProg()
	cmpLo.As = x86.AUCOMISD
	cmpLo.From.Type = obj.TYPE_REG
	cmpLo.From.Reg = int16(regalloc.TempFPReg2)
	cmpLo.To.Type = obj.TYPE_REG
	cmpLo.To.Reg = int16(regalloc.TempFPReg)
	c.add(cmpLo)
	trapLo := c.newProg()
	trapLo.As = x86.AJLS
	trapLo.To.Type = obj.TYPE_BRANCH
	c.add(trapLo)

	c.loadF64Imm(hi, regalloc.TempFPReg2)
	cmpHi := c.newProg()
	cmpHi.As = x86.AUCOMISD
	cmpHi.From.Type = obj.TYPE_REG
	cmpHi.From.Reg = int16(regalloc.TempFPReg)
	cmpHi.To.Type = obj.TYPE_REG
	cmpHi.To.Reg = int16(regalloc.TempFPReg2)
	c.add(cmpHi)
	trapHi := c.newProg()
	trapHi.As = x86.AJLS
	trapHi.To.Type = obj.TYPE_BRANCH
	c.add(trapHi)

	okJmp := c.jmpProg()
	c.add(okJmp)

	trap := c.nopLabel()
	trapNaN.To.SetTarget(trap)
	trapLo.To.SetTarget(trap)
	trapHi.To.SetTarget(trap)
	c.emitTrapJump()

	ok := c.nopLabel()
	okJmp.To.SetTarget(ok)

	cvt := c.newProg()
	cvt.As = x86.ACVTTSD2SQ
	cvt.From.Type = obj.TYPE_REG
	cvt.From.Reg = int16(regalloc.TempFPReg)
	cvt.To.Type = obj.TYPE_REG
	cvt.To.Reg = int16(regalloc.TempReg)
	c.add(cvt)

	c.pushResultI32(regalloc.TempReg)
}

// loadF64Imm bakes v's bit pattern through a scratch GPR into xmmReg,
// the same trick emitF64Const uses.
func (c *compiler) loadF64Imm(v float64, xmmReg int) {
	bits := math.Float64bits(v)
	movImm := c.newProg()
	movImm.As = x86.AMOVQ
	movImm.From.Type = obj.TYPE_CONST
	movImm.From.Offset = int64(bits)
	movImm.To.Type = obj.TYPE_REG
	movImm.To.Reg = int16(regalloc.TempReg)
	c.add(movImm)

	movq := c.newProg()
	movq.As = x86.AMOVQ
	movq.From.Type = obj.TYPE_REG
	movq.From.Reg = int16(regalloc.TempReg)
	movq.To.Type = obj.TYPE_REG
	movq.To.Reg = int16(xmmReg)
	c.add(movq)
}

var i32CmpSetcc = map[wasm.I32BinopKind]obj.As{
	wasm.I32Eq:  x86.ASETEQ,
	wasm.I32Ne:  x86.ASETNE,
	wasm.I32LtS: x86.ASETLT,
	wasm.I32LtU: x86.ASETCS,
	wasm.I32GtS: x86.ASETGT,
	wasm.I32GtU: x86.ASETHI,
	wasm.I32LeS: x86.ASETLE,
	wasm.I32LeU: x86.ASETLS,
	wasm.I32GeS: x86.ASETGE,
	wasm.I32GeU: x86.ASETCC,
}

// emitI32Binop implements §4.2's binary templates: operands load into
// TempReg/TempReg2, the op executes, and the result lands in a fresh
// location pushed in place of the two consumed ones. div_s/rem_s/div_u/
// rem_u carry the full safety sequence named in §4.2: a zero-divisor
// trap, the signed MinInt32/-1 overflow trap, and a save/restore of
// RAX/RDX around idiv/div since those are fixed by the architecture
// rather than chosen by the allocator.
func (c *compiler) emitI32Binop(kind wasm.I32BinopKind) error {
	if setcc, ok := i32CmpSetcc[kind]; ok {
		a, b := c.popOperands()
		c.loadI32(a, regalloc.TempReg)
		c.loadI32(b, regalloc.TempReg2)
		c.dropIfReg(a)
		c.dropIfReg(b)
		c.cmpL(regalloc.TempReg, regalloc.TempReg2)
		c.setccAndMask(setcc, regalloc.TempReg)
		c.pushResultI32(regalloc.TempReg)
		return nil
	}

	switch kind {
	case wasm.I32DivS, wasm.I32DivU, wasm.I32RemS, wasm.I32RemU:
		return c.emitI32DivRem(kind)
	}

	a, b := c.popOperands()
	c.loadI32(a, regalloc.TempReg)
	c.loadI32(b, regalloc.TempReg2)
	c.dropIfReg(a)
	c.dropIfReg(b)

	bin := func(as obj.As) {
		p := c.newProg()
		p.As = as
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempReg2)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	}
	shiftOrRotate := func(as obj.As) {
		// Shift/rotate counts must sit in CL; TempReg2 is R11, so route
		// the masked count through CX.
		mov := c.newProg()
		mov.As = x86.AMOVL
		mov.From.Type = obj.TYPE_REG
		mov.From.Reg = int16(regalloc.TempReg2)
		mov.To.Type = obj.TYPE_REG
		mov.To.Reg = x86.REG_CX
		c.add(mov)
		and := c.newProg()
		and.As = x86.AANDL
		and.From.Type = obj.TYPE_CONST
		and.From.Offset = 0x1f
		and.To.Type = obj.TYPE_REG
		and.To.Reg = x86.REG_CX
		c.add(and)
		p := c.newProg()
		p.As = as
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_CX
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempReg)
		c.add(p)
	}

	switch kind {
	case wasm.I32Add:
		bin(x86.AADDL)
	case wasm.I32Sub:
		bin(x86.ASUBL)
	case wasm.I32Mul:
		bin(x86.AIMULL)
	case wasm.I32And:
		bin(x86.AANDL)
	case wasm.I32Or:
		bin(x86.AORL)
	case wasm.I32Xor:
		bin(x86.AXORL)
	case wasm.I32Shl:
		shiftOrRotate(x86.ASHLL)
	case wasm.I32ShrS:
		shiftOrRotate(x86.ASARL)
	case wasm.I32ShrU:
		shiftOrRotate(x86.ASHRL)
	case wasm.I32Rotl:
		shiftOrRotate(x86.AROLL)
	case wasm.I32Rotr:
		shiftOrRotate(x86.ARORL)
	default:
		return fmt.Errorf("i32 binop %d: %w", kind, errJITUnsupported)
	}
	c.pushResultI32(regalloc.TempReg)
	return nil
}

// emitI32DivRem implements the idiv/div safety sequence. RAX/RDX are
// saved and restored around the instruction because they are fixed by
// the hardware's division encoding rather than available to the
// allocator, and may currently hold some other live stack value.
func (c *compiler) emitI32DivRem(kind wasm.I32BinopKind) error {
	signed := kind == wasm.I32DivS || kind == wasm.I32RemS
	isRem := kind == wasm.I32RemS || kind == wasm.I32RemU

	a, b := c.popOperands()
	c.loadI32(a, regalloc.TempReg)
	c.loadI32(b, regalloc.TempReg2)
	c.dropIfReg(a)
	c.dropIfReg(b)

	c.cmpLConst(regalloc.TempReg2, 0)
	trapZero := c.newProg()
	trapZero.As = x86.AJEQ
	trapZero.To.Type = obj.TYPE_BRANCH
	c.add(trapZero)

	var trapOverflow *obj.Prog
	if signed {
		c.cmpLConst(regalloc.TempReg, math.MinInt32)
		skipOverflow := c.newProg()
		skipOverflow.As = x86.AJNE
		skipOverflow.To.Type = obj.TYPE_BRANCH
		c.add(skipOverflow)
		c.cmpLConst(regalloc.TempReg2, -1)
		trapOverflow = c.newProg()
		trapOverflow.As = x86.AJEQ
		trapOverflow.To.Type = obj.TYPE_BRANCH
		c.add(trapOverflow)
		skipOverflowLabel := c.nopLabel()
		skipOverflow.To.SetTarget(skipOverflowLabel)
	}

	okJmp := c.jmpProg()
	c.add(okJmp)

	trapLabel := c.nopLabel()
	trapZero.To.SetTarget(trapLabel)
	if trapOverflow != nil {
		trapOverflow.To.SetTarget(trapLabel)
	}
	c.emitTrapJump()

	ok := c.nopLabel()
	okJmp.To.SetTarget(ok)

	for _, reg := range []int{x86.REG_AX, x86.REG_DX} {
		push := c.newProg()
		push.As = x86.APUSHQ
		push.From.Type = obj.TYPE_REG
		push.From.Reg = int16(reg)
		c.add(push)
	}

	movDividend := c.newProg()
	movDividend.As = x86.AMOVL
	movDividend.From.Type = obj.TYPE_REG
	movDividend.From.Reg = int16(regalloc.TempReg)
	movDividend.To.Type = obj.TYPE_REG
	movDividend.To.Reg = x86.REG_AX
	c.add(movDividend)

	if signed {
		cdq := c.newProg()
		cdq.As = x86.ACDQ
		c.add(cdq)
		idiv := c.newProg()
		idiv.As = x86.AIDIVL
		idiv.From.Type = obj.TYPE_REG
		idiv.From.Reg = int16(regalloc.TempReg2)
		c.add(idiv)
	} else {
		zero := c.newProg()
		zero.As = x86.AMOVL
		zero.From.Type = obj.TYPE_CONST
		zero.From.Offset = 0
		zero.To.Type = obj.TYPE_REG
		zero.To.Reg = x86.REG_DX
		c.add(zero)
		div := c.newProg()
		div.As = x86.ADIVL
		div.From.Type = obj.TYPE_REG
		div.From.Reg = int16(regalloc.TempReg2)
		c.add(div)
	}

	result := x86.REG_AX
	if isRem {
		result = x86.REG_DX
	}
	saveResult := c.newProg()
	saveResult.As = x86.AMOVL
	saveResult.From.Type = obj.TYPE_REG
	saveResult.From.Reg = int16(result)
	saveResult.To.Type = obj.TYPE_REG
	saveResult.To.Reg = int16(regalloc.TempReg)
	c.add(saveResult)

	for _, reg := range []int{x86.REG_DX, x86.REG_AX} {
		pop := c.newProg()
		pop.As = x86.APOPQ
		pop.To.Type = obj.TYPE_REG
		pop.To.Reg = int16(reg)
		c.add(pop)
	}

	c.pushResultI32(regalloc.TempReg)
	return nil
}

// emitF64Unop implements §4.2's unary float templates through SSE2
// instructions operating on TempFPReg.
func (c *compiler) emitF64Unop(kind wasm.F64UnopKind) {
	a := c.pop()
	c.loadF64(a, regalloc.TempFPReg)
	c.dropIfReg(a)

	switch kind {
	case wasm.F64Neg:
		c.loadF64Imm(math.Copysign(0, -1), regalloc.TempFPReg2)
		p := c.newProg()
		p.As = x86.AXORPD
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempFPReg2)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempFPReg)
		c.add(p)
	case wasm.F64Abs:
		mask := math.Float64frombits(^uint64(0) >> 1)
		c.loadF64Imm(mask, regalloc.TempFPReg2)
		p := c.newProg()
		p.As = x86.AANDPD
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempFPReg2)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempFPReg)
		c.add(p)
	case wasm.F64Sqrt:
		p := c.newProg()
		p.As = x86.ASQRTSD
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempFPReg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempFPReg)
		c.add(p)
	case wasm.F64Ceil:
		c.emitRoundSD(2) // round up (ROUNDSD immediate: 0=nearest,1=down,2=up,3=trunc)
	case wasm.F64Floor:
		c.emitRoundSD(1)
	case wasm.F64Trunc:
		c.emitRoundSD(3)
	case wasm.F64Nearest:
		c.emitRoundSD(0) // round to nearest, ties to even
	}
	c.pushResultF64(regalloc.TempFPReg)
}

// emitRoundSD emits ROUNDSD with the given rounding-mode immediate (SSE4.1),
// mirroring math.Ceil/Floor/RoundToEven/Trunc's hardware equivalents.
func (c *compiler) emitRoundSD(mode int64) {
	p := c.newProg()
	p.As = x86.AROUNDSD
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = mode
	p.RestArgs = append(p.RestArgs, obj.Addr{Type: obj.TYPE_REG, Reg: int16(regalloc.TempFPReg)})
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(regalloc.TempFPReg)
	c.add(p)
}

var f64CmpSetcc = map[wasm.F64BinopKind]obj.As{
	wasm.F64Eq: x86.ASETEQ,
	wasm.F64Ne: x86.ASETNE,
	wasm.F64Lt: x86.ASETCS,
	wasm.F64Gt: x86.ASETHI,
	wasm.F64Le: x86.ASETLS,
	wasm.F64Ge: x86.ASETCC,
}

// emitF64Binop implements §4.2's binary float templates. Comparisons use
// UCOMISD's unsigned-style condition codes (the natural hardware mapping
// for an unordered-aware compare) and treat an unordered (NaN) result as
// false, except for Ne where unordered must be true — mirroring
// interp.evalF64Binop's explicit NaN handling for eq/ne and min/max.
func (c *compiler) emitF64Binop(kind wasm.F64BinopKind) {
	a, b := c.popOperands()
	c.loadF64(a, regalloc.TempFPReg)
	c.loadF64(b, regalloc.TempFPReg2)
	c.dropIfReg(a)
	c.dropIfReg(b)

	if setcc, ok := f64CmpSetcc[kind]; ok {
		ucom := c.newProg()
		ucom.As = x86.AUCOMISD
		ucom.From.Type = obj.TYPE_REG
		ucom.From.Reg = int16(regalloc.TempFPReg2)
		ucom.To.Type = obj.TYPE_REG
		ucom.To.Reg = int16(regalloc.TempFPReg)
		c.add(ucom)

		// The parity flag (unordered/NaN) must be tested immediately
		// after UCOMISD, before SETcc+AND below touches any flags.
		unordered := c.newProg()
		unordered.As = x86.AJPS
		unordered.To.Type = obj.TYPE_BRANCH
		c.add(unordered)

		c.setccAndMask(setcc, regalloc.TempReg)
		done := c.jmpProg()
		c.add(done)

		forced := c.nopLabel()
		unordered.To.SetTarget(forced)
		forcedVal := int64(0)
		if kind == wasm.F64Ne {
			forcedVal = 1 // NaN compared with != is true, unlike every other comparison.
		}
		mov := c.newProg()
		mov.As = x86.AMOVQ
		mov.From.Type = obj.TYPE_CONST
		mov.From.Offset = forcedVal
		mov.To.Type = obj.TYPE_REG
		mov.To.Reg = int16(regalloc.TempReg)
		c.add(mov)

		doneLabel := c.nopLabel()
		done.To.SetTarget(doneLabel)

		c.pushResultI32(regalloc.TempReg)
		return
	}

	bin := func(as obj.As) {
		p := c.newProg()
		p.As = as
		p.From.Type = obj.TYPE_REG
		p.From.Reg = int16(regalloc.TempFPReg2)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = int16(regalloc.TempFPReg)
		c.add(p)
	}

	switch kind {
	case wasm.F64Add:
		bin(x86.AADDSD)
	case wasm.F64Sub:
		bin(x86.ASUBSD)
	case wasm.F64Mul:
		bin(x86.AMULSD)
	case wasm.F64Div:
		// The source's unconditional-+Inf-on-zero-divisor behavior (no
		// guard here) matches hardware IEEE-754 division directly, which
		// is the same behavior the SPEC_FULL.md §9 decision keeps.
		bin(x86.ADIVSD)
	case wasm.F64Min:
		c.emitF64MinMax(true)
		return
	case wasm.F64Max:
		c.emitF64MinMax(false)
		return
	}
	c.pushResultF64(regalloc.TempFPReg)
}

// emitF64MinMax implements NaN-propagating min/max: MINSD/MAXSD alone
// are not commutative on NaN inputs, so a preceding UCOMISD + NaN branch
// is used to match interp.evalF64Binop's explicit math.IsNaN checks.
func (c *compiler) emitF64MinMax(isMin bool) {
	ucom := c.newProg()
	ucom.As = x86.AUCOMISD
	ucom.From.Type = obj.TYPE_REG
	ucom.From.Reg = int16(regalloc.TempFPReg2)
	ucom.To.Type = obj.TYPE_REG
	ucom.To.Reg = int16(regalloc.TempFPReg)
	c.add(ucom)
	unordered := c.newProg()
	unordered.As = x86.AJPS
	unordered.To.Type = obj.TYPE_BRANCH
	c.add(unordered)

	p := c.newProg()
	if isMin {
		p.As = x86.AMINSD
	} else {
		p.As = x86.AMAXSD
	}
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(regalloc.TempFPReg2)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(regalloc.TempFPReg)
	c.add(p)
	done := c.jmpProg()
	c.add(done)

	nanLabel := c.nopLabel()
	unordered.To.SetTarget(nanLabel)
	c.loadF64Imm(math.NaN(), regalloc.TempFPReg)

	doneLabel := c.nopLabel()
	done.To.SetTarget(doneLabel)

	c.pushResultF64(regalloc.TempFPReg)
}
