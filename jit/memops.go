package jit

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"wasmvm/jit/regalloc"
	"wasmvm/wasm"
)

// effectiveAddrReg computes base + memarg-offset + the linear-memory base
// register into TempReg2 and returns it, per §4.2 "Loads and stores
// compute effective_addr = base + offset, add the linear-memory base
// register". The base is a WASM i32 treated as unsigned, so it is loaded
// with a 32-bit move (which x86-64 zero-extends into the full 64-bit
// register) before the two adds.
func (c *compiler) effectiveAddrReg(baseLoc regalloc.Location, offset uint32) int {
	tmp := regalloc.TempReg2
	if baseLoc.Kind == regalloc.LocStack {
		mov := c.newProg()
		mov.As = x86.AMOVL
		mov.From.Type = obj.TYPE_MEM
		mov.From.Reg = x86.REG_SP
		mov.From.Offset = int64(baseLoc.Offset)
		mov.To.Type = obj.TYPE_REG
		mov.To.Reg = int16(tmp)
		c.add(mov)
	} else {
		mov := c.newProg()
		mov.As = x86.AMOVL
		mov.From.Type = obj.TYPE_REG
		mov.From.Reg = int16(baseLoc.Reg)
		mov.To.Type = obj.TYPE_REG
		mov.To.Reg = int16(tmp)
		c.add(mov)
	}
	if offset != 0 {
		add := c.newProg()
		add.As = x86.AADDQ
		add.From.Type = obj.TYPE_CONST
		add.From.Offset = int64(offset)
		add.To.Type = obj.TYPE_REG
		add.To.Reg = int16(tmp)
		c.add(add)
	}
	addBase := c.newProg()
	addBase.As = x86.AADDQ
	addBase.From.Type = obj.TYPE_REG
	addBase.From.Reg = int16(regalloc.MemBaseReg)
	addBase.To.Type = obj.TYPE_REG
	addBase.To.Reg = int16(tmp)
	c.add(addBase)
	return tmp
}

func (c *compiler) emitLoad(op wasm.Op, mem wasm.MemArg) {
	base := c.pop()
	addrReg := c.effectiveAddrReg(base, mem.Offset)
	if base.Kind != regalloc.LocStack {
		c.alloc.Drop(base)
	}

	isFloat := op == wasm.OpF64Load
	dst := c.alloc.Next(isFloat)
	tmp := regalloc.TempReg
	if isFloat {
		tmp = regalloc.TempFPReg
	}

	load := c.newProg()
	load.From.Type = obj.TYPE_MEM
	load.From.Reg = int16(addrReg)
	load.To.Type = obj.TYPE_REG
	load.To.Reg = int16(tmp)

	switch op {
	case wasm.OpI32Load:
		load.As = x86.AMOVL
	case wasm.OpI32Load8S:
		load.As = x86.AMOVBLSX
	case wasm.OpI32Load8U:
		load.As = x86.AMOVBLZX
	case wasm.OpI32Load16S:
		load.As = x86.AMOVWLSX
	case wasm.OpI32Load16U:
		load.As = x86.AMOVWLZX
	case wasm.OpF64Load:
		load.As = x86.AMOVSD
	}
	c.add(load)
	if dst.Kind == regalloc.LocStack {
		c.emitStoreStack(tmp, dst, isFloat)
	} else {
		c.emitMovRegReg(tmp, dst.Reg, isFloat)
	}
	c.push(dst)
}

func (c *compiler) emitStore(op wasm.Op, mem wasm.MemArg) {
	val := c.pop()
	base := c.pop()
	addrReg := c.effectiveAddrReg(base, mem.Offset)
	if base.Kind != regalloc.LocStack {
		c.alloc.Drop(base)
	}

	isFloat := op == wasm.OpF64Store
	srcReg := c.materialize(val, isFloat)

	store := c.newProg()
	store.From.Type = obj.TYPE_REG
	store.From.Reg = int16(srcReg)
	store.To.Type = obj.TYPE_MEM
	store.To.Reg = int16(addrReg)

	switch op {
	case wasm.OpI32Store:
		store.As = x86.AMOVL
	case wasm.OpI32Store8:
		store.As = x86.AMOVB
	case wasm.OpI32Store16:
		store.As = x86.AMOVW
	case wasm.OpF64Store:
		store.As = x86.AMOVSD
	}
	c.add(store)
	if val.Kind != regalloc.LocStack {
		c.alloc.Drop(val)
	}
}

// emitMemorySize reads the page counter baked as an absolute address
// (§4.2 "memory.size reads the page counter").
func (c *compiler) emitMemorySize() {
	dst := c.alloc.Next(false)
	addr := c.newProg()
	addr.As = x86.AMOVQ
	addr.From.Type = obj.TYPE_CONST
	addr.From.Offset = int64(c.mem.sizeAddr())
	addr.To.Type = obj.TYPE_REG
	addr.To.Reg = int16(regalloc.TempReg)
	c.add(addr)

	load := c.newProg()
	load.As = x86.AMOVL
	load.From.Type = obj.TYPE_MEM
	load.From.Reg = int16(regalloc.TempReg)
	load.To.Type = obj.TYPE_REG
	load.To.Reg = int16(regalloc.TempReg)
	c.add(load)
	if dst.Kind == regalloc.LocStack {
		c.emitStoreStack(regalloc.TempReg, dst, false)
	} else {
		c.emitMovRegReg(regalloc.TempReg, dst.Reg, false)
	}
	c.push(dst)
}

// emitMemoryGrow implements §4.3's grow sequence directly in the emitted
// function, mirroring original_source's JitLinearMemory::grow: record the
// old size into a fresh spill slot (to avoid aliasing with the delta
// argument, per spec), compute and bounds-check the new size, store it,
// and invoke mprotect via a raw syscall. The signed npages<0 check is
// corrected here per the SPEC_FULL.md §9 decision (a genuine `cmp;jl`
// rather than the source's effectively-unreachable unsigned path).
func (c *compiler) emitMemoryGrow() {
	delta := c.pop()

	// delta's value is read directly from its own location (register or
	// spill slot) for both the sign check and the later add, rather than
	// materialized into a scratch register up front: addrReg below is
	// TempReg, and if delta had been spill-resident, materialize would
	// have loaded it into that very same TempReg, which loadAddr would
	// then silently clobber before the add ever ran.
	cmp := c.newProg()
	cmp.As = x86.ACMPQ
	if delta.Kind == regalloc.LocStack {
		cmp.From.Type = obj.TYPE_MEM
		cmp.From.Reg = x86.REG_SP
		cmp.From.Offset = int64(delta.Offset)
	} else {
		cmp.From.Type = obj.TYPE_REG
		cmp.From.Reg = int16(delta.Reg)
	}
	cmp.To.Type = obj.TYPE_CONST
	cmp.To.Offset = 0
	c.add(cmp)
	jlt := c.newProg()
	jlt.As = x86.AJLT
	jlt.To.Type = obj.TYPE_BRANCH
	c.add(jlt)

	oldSlot := c.alloc.Next(false) // the fresh location holding the old size
	addrReg := regalloc.TempReg
	loadAddr := c.newProg()
	loadAddr.As = x86.AMOVQ
	loadAddr.From.Type = obj.TYPE_CONST
	loadAddr.From.Offset = int64(c.mem.sizeAddr())
	loadAddr.To.Type = obj.TYPE_REG
	loadAddr.To.Reg = int16(addrReg)
	c.add(loadAddr)

	loadOld := c.newProg()
	loadOld.As = x86.AMOVQ
	loadOld.From.Type = obj.TYPE_MEM
	loadOld.From.Reg = int16(addrReg)
	loadOld.To.Type = obj.TYPE_REG
	loadOld.To.Reg = int16(regalloc.TempReg2)
	c.add(loadOld)
	c.storeGrowResult(regalloc.TempReg2, oldSlot)

	newVal := c.newProg()
	newVal.As = x86.AADDQ
	if delta.Kind == regalloc.LocStack {
		newVal.From.Type = obj.TYPE_MEM
		newVal.From.Reg = x86.REG_SP
		newVal.From.Offset = int64(delta.Offset)
	} else {
		newVal.From.Type = obj.TYPE_REG
		newVal.From.Reg = int16(delta.Reg)
	}
	newVal.To.Type = obj.TYPE_REG
	newVal.To.Reg = int16(regalloc.TempReg2)
	c.add(newVal)
	c.dropIfReg(delta)

	limitCmp := c.newProg()
	limitCmp.As = x86.ACMPQ
	limitCmp.From.Type = obj.TYPE_REG
	limitCmp.From.Reg = int16(regalloc.TempReg2)
	limitCmp.To.Type = obj.TYPE_CONST
	limitCmp.To.Offset = c.mem.maxPages
	c.add(limitCmp)
	jgt := c.newProg()
	jgt.As = x86.AJGT
	jgt.To.Type = obj.TYPE_BRANCH
	c.add(jgt)

	storeNew := c.newProg()
	storeNew.As = x86.AMOVQ
	storeNew.From.Type = obj.TYPE_REG
	storeNew.From.Reg = int16(regalloc.TempReg2)
	storeNew.To.Type = obj.TYPE_MEM
	storeNew.To.Reg = int16(addrReg)
	c.add(storeNew)

	c.emitMprotectSyscall()

	end := c.newProg()
	end.As = obj.AJMP
	end.To.Type = obj.TYPE_BRANCH
	c.add(end)

	invalid := c.newProg()
	invalid.As = obj.ANOP
	c.add(invalid)
	jlt.To.SetTarget(invalid)
	jgt.To.SetTarget(invalid)
	negOne := c.newProg()
	negOne.As = x86.AMOVQ
	negOne.From.Type = obj.TYPE_CONST
	negOne.From.Offset = -1
	negOne.To.Type = obj.TYPE_REG
	negOne.To.Reg = int16(regalloc.TempReg2)
	c.add(negOne)
	c.storeGrowResult(regalloc.TempReg2, oldSlot)

	endLabel := c.newProg()
	endLabel.As = obj.ANOP
	c.add(endLabel)
	end.To.SetTarget(endLabel)

	c.push(oldSlot)
}

// storeGrowResult writes srcReg into loc, which oldSlot may have placed in
// a pool register or, if the allocator is under pressure, a spill slot —
// emitStoreStack only knows how to address the latter, so a register
// destination needs a plain register move instead.
func (c *compiler) storeGrowResult(srcReg int, loc regalloc.Location) {
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(srcReg, loc, false)
	} else {
		c.emitMovRegReg(srcReg, loc.Reg, false)
	}
}

// emitMprotectSyscall emits `mprotect(base, new_size_bytes, PROT_READ|PROT_WRITE)`
// as a raw syscall, exactly as original_source's grow() does, saving and
// restoring the registers it loads the syscall number and arguments into
// (RDI, RSI, RDX, RAX). RCX and R11, which the syscall instruction itself
// clobbers, are not saved; neither is in GPRPool.
func (c *compiler) emitMprotectSyscall() {
	for _, reg := range []int{x86.REG_DI, x86.REG_SI, x86.REG_DX, x86.REG_AX} {
		push := c.newProg()
		push.As = x86.APUSHQ
		push.From.Type = obj.TYPE_REG
		push.From.Reg = int16(reg)
		c.add(push)
	}

	movBase := c.newProg()
	movBase.As = x86.AMOVQ
	movBase.From.Type = obj.TYPE_REG
	movBase.From.Reg = int16(regalloc.MemBaseReg)
	movBase.To.Type = obj.TYPE_REG
	movBase.To.Reg = x86.REG_DI
	c.add(movBase)

	movSize := c.newProg()
	movSize.As = x86.AMOVQ
	movSize.From.Type = obj.TYPE_REG
	movSize.From.Reg = int16(regalloc.TempReg2)
	movSize.To.Type = obj.TYPE_REG
	movSize.To.Reg = x86.REG_SI
	c.add(movSize)

	shl := c.newProg()
	shl.As = x86.ASHLQ
	shl.From.Type = obj.TYPE_CONST
	shl.From.Offset = 16 // pages -> bytes: * 65536
	shl.To.Type = obj.TYPE_REG
	shl.To.Reg = x86.REG_SI
	c.add(shl)

	movProt := c.newProg()
	movProt.As = x86.AMOVQ
	movProt.From.Type = obj.TYPE_CONST
	movProt.From.Offset = 0x3 // PROT_READ | PROT_WRITE
	movProt.To.Type = obj.TYPE_REG
	movProt.To.Reg = x86.REG_DX
	c.add(movProt)

	movNr := c.newProg()
	movNr.As = x86.AMOVQ
	movNr.From.Type = obj.TYPE_CONST
	movNr.From.Offset = 10 // sys_mprotect on linux/amd64
	movNr.To.Type = obj.TYPE_REG
	movNr.To.Reg = x86.REG_AX
	c.add(movNr)

	sys := c.newProg()
	sys.As = x86.ASYSCALL
	c.add(sys)

	for _, reg := range []int{x86.REG_AX, x86.REG_DX, x86.REG_SI, x86.REG_DI} {
		pop := c.newProg()
		pop.As = x86.APOPQ
		pop.To.Type = obj.TYPE_REG
		pop.To.Reg = int16(reg)
		c.add(pop)
	}
}
