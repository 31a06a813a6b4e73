package jit

import (
	"fmt"
	"math"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"wasmvm/jit/regalloc"
	"wasmvm/wasm"
)

// canonicalAt is the fixed spill slot a value at virtual stack depth d
// lives in once canonicalized — a deterministic function of stack
// position rather than allocation order, so every edge into a control-flow
// join (loop back-edge, block/if exit) agrees on where its live values
// live without needing a snapshot/merge pass. This is the concrete
// rendition of the "canonicalization" decision in SPEC_FULL.md §9/§4.2.
// canonicalBaseOffset separates the canonical (control-flow-join) stack
// region from the allocator's own overflow-spill region below it, so the
// two independent offset counters never alias the same bytes. frameSize
// is the fixed stack-frame reservation the prologue/epilogue allocate —
// generous rather than precisely sized, since this engine does not track
// a function's exact maximum live-value count across every join point.
const (
	canonicalBaseOffset = 4096
	frameSize            = 8192
)

func canonicalAt(depth int, isFloat bool) regalloc.Location {
	return regalloc.Location{Kind: regalloc.LocStack, Offset: canonicalBaseOffset + depth*8, IsFloat: isFloat}
}

// canonicalizeAll spills every stack-resident value currently held in a
// register to its canonical slot, and returns the allocator's registers
// to the free pool. Called at every block/loop/if entry; `else` does not
// call it, since the stack below the if's results is already canonical.
func (c *compiler) canonicalizeAll() {
	for i, loc := range c.stack {
		want := canonicalAt(i, loc.IsFloat)
		if loc == want {
			continue
		}
		c.moveTo(loc, want)
		if loc.Kind != regalloc.LocStack {
			c.alloc.Drop(loc)
		}
		c.stack[i] = want
	}
}

// moveTo copies the value currently at src into dst, wherever each one
// lives (register or spill slot), via a scratch register when both ends
// are memory.
func (c *compiler) moveTo(src, dst regalloc.Location) {
	if src == dst {
		return
	}
	if dst.Kind == regalloc.LocStack {
		if src.Kind == regalloc.LocStack {
			tmp := regalloc.TempReg
			if src.IsFloat {
				tmp = regalloc.TempFPReg
			}
			c.emitLoadStack(src, tmp, src.IsFloat)
			c.emitStoreStack(tmp, dst, dst.IsFloat)
		} else {
			c.emitStoreStack(src.Reg, dst, dst.IsFloat)
		}
		return
	}
	if src.Kind == regalloc.LocStack {
		c.emitLoadStack(src, dst.Reg, dst.IsFloat)
	} else {
		c.emitMovRegReg(src.Reg, dst.Reg, dst.IsFloat)
	}
}

func (c *compiler) emitMovRegReg(src, dst int, isFloat bool) {
	if src == dst {
		return
	}
	p := c.newProg()
	if isFloat {
		p.As = x86.AMOVSD
	} else {
		p.As = x86.AMOVQ
	}
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(src)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(dst)
	c.add(p)
}

func (c *compiler) emitLoadStack(loc regalloc.Location, dstReg int, isFloat bool) {
	p := c.newProg()
	if isFloat {
		p.As = x86.AMOVSD
	} else {
		p.As = x86.AMOVQ
	}
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_SP
	p.From.Offset = int64(loc.Offset)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(dstReg)
	c.add(p)
}

func (c *compiler) emitStoreStack(srcReg int, loc regalloc.Location, isFloat bool) {
	p := c.newProg()
	if isFloat {
		p.As = x86.AMOVSD
	} else {
		p.As = x86.AMOVQ
	}
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(srcReg)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = x86.REG_SP
	p.To.Offset = int64(loc.Offset)
	c.add(p)
}

// materialize ensures loc's value sits in some register and returns which
// one — its own, if register-resident, or TempReg/TempFPReg loaded from
// its spill slot otherwise.
func (c *compiler) materialize(loc regalloc.Location, isFloat bool) int {
	if loc.Kind != regalloc.LocStack {
		return loc.Reg
	}
	tmp := regalloc.TempReg
	if isFloat {
		tmp = regalloc.TempFPReg
	}
	c.emitLoadStack(loc, tmp, isFloat)
	return tmp
}

func (c *compiler) emitInst(inst wasm.Instruction, pc int) error {
	sigs := c.module.Sigs
	switch inst.Op {
	case wasm.OpUnreachable:
		c.emitTrapJump()

	case wasm.OpNop:

	case wasm.OpBlock:
		c.canonicalizeAll()
		c.frames = append(c.frames, ctrlFrame{
			kind:                cfBlock,
			expectedStackHeight: len(c.stack) + inst.Block.Delta(sigs),
			numResults:          inst.Block.NumResults(sigs),
		})

	case wasm.OpLoop:
		c.canonicalizeAll()
		start := c.newProg()
		start.As = obj.ANOP
		c.add(start)
		c.frames = append(c.frames, ctrlFrame{
			kind:                cfLoop,
			expectedStackHeight: len(c.stack) + inst.Block.Delta(sigs),
			numResults:          inst.Block.NumResults(sigs),
			startLabel:          start,
		})

	case wasm.OpIf:
		cond := c.pop()
		reg := c.materialize(cond, false)
		if cond.Kind != regalloc.LocStack {
			c.alloc.Drop(cond)
		}
		cmp := c.newProg()
		cmp.As = x86.ACMPQ
		cmp.From.Type = obj.TYPE_REG
		cmp.From.Reg = int16(reg)
		cmp.To.Type = obj.TYPE_CONST
		cmp.To.Offset = 0
		c.add(cmp)

		// Canonicalize before the conditional skip, not after: both the
		// fall-through (true) path and the skip (false) target must see
		// the same canonical locations for every value still live across
		// the `if`. canonicalizeAll only ever emits MOV/MOVSD, which do
		// not touch flags, so the CMP above still holds by the time the
		// branch below reads it.
		c.canonicalizeAll()

		skip := c.newProg()
		skip.As = x86.AJEQ
		skip.To.Type = obj.TYPE_BRANCH
		c.add(skip)

		c.frames = append(c.frames, ctrlFrame{
			kind:                cfIf,
			expectedStackHeight: len(c.stack) + inst.Block.Delta(sigs),
			numResults:          inst.Block.NumResults(sigs),
			elseJump:            skip,
		})

	case wasm.OpElse:
		f := &c.frames[len(c.frames)-1]
		exit := c.newProg()
		exit.As = obj.AJMP
		exit.To.Type = obj.TYPE_BRANCH
		c.add(exit)
		f.pendingExits = append(f.pendingExits, exit)

		elseLabel := c.newProg()
		elseLabel.As = obj.ANOP
		c.add(elseLabel)
		f.elseJump.To.SetTarget(elseLabel)
		f.hasElse = true
		c.stack = c.stack[:f.expectedStackHeight-f.numResults]

	case wasm.OpEnd:
		f := c.frames[len(c.frames)-1]
		c.frames = c.frames[:len(c.frames)-1]
		if f.elseJump != nil && !f.hasElse {
			endLabelPlaceholder := c.newProg()
			endLabelPlaceholder.As = obj.ANOP
			c.add(endLabelPlaceholder)
			f.elseJump.To.SetTarget(endLabelPlaceholder)
		} else {
			end := c.newProg()
			end.As = obj.ANOP
			c.add(end)
		}
		for _, p := range f.pendingExits {
			// Target a fresh NOP emitted here, at this frame's end.
			p.To.SetTarget(c.lastProg())
		}

	case wasm.OpBr:
		c.emitBranch(inst.RelDepth, nil)

	case wasm.OpBrIf:
		cond := c.pop()
		reg := c.materialize(cond, false)
		if cond.Kind != regalloc.LocStack {
			c.alloc.Drop(cond)
		}
		cmp := c.newProg()
		cmp.As = x86.ACMPQ
		cmp.From.Type = obj.TYPE_REG
		cmp.From.Reg = int16(reg)
		cmp.To.Type = obj.TYPE_CONST
		cmp.To.Offset = 0
		c.add(cmp)
		c.emitBranch(inst.RelDepth, jneProg)

	case wasm.OpBrTable:
		idxLoc := c.pop()
		reg := c.materialize(idxLoc, false)
		if idxLoc.Kind != regalloc.LocStack {
			c.alloc.Drop(idxLoc)
		}
		for i, depth := range inst.BrTable {
			cmp := c.newProg()
			cmp.As = x86.ACMPQ
			cmp.From.Type = obj.TYPE_REG
			cmp.From.Reg = int16(reg)
			cmp.To.Type = obj.TYPE_CONST
			cmp.To.Offset = int64(i)
			c.add(cmp)
			c.emitBranch(depth, jeqProg)
		}
		c.emitBranch(inst.BrTableDefault, nil)

	case wasm.OpReturn:
		c.emitEpilogueJump()

	case wasm.OpCall, wasm.OpCallIndirect:
		// Calls are out of scope for the one-pass emitter: spec.md §4.2's
		// per-opcode templates never describe a call sequence, and a
		// host call (puti/putd/puts) would require native code to call
		// back into Go, which golang-asm-emitted machine code cannot do
		// without the engine's own calling convention (the limitation
		// wazero documents as general to pure-Go JIT engines). The
		// driver falls back to the interpreter for any module that
		// reaches this instruction.
		return fmt.Errorf("%s: %w", inst.Op, errJITUnsupported)

	case wasm.OpDrop:
		loc := c.pop()
		if loc.Kind != regalloc.LocStack {
			c.alloc.Drop(loc)
		}

	case wasm.OpSelect:
		c.emitSelect()

	case wasm.OpLocalGet:
		c.emitLocalGet(inst.Index)

	case wasm.OpLocalSet:
		c.emitLocalSet(inst.Index, true)

	case wasm.OpLocalTee:
		c.emitLocalSet(inst.Index, false)

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		return fmt.Errorf("%s: %w", inst.Op, errJITUnsupported)

	case wasm.OpI32Load, wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpF64Load:
		c.emitLoad(inst.Op, inst.Mem)

	case wasm.OpI32Store, wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpF64Store:
		c.emitStore(inst.Op, inst.Mem)

	case wasm.OpMemorySize:
		c.emitMemorySize()

	case wasm.OpMemoryGrow:
		c.emitMemoryGrow()

	case wasm.OpI32Const:
		c.emitI32Const(inst.I32Const)

	case wasm.OpF64Const:
		c.emitF64Const(inst.F64Const)

	case wasm.OpI32Unop:
		c.emitI32Unop(inst.I32Unop)

	case wasm.OpI32Binop:
		return c.emitI32Binop(inst.I32Binop)

	case wasm.OpF64Unop:
		c.emitF64Unop(inst.F64Unop)

	case wasm.OpF64Binop:
		c.emitF64Binop(inst.F64Binop)

	default:
		return fmt.Errorf("opcode %s: %w", inst.Op, errJITUnsupported)
	}
	return nil
}

// lastProg appends a fresh NOP and returns it, used to give pending exit
// jumps a concrete target at the current position.
func (c *compiler) lastProg() *obj.Prog {
	nop := c.newProg()
	nop.As = obj.ANOP
	c.add(nop)
	return nop
}

func jneProg(p *obj.Prog) { p.As = x86.AJNE }
func jeqProg(p *obj.Prog) { p.As = x86.AJEQ }

// emitBranch implements §4.2's control-flow jump: move the target's live
// results into their canonical slots, then jump (conditionally, if
// setCond is non-nil — used for br_if/br_table — or unconditionally for
// br) to the frame's start label (loop) or a pending exit patched at
// `end` (block/if).
func (c *compiler) emitBranch(depth uint32, setCond func(*obj.Prog)) {
	idx := len(c.frames) - 1 - int(depth)
	f := &c.frames[idx]

	nres := f.numResults
	srcDepth := len(c.stack) - nres
	dstDepth := f.expectedStackHeight - nres
	for i := 0; i < nres; i++ {
		src := c.stack[srcDepth+i]
		dst := canonicalAt(dstDepth+i, src.IsFloat)
		if src != dst {
			c.moveTo(src, dst)
		}
	}
	c.stack = c.stack[:dstDepth+nres]
	for i := 0; i < nres; i++ {
		c.stack[dstDepth+i] = canonicalAt(dstDepth+i, c.stack[dstDepth+i].IsFloat)
	}

	jmp := c.newProg()
	if setCond != nil {
		setCond(jmp)
	} else {
		jmp.As = obj.AJMP
	}
	jmp.To.Type = obj.TYPE_BRANCH
	c.add(jmp)

	if f.kind == cfLoop {
		jmp.To.SetTarget(f.startLabel)
	} else {
		f.pendingExits = append(f.pendingExits, jmp)
	}
}

// emitTrapJump emits, inline at the trap site, a load from the
// guaranteed-unmapped trapAddr, raising SIGSEGV (§4.4).
func (c *compiler) emitTrapJump() {
	p := c.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = int64(TrapLabelTarget())
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(regalloc.TempReg)
	c.add(p)

	deref := c.newProg()
	deref.As = x86.AMOVQ
	deref.From.Type = obj.TYPE_MEM
	deref.From.Reg = int16(regalloc.TempReg)
	deref.To.Type = obj.TYPE_REG
	deref.To.Reg = int16(regalloc.TempReg)
	c.add(deref)
}

func (c *compiler) emitEpilogueJump() {
	c.emitEpilogue()
}

func (c *compiler) emitI32Const(v int32) {
	loc := c.alloc.Next(false)
	p := c.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = int64(v)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(regalloc.TempReg)
	c.add(p)
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(regalloc.TempReg, loc, false)
	} else {
		c.emitMovRegReg(regalloc.TempReg, loc.Reg, false)
	}
	c.push(loc)
}

func (c *compiler) emitF64Const(v float64) {
	loc := c.alloc.Next(true)
	bits := math.Float64bits(v)
	tmp := regalloc.TempReg
	movImm := c.newProg()
	movImm.As = x86.AMOVQ
	movImm.From.Type = obj.TYPE_CONST
	movImm.From.Offset = int64(bits)
	movImm.To.Type = obj.TYPE_REG
	movImm.To.Reg = int16(tmp)
	c.add(movImm)

	movq := c.newProg()
	movq.As = x86.AMOVQ
	movq.From.Type = obj.TYPE_REG
	movq.From.Reg = int16(tmp)
	movq.To.Type = obj.TYPE_REG
	movq.To.Reg = int16(regalloc.TempFPReg)
	c.add(movq)
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(regalloc.TempFPReg, loc, true)
	} else {
		c.emitMovRegReg(regalloc.TempFPReg, loc.Reg, true)
	}
	c.push(loc)
}

func (c *compiler) emitLocalGet(idx uint32) {
	isFloat := c.fn.LocalType(int(idx)) == wasm.F64
	loc := c.alloc.Next(isFloat)
	tmp := regalloc.TempReg
	if isFloat {
		tmp = regalloc.TempFPReg
	}
	p := c.newProg()
	if isFloat {
		p.As = x86.AMOVSD
	} else {
		p.As = x86.AMOVQ
	}
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = int16(regalloc.LocalBaseReg)
	p.From.Offset = int64(idx) * 8
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(tmp)
	c.add(p)
	if loc.Kind == regalloc.LocStack {
		c.emitStoreStack(tmp, loc, isFloat)
	} else {
		c.emitMovRegReg(tmp, loc.Reg, isFloat)
	}
	c.push(loc)
}

func (c *compiler) emitLocalSet(idx uint32, drop bool) {
	var loc regalloc.Location
	if drop {
		loc = c.pop()
	} else {
		loc = c.stack[len(c.stack)-1]
	}
	reg := c.materialize(loc, loc.IsFloat)
	p := c.newProg()
	if loc.IsFloat {
		p.As = x86.AMOVSD
	} else {
		p.As = x86.AMOVQ
	}
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(reg)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = int16(regalloc.LocalBaseReg)
	p.To.Offset = int64(idx) * 8
	c.add(p)
	if drop && loc.Kind != regalloc.LocStack {
		c.alloc.Drop(loc)
	}
}

// emitSelect implements §4.2's `cmp cond,0; je else; mov dst,a; jmp end;
// else: mov dst,b; end:` template. dst is a's own location: the false arm
// overwrites it with b's value, the true arm leaves it untouched.
func (c *compiler) emitSelect() {
	cond := c.pop()
	b := c.pop()
	a := c.pop()
	condReg := c.materialize(cond, false)
	if cond.Kind != regalloc.LocStack {
		c.alloc.Drop(cond)
	}
	dst := a

	cmp := c.newProg()
	cmp.As = x86.ACMPQ
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = int16(condReg)
	cmp.To.Type = obj.TYPE_CONST
	cmp.To.Offset = 0
	c.add(cmp)

	keepA := c.newProg()
	keepA.As = x86.AJNE
	keepA.To.Type = obj.TYPE_BRANCH
	c.add(keepA)

	// cond == 0: overwrite dst (a's location) with b's value.
	c.moveTo(b, dst)

	end := c.newProg()
	end.As = obj.AJMP
	end.To.Type = obj.TYPE_BRANCH
	c.add(end)

	keepALabel := c.newProg()
	keepALabel.As = obj.ANOP
	c.add(keepALabel)
	keepA.To.SetTarget(keepALabel)

	endLabel := c.newProg()
	endLabel.As = obj.ANOP
	c.add(endLabel)
	end.To.SetTarget(endLabel)

	if b.Kind != regalloc.LocStack {
		c.alloc.Drop(b)
	}
	c.push(dst)
}
