// Package interp is the tree-walking interpreter: a structured-control-flow
// stack dispatch loop over a decoded wasm.Module, plus the linear memory,
// globals store and host-function bridge it operates over.
package interp

import (
	"wasmvm/wasm"
)

// Executor holds all per-call state for one function invocation: program
// counter, operand stack, control-frame stack and locals (§4.1 "State").
// A fresh Executor is constructed per call — calls never alias each
// other's per-call state (§5), matching the "resolve by index, don't
// clone the declaration" decision in SPEC_FULL.md §9.
type Executor struct {
	store   *Store
	fn      *wasm.FuncDecl
	locals  []wasm.Value
	operand []wasm.Value
	frames  []frame
	pc      int
}

// NewExecutor builds an Executor for fn, binding args as the lowest-index
// locals and zero-initializing the declared locals that follow (§3
// "Function declaration").
func NewExecutor(store *Store, fn *wasm.FuncDecl, args []wasm.Value) *Executor {
	locals := make([]wasm.Value, fn.NumLocalSlots())
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = fn.LocalType(i).Zero()
	}

	endPC := 0
	if len(fn.Insts) > 0 {
		endPC = len(fn.Insts) - 1
	}

	return &Executor{
		store:  store,
		fn:     fn,
		locals: locals,
		frames: []frame{{
			kind:                frameBlock,
			expectedStackHeight: 0,
			numResults:          len(fn.Sig.Results),
			startPC:             0,
			endPC:               endPC,
			elsePC:              -1,
		}},
	}
}

// Execute runs fn to completion, per the §4.1 contract: a single result
// value, nothing (void), or a trap error.
func (e *Executor) Execute() (*wasm.Value, error) {
	insts := e.fn.Insts
	sigs := e.store.Module.Sigs

	for {
		if len(e.frames) == 0 {
			break
		}
		if e.pc >= len(insts) {
			break
		}
		inst := insts[e.pc]

		switch inst.Op {
		case wasm.OpUnreachable:
			return nil, errUnreachable

		case wasm.OpNop:
			e.pc++

		case wasm.OpBlock:
			e.frames = append(e.frames, frame{
				kind:                frameBlock,
				expectedStackHeight: len(e.operand) + blockDelta(inst.Block, sigs),
				numResults:          blockNumResults(inst.Block, sigs),
				startPC:             e.pc,
				endPC:               inst.EndPC,
				elsePC:              -1,
			})
			e.pc++

		case wasm.OpLoop:
			e.frames = append(e.frames, frame{
				kind:                frameLoop,
				expectedStackHeight: len(e.operand) + blockDelta(inst.Block, sigs),
				numResults:          blockNumResults(inst.Block, sigs),
				startPC:             e.pc,
				endPC:               inst.EndPC,
				elsePC:              -1,
			})
			e.pc++

		case wasm.OpIf:
			cond := e.pop()
			f := frame{
				kind:                frameIf,
				expectedStackHeight: len(e.operand) + blockDelta(inst.Block, sigs),
				numResults:          blockNumResults(inst.Block, sigs),
				startPC:             e.pc,
				endPC:               inst.EndPC,
				elsePC:              inst.ElsePC,
				conditionMet:        cond.I32 != 0,
			}
			e.frames = append(e.frames, f)
			switch {
			case f.conditionMet:
				e.pc++
			case f.elsePC >= 0:
				e.pc = f.elsePC + 1
			default:
				e.pc = f.endPC
			}

		case wasm.OpElse:
			// Only reached falling out of a true-branch body; the
			// false branch always jumps straight past this marker.
			e.pc = e.frames[len(e.frames)-1].endPC

		case wasm.OpEnd:
			e.frames = e.frames[:len(e.frames)-1]
			e.pc++

		case wasm.OpBr:
			e.branch(inst.RelDepth)

		case wasm.OpBrIf:
			cond := e.pop()
			if cond.I32 != 0 {
				e.branch(inst.RelDepth)
			} else {
				e.pc++
			}

		case wasm.OpBrTable:
			idx := e.pop().I32
			depth := inst.BrTableDefault
			if idx >= 0 && int(idx) < len(inst.BrTable) {
				depth = inst.BrTable[idx]
			}
			e.branch(depth)

		case wasm.OpReturn:
			e.frames = e.frames[:0]

		case wasm.OpCall:
			if err := e.call(inst.FuncIdx); err != nil {
				return nil, err
			}
			e.pc++

		case wasm.OpCallIndirect:
			if err := e.callIndirect(inst.TypeIdx, inst.TableIdx); err != nil {
				return nil, err
			}
			e.pc++

		case wasm.OpDrop:
			e.pop()
			e.pc++

		case wasm.OpSelect:
			cond := e.pop()
			b := e.pop()
			a := e.pop()
			if cond.I32 != 0 {
				e.push(a)
			} else {
				e.push(b)
			}
			e.pc++

		case wasm.OpLocalGet:
			e.push(e.locals[inst.Index])
			e.pc++

		case wasm.OpLocalSet:
			e.locals[inst.Index] = e.pop()
			e.pc++

		case wasm.OpLocalTee:
			v := e.peek()
			e.locals[inst.Index] = v
			e.pc++

		case wasm.OpGlobalGet:
			e.push(e.store.GlobalGet(inst.Index))
			e.pc++

		case wasm.OpGlobalSet:
			if err := e.store.GlobalSet(inst.Index, e.pop()); err != nil {
				return nil, err
			}
			e.pc++

		case wasm.OpI32Load, wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpF64Load:
			v, err := e.execLoad(inst)
			if err != nil {
				return nil, err
			}
			e.push(v)
			e.pc++

		case wasm.OpI32Store, wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpF64Store:
			if err := e.execStore(inst); err != nil {
				return nil, err
			}
			e.pc++

		case wasm.OpMemorySize:
			e.push(wasm.I32Val(int32(e.store.Mem.SizePages())))
			e.pc++

		case wasm.OpMemoryGrow:
			n := e.pop().I32
			e.push(wasm.I32Val(e.store.Mem.Grow(n)))
			e.pc++

		case wasm.OpI32Const:
			e.push(wasm.I32Val(inst.I32Const))
			e.pc++

		case wasm.OpF64Const:
			e.push(wasm.F64Val(inst.F64Const))
			e.pc++

		case wasm.OpI32Unop:
			a := e.pop()
			v, err := evalI32Unop(inst.I32Unop, a)
			if err != nil {
				return nil, err
			}
			e.push(v)
			e.pc++

		case wasm.OpI32Binop:
			b := e.pop()
			a := e.pop()
			v, err := evalI32Binop(inst.I32Binop, a, b)
			if err != nil {
				return nil, err
			}
			e.push(v)
			e.pc++

		case wasm.OpF64Unop:
			a := e.pop()
			e.push(evalF64Unop(inst.F64Unop, a))
			e.pc++

		case wasm.OpF64Binop:
			b := e.pop()
			a := e.pop()
			e.push(evalF64Binop(inst.F64Binop, a, b))
			e.pc++

		default:
			return nil, errUnreachable
		}
	}

	if len(e.fn.Sig.Results) == 0 {
		return nil, nil
	}
	result := e.operand[len(e.operand)-1]
	return &result, nil
}

func (e *Executor) push(v wasm.Value) { e.operand = append(e.operand, v) }

func (e *Executor) pop() wasm.Value {
	v := e.operand[len(e.operand)-1]
	e.operand = e.operand[:len(e.operand)-1]
	return v
}

func (e *Executor) peek() wasm.Value {
	return e.operand[len(e.operand)-1]
}

// branch implements §4.1 "Structured jumps" exactly.
func (e *Executor) branch(d uint32) {
	idx := len(e.frames) - 1 - int(d)
	tf := e.frames[idx]

	nres := tf.numResults
	height := len(e.operand)
	results := append([]wasm.Value(nil), e.operand[height-nres:height]...)
	target := tf.expectedStackHeight - nres
	e.operand = append(e.operand[:target], results...)

	if tf.kind == frameLoop {
		e.pc = tf.startPC
		e.frames = e.frames[:idx]
	} else {
		e.pc = tf.endPC
		e.frames = e.frames[:idx+1]
	}
}

// popArgs pops n values off the operand stack and returns them in their
// original call-site (left-to-right) order — the top of the stack is the
// rightmost parameter (§4.1 "Calls").
func (e *Executor) popArgs(n int) []wasm.Value {
	height := len(e.operand)
	args := append([]wasm.Value(nil), e.operand[height-n:height]...)
	e.operand = e.operand[:height-n]
	return args
}

func (e *Executor) call(funcIdx uint32) error {
	fn := &e.store.Module.Funcs[funcIdx]
	args := e.popArgs(len(fn.Sig.Params))
	if err := checkArgTypes(fn.Sig, args); err != nil {
		return err
	}

	if fn.Host {
		if err := callHost(e.store, fn.HostName, args); err != nil {
			return err
		}
		return nil
	}

	callee := NewExecutor(e.store, fn, args)
	result, err := callee.Execute()
	if err != nil {
		return err
	}
	if result != nil {
		e.push(*result)
	}
	return nil
}

func (e *Executor) callIndirect(typeIdx, tableIdx uint32) error {
	idx := e.pop().I32
	if e.store.Table == nil || idx < 0 || int(idx) >= len(e.store.Table.Elems) {
		return errBadTableIndex
	}
	funcIdx := e.store.Table.Elems[idx]
	if funcIdx < 0 {
		return errBadTableIndex
	}
	callee := &e.store.Module.Funcs[funcIdx]
	if !callee.Sig.Equal(e.store.Module.Sigs[typeIdx]) {
		return errSigMismatch
	}
	return e.call(uint32(funcIdx))
}

func checkArgTypes(sig wasm.FuncSig, args []wasm.Value) error {
	for i, p := range sig.Params {
		if args[i].Type != p {
			return errArgTypeMismatch
		}
	}
	return nil
}
