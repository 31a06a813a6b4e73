package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wasmvm/wasm"
)

func moduleWithMain(fn wasm.FuncDecl) *wasm.Module {
	m := &wasm.Module{
		Sigs:  []wasm.FuncSig{fn.Sig},
		Funcs: []wasm.FuncDecl{fn},
	}
	m.Exports = []wasm.Export{{Name: "main", Kind: wasm.ExportFunc, Index: 0}}
	return m
}

// compileAndRun mirrors runMain in the interpreter's test suite: reserve a
// small linear memory, compile fn as the module's exported main, and invoke
// it with args.
func compileAndRun(t *testing.T, fn wasm.FuncDecl, args ...wasm.Value) *wasm.Value {
	t.Helper()
	m := moduleWithMain(fn)
	mem, err := NewLinearMemory(1, 2, true)
	require.NoError(t, err)
	defer mem.Close()

	compiled, err := Compile(m, &m.Funcs[0], mem)
	require.NoError(t, err)
	return compiled.Call(args)
}

func i32c(v int32) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Const, I32Const: v} }
func f64c(v float64) wasm.Instruction { return wasm.Instruction{Op: wasm.OpF64Const, F64Const: v} }
func binop(k wasm.I32BinopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Binop, I32Binop: k} }
func unop(k wasm.I32UnopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Unop, I32Unop: k} }
func f64binop(k wasm.F64BinopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpF64Binop, F64Binop: k} }
func f64unop(k wasm.F64UnopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpF64Unop, F64Unop: k} }
func end() wasm.Instruction { return wasm.Instruction{Op: wasm.OpEnd} }

// Trap-inducing scenarios (div by zero, bad conversions, OOB memory) are
// deliberately not exercised here: the JIT reports a trap by raising
// SIGSEGV and exiting the process (trap.go), which would terminate the
// test binary rather than fail an assertion. Of these, only the division
// traps (zero divisor, MinInt32/-1) have interpreter-side tests; the
// conversion and out-of-bounds traps are tested in neither suite.

func TestAddScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(40), i32c(2), binop(wasm.I32Add), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(42), result.I32)
}

func TestComparisonScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(3), i32c(5), binop(wasm.I32LtS), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(1), result.I32)
}

func TestUnsignedComparisonScenario(t *testing.T) {
	// -1 as unsigned is the largest u32; -1 <u 1 is false.
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(-1), i32c(1), binop(wasm.I32LtU), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(0), result.I32)
}

func TestShlMaskScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(1), i32c(33), binop(wasm.I32Shl), end()}, // shift masked to 1
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(2), result.I32)
}

func TestRotlScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(1), i32c(33), binop(wasm.I32Rotl), end()}, // masked to a rotate of 1
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(2), result.I32)
}

func TestCtzScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(16), unop(wasm.I32Ctz), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(4), result.I32)
}

func TestSelectScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(5), i32c(3), i32c(1), {Op: wasm.OpSelect}, end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(5), result.I32)
}

func TestSelectScenarioFalse(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(5), i32c(3), i32c(0), {Op: wasm.OpSelect}, end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(3), result.I32)
}

func TestSqrtScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(9.0), f64unop(wasm.F64Sqrt), end()},
	}
	result := compileAndRun(t, fn)
	require.InDelta(t, 3.0, result.F64, 1e-9)
}

func TestF64CeilFloorScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(1.25), f64unop(wasm.F64Ceil), end()},
	}
	result := compileAndRun(t, fn)
	require.InDelta(t, 2.0, result.F64, 1e-9)

	fn2 := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(1.75), f64unop(wasm.F64Floor), end()},
	}
	result2 := compileAndRun(t, fn2)
	require.InDelta(t, 1.0, result2.F64, 1e-9)
}

func TestF64DivByZeroIsInf(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(1.0), f64c(0.0), f64binop(wasm.F64Div), end()},
	}
	result := compileAndRun(t, fn)
	require.True(t, result.F64 > 1e300) // +Inf, avoiding a literal math.Inf import just for this check
}

func TestF64MinMaxNaNPropagates(t *testing.T) {
	nan := wasm.Instruction{Op: wasm.OpF64Const, F64Const: nanFloat()}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(1.0), nan, f64binop(wasm.F64Min), end()},
	}
	result := compileAndRun(t, fn)
	require.True(t, result.F64 != result.F64) // NaN != itself
}

func TestF64NeIsTrueForNaN(t *testing.T) {
	nan := wasm.Instruction{Op: wasm.OpF64Const, F64Const: nanFloat()}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{f64c(1.0), nan, f64binop(wasm.F64Ne), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(1), result.I32)
}

func TestF64LtIsFalseForNaN(t *testing.T) {
	nan := wasm.Instruction{Op: wasm.OpF64Const, F64Const: nanFloat()}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{f64c(1.0), nan, f64binop(wasm.F64Lt), end()},
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(0), result.I32)
}

func TestConversionScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{i32c(-7), {Op: wasm.OpI32Unop, I32Unop: wasm.F64ConvertI32S}, end()},
	}
	result := compileAndRun(t, fn)
	require.InDelta(t, -7.0, result.F64, 1e-9)
}

func TestLocalGetSetTeeScenario(t *testing.T) {
	insts := []wasm.Instruction{
		{Op: wasm.OpLocalGet, Index: 0},
		i32c(1),
		binop(wasm.I32Add),
		{Op: wasm.OpLocalTee, Index: 0},
		{Op: wasm.OpLocalGet, Index: 0},
		binop(wasm.I32Add),
		end(),
	}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}},
		Insts: insts,
	}
	result := compileAndRun(t, fn, wasm.I32Val(10))
	require.Equal(t, int32(22), result.I32) // (10+1) + (10+1)
}

func TestMemoryStoreLoadScenario(t *testing.T) {
	insts := []wasm.Instruction{
		i32c(0),   // addr
		i32c(123), // value
		{Op: wasm.OpI32Store, Mem: wasm.MemArg{Offset: 0}},
		i32c(0),
		{Op: wasm.OpI32Load, Mem: wasm.MemArg{Offset: 0}},
		end(),
	}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: insts,
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(123), result.I32)
}

func TestMemoryGrowScenario(t *testing.T) {
	insts := []wasm.Instruction{
		i32c(1),
		{Op: wasm.OpMemoryGrow},
		end(),
	}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: insts,
	}
	result := compileAndRun(t, fn)
	require.Equal(t, int32(1), result.I32) // previous size, grown from 1 to 2 pages
}

func TestLoopDecrementScenario(t *testing.T) {
	insts := []wasm.Instruction{
		{Op: wasm.OpLoop, Block: wasm.BlockType{Kind: wasm.BlockEmpty}}, // 0
		{Op: wasm.OpLocalGet, Index: 0},                                // 1
		i32c(1),                                                        // 2
		binop(wasm.I32Sub),                                             // 3
		{Op: wasm.OpLocalTee, Index: 0},                                // 4
		{Op: wasm.OpBrIf, RelDepth: 0},                                 // 5
		end(), // 6: end of loop
		{Op: wasm.OpLocalGet, Index: 0}, // 7
		end(),                           // 8: end of function
	}
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}},
		Insts: insts,
	}
	fn.Insts[0].EndPC = 6

	result := compileAndRun(t, fn, wasm.I32Val(1000))
	require.Equal(t, int32(0), result.I32)
}

func TestCallFallsBackToUnsupported(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{},
		Insts: []wasm.Instruction{{Op: wasm.OpCall, FuncIdx: 0}, end()},
	}
	m := moduleWithMain(fn)
	mem, err := NewLinearMemory(1, 1, true)
	require.NoError(t, err)
	defer mem.Close()

	_, err = Compile(m, &m.Funcs[0], mem)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnsupported)
}

// nanFloat avoids importing math solely for a NaN literal in test data.
func nanFloat() float64 {
	var zero float64
	return zero / zero
}

// TestRegisterPressureSpillScenario pushes more i32 constants than GPRPool
// has slots for, forcing the allocator to hand out stack spill locations,
// and then sums all of them. If a producer ever writes a spilled value's
// result into REG_NONE instead of its spill slot (or a later consumer
// fails to read it back correctly), the sum comes out wrong.
func TestRegisterPressureSpillScenario(t *testing.T) {
	const n = 20
	var insts []wasm.Instruction
	want := int32(0)
	for i := 1; i <= n; i++ {
		insts = append(insts, i32c(int32(i)))
		want += int32(i)
	}
	for i := 1; i < n; i++ {
		insts = append(insts, binop(wasm.I32Add))
	}
	insts = append(insts, end())

	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: insts,
	}
	result := compileAndRun(t, fn)
	require.Equal(t, want, result.I32)
}

// TestCrossIfLiveValueScenario keeps a local live underneath an `if`/`else`
// whose arms don't touch it, then reads it back on both the true and false
// paths. This exercises the canonicalization-ordering at an `if`: the
// conditional skip must not be able to jump past the spill code that makes
// that value available on both arms.
func TestCrossIfLiveValueScenario(t *testing.T) {
	build := func(cond int32) wasm.FuncDecl {
		insts := []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0}, // live across the if: x
			i32c(cond),
			{Op: wasm.OpIf, Block: wasm.BlockType{Kind: wasm.BlockEmpty}},
			i32c(999),
			{Op: wasm.OpDrop},
			{Op: wasm.OpElse},
			i32c(111),
			{Op: wasm.OpDrop},
			end(), // end of if
			i32c(1),
			binop(wasm.I32Add), // x + 1
			end(),              // end of function
		}
		return wasm.FuncDecl{
			Sig:   wasm.FuncSig{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}},
			Insts: insts,
		}
	}

	trueResult := compileAndRun(t, build(1), wasm.I32Val(10))
	require.Equal(t, int32(11), trueResult.I32)

	falseResult := compileAndRun(t, build(0), wasm.I32Val(10))
	require.Equal(t, int32(11), falseResult.I32)
}
