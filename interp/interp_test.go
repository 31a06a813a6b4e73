package interp

import (
	"bytes"
	"errors"
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

func runMain(t *testing.T, m *wasm.Module, args ...wasm.Value) (*wasm.Value, string, error) {
	t.Helper()
	var out bytes.Buffer
	result, err := Run(m, args, &out)
	return result, out.String(), err
}

func i32c(v int32) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Const, I32Const: v} }
func f64c(v float64) wasm.Instruction { return wasm.Instruction{Op: wasm.OpF64Const, F64Const: v} }
func binop(k wasm.I32BinopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Binop, I32Binop: k} }
func f64unop(k wasm.F64UnopKind) wasm.Instruction { return wasm.Instruction{Op: wasm.OpF64Unop, F64Unop: k} }
func end() wasm.Instruction { return wasm.Instruction{Op: wasm.OpEnd} }

// Scenario 1: main() -> i32 { i32.const 40; i32.const 2; i32.add } -> 42.
func TestAddScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(40), i32c(2), binop(wasm.I32Add), end()},
	}
	result, _, err := runMain(t, moduleWithMain(fn))
	require.NoError(t, err)
	require.Equal(t, int32(42), result.I32)
}

// Scenario 2: main() -> i32 { i32.const 1; i32.const 0; i32.div_s } -> trap.
func TestDivByZeroTraps(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(1), i32c(0), binop(wasm.I32DivS), end()},
	}
	_, _, err := runMain(t, moduleWithMain(fn))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTrap))
}

// Scenario 3: INT32_MIN / -1 traps on overflow.
func TestDivOverflowTraps(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(-2147483648), i32c(-1), binop(wasm.I32DivS), end()},
	}
	_, _, err := runMain(t, moduleWithMain(fn))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTrap))
}

// Scenario 4: select with cond=1 picks the first operand.
func TestSelectScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.I32}},
		Insts: []wasm.Instruction{i32c(5), i32c(3), i32c(1), {Op: wasm.OpSelect}, end()},
	}
	result, _, err := runMain(t, moduleWithMain(fn))
	require.NoError(t, err)
	require.Equal(t, int32(5), result.I32)
}

// Scenario 5: f64.sqrt(9.0) == 3.0.
func TestSqrtScenario(t *testing.T) {
	fn := wasm.FuncDecl{
		Sig:   wasm.FuncSig{Results: []wasm.ValueType{wasm.F64}},
		Insts: []wasm.Instruction{f64c(9.0), f64unop(wasm.F64Sqrt), end()},
	}
	result, _, err := runMain(t, moduleWithMain(fn))
	require.NoError(t, err)
	require.InDelta(t, 3.0, result.F64, 1e-9)
}

// Scenario 6: loop $L; local.get 0; i32.const 1; i32.sub; local.tee 0;
// br_if $L; local.get 0 end, invoked with x=1000000 -> 0. Exercises
// loop-frame re-entry (§4.1 "Structured jumps").
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
	// Link the loop's matching end by hand (normally done by the decoder).
	fn.Insts[0].EndPC = 6

	result, _, err := runMain(t, moduleWithMain(fn), wasm.I32Val(1000000))
	require.NoError(t, err)
	require.Equal(t, int32(0), result.I32)
}

func TestRotlMasksShiftAmount(t *testing.T) {
	a := wasm.I32Val(1)
	b := wasm.I32Val(32 + 1) // should behave identically to a shift of 1
	v, err := evalI32Binop(wasm.I32Rotl, a, b)
	require.NoError(t, err)
	require.Equal(t, int32(2), v.I32)
}

func TestMemoryGrow(t *testing.T) {
	mem := NewMemory(1, 2, true)
	require.EqualValues(t, 1, mem.SizePages())
	require.EqualValues(t, 1, mem.Grow(1))
	require.EqualValues(t, 2, mem.SizePages())
	require.EqualValues(t, -1, mem.Grow(1)) // exceeds declared max
}

func TestGlobalSetRejectsImmutable(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.Global{{Type: wasm.I32, Mutable: false, Init: wasm.I32Val(7)}},
	}
	store, err := NewStore(m, &bytes.Buffer{})
	require.NoError(t, err)
	err = store.GlobalSet(0, wasm.I32Val(9))
	require.True(t, errors.Is(err, ErrTrap))
}
