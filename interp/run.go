package interp

import (
	"io"
	"os"
	"runtime/debug"
	"strconv"

	"wasmvm/wasm"
)

// Run locates and invokes the exported "main" function of m via the
// tree-walking interpreter, binding args as its parameters, and returns
// main's result value (or an error wrapping ErrTrap). Grounded on
// RunProgram (vm/run.go): the garbage collector is disabled
// for the duration of the call and restored on return, since both the
// operand/control stacks and the module's memory are allocated up front
// and the hot dispatch loop should not pay GC overhead mid-run.
func Run(m *wasm.Module, args []wasm.Value, stdout io.Writer) (*wasm.Value, error) {
	store, err := NewStore(m, stdout)
	if err != nil {
		return nil, err
	}

	main, err := m.MainFunc()
	if err != nil {
		return nil, err
	}

	gcPercent := originalGCPercent()
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gcPercent)

	exec := NewExecutor(store, main, args)
	result, err := exec.Execute()
	store.Stdout.Flush()
	return result, err
}

func originalGCPercent() int {
	key, ok := os.LookupEnv("GOGC")
	if !ok {
		return 100
	}
	v, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		return 100
	}
	return int(v)
}
