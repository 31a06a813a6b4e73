package interp

import (
	"fmt"

	"wasmvm/wasm"
)

// callHost implements §4.1 "Host functions" / §6 "Host imports": the three
// hard-coded imports are dispatched by name, in the spirit of the
// teacher's devices.go request-routing table, collapsed here to the fixed
// set this engine recognizes — any other import name is fatal (§6).
func callHost(store *Store, name string, args []wasm.Value) error {
	switch name {
	case "puti":
		fmt.Fprintf(store.Stdout, "%d", args[0].I32)
	case "putd":
		fmt.Fprintf(store.Stdout, "%.6f", args[0].F64)
	case "puts":
		addr := uint32(args[0].I32)
		length := uint32(args[1].I32)
		b, ok := store.Mem.slice(uint64(addr), uint64(length))
		if !ok {
			return errOutOfBoundsMemory
		}
		store.Stdout.Write(b)
	default:
		return errUnknownImport
	}
	store.Stdout.Flush()
	return nil
}
