package wasm

import "errors"

// Load-time panics (§7): malformed or unsupported modules. These are
// distinct from trap errors (interp.ErrTrap) — they mean the module itself
// is not one this engine can run, not that a well-formed program faulted.
var (
	errNoMainExport       = errors.New("no exported function named \"main\"")
	errUnknownSection     = errors.New("unknown or unsupported section")
	errUnsupportedValType = errors.New("unsupported value type")
	errPassiveSegment     = errors.New("passive element/data segments are not supported")
	errBadOffsetExpr      = errors.New("offset expression must be a single constant")
	errFuncCodeMismatch   = errors.New("function and code section sizes do not match")
	errUnsupportedImport  = errors.New("only function imports are supported")
	errBadMagicOrVersion  = errors.New("not a recognizable wasm binary")
	errTruncated          = errors.New("truncated module")
)
