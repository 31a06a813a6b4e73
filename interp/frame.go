package interp

import "wasmvm/wasm"

// frameKind distinguishes the three control-frame shapes of §4.1
// "Control frame".
type frameKind uint8

const (
	frameBlock frameKind = iota
	frameIf
	frameLoop
)

// frame is one entry of the control-frame stack: §4.1 "Control frame"
// verbatim — kind, expected post-block operand-stack height, result
// count, and the instruction range it spans.
type frame struct {
	kind                frameKind
	expectedStackHeight int
	numResults          int
	startPC             int
	endPC               int

	// If-only fields.
	elsePC        int // -1 if there is no else
	conditionMet  bool
}

// targetDepth returns the frame (d+1)-th from the top of frames, per §4.1
// "Structured jumps": br 0 targets the innermost frame.
func targetDepth(frames []frame, d uint32) *frame {
	idx := len(frames) - 1 - int(d)
	return &frames[idx]
}

// blockDelta/blockNumResults expose BlockType's stack-effect arithmetic
// against a signature table, per §4.1 "Block-type arithmetic".
func blockDelta(bt wasm.BlockType, sigs []wasm.FuncSig) int     { return bt.Delta(sigs) }
func blockNumResults(bt wasm.BlockType, sigs []wasm.FuncSig) int { return bt.NumResults(sigs) }
