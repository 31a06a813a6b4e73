package wasm

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// cursor walks a byte buffer, in the same spirit as a line-oriented
// scanner over assembly text, but byte-oriented over a binary module.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) byte() (byte, error) {
	if c.remaining() < 1 {
		return 0, errTruncated
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, errTruncated
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u32leb() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := c.byte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, errTruncated
		}
	}
}

func (c *cursor) s32leb() (int32, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = c.byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, errTruncated
		}
	}
	if shift < 32 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return int32(result), nil
}

// s33leb reads a signed LEB128 of up to 33 bits, the encoding WASM uses for
// block-type immediates (so that the single-byte forms -0x40 (empty),
// -0x01 (i32) and -0x04 (f64) fit, while a non-negative value names a type
// index).
func (c *cursor) s33leb() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = c.byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, errTruncated
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (c *cursor) f64() (float64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (c *cursor) valType() (ValueType, error) {
	b, err := c.byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x7F:
		return I32, nil
	case 0x7C:
		return F64, nil
	default:
		return 0, errors.Wrapf(errUnsupportedValType, "byte 0x%x", b)
	}
}

const (
	wasmMagic   = 0x6d736100 // "\0asm"
	wasmVersion = 1
)

// Decode parses a complete WebAssembly 1.0 binary module, per §10.1:
// type, import, function, table, memory, global, export, start (ignored),
// element, data-count, data, and code sections only.
func Decode(data []byte) (*Module, error) {
	c := &cursor{buf: data}

	magicBytes, err := c.bytes(4)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(magicBytes) != wasmMagic {
		return nil, errBadMagicOrVersion
	}
	verBytes, err := c.bytes(4)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(verBytes) != wasmVersion {
		return nil, errBadMagicOrVersion
	}

	m := &Module{}
	var codeBodies [][]byte
	var numFuncSectionEntries = -1

	for c.remaining() > 0 {
		secID, err := c.byte()
		if err != nil {
			return nil, err
		}
		secLen, err := c.u32leb()
		if err != nil {
			return nil, err
		}
		secBytes, err := c.bytes(int(secLen))
		if err != nil {
			return nil, err
		}
		sc := &cursor{buf: secBytes}

		switch secID {
		case 0: // custom: ignored
		case 1: // type
			if err := decodeTypeSection(sc, m); err != nil {
				return nil, err
			}
		case 2: // import
			if err := decodeImportSection(sc, m); err != nil {
				return nil, err
			}
		case 3: // function
			n, err := decodeFunctionSection(sc, m)
			if err != nil {
				return nil, err
			}
			numFuncSectionEntries = n
		case 4: // table
			if err := decodeTableSection(sc, m); err != nil {
				return nil, err
			}
		case 5: // memory
			if err := decodeMemorySection(sc, m); err != nil {
				return nil, err
			}
		case 6: // global
			if err := decodeGlobalSection(sc, m); err != nil {
				return nil, err
			}
		case 7: // export
			if err := decodeExportSection(sc, m); err != nil {
				return nil, err
			}
		case 8: // start
			idx, err := sc.u32leb()
			if err != nil {
				return nil, err
			}
			m.StartFunc = &idx
		case 9: // element
			if err := decodeElementSection(sc, m); err != nil {
				return nil, err
			}
		case 11: // data
			var err error
			codeOrDataCount := 0
			_ = codeOrDataCount
			if err = decodeDataSection(sc, m); err != nil {
				return nil, err
			}
		case 12: // data count: recorded but not cross-checked beyond decoding successfully
			if _, err := sc.u32leb(); err != nil {
				return nil, err
			}
		case 10: // code
			bodies, err := decodeCodeSection(sc)
			if err != nil {
				return nil, err
			}
			codeBodies = bodies
		default:
			return nil, errors.Wrapf(errUnknownSection, "id %d", secID)
		}
	}

	numNonImportFuncs := 0
	for _, f := range m.Funcs {
		if !f.Host {
			numNonImportFuncs++
		}
	}
	if numFuncSectionEntries >= 0 && numFuncSectionEntries != numNonImportFuncs {
		return nil, errFuncCodeMismatch
	}
	if numNonImportFuncs != len(codeBodies) {
		return nil, errFuncCodeMismatch
	}

	// Attach code bodies to the non-import function declarations, in order.
	bodyIdx := 0
	for i := range m.Funcs {
		if m.Funcs[i].Host {
			continue
		}
		if err := decodeFuncBody(codeBodies[bodyIdx], &m.Funcs[i]); err != nil {
			return nil, err
		}
		bodyIdx++
	}

	return m, nil
}

func decodeTypeSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	m.Sigs = make([]FuncSig, 0, n)
	for i := uint32(0); i < n; i++ {
		form, err := c.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return errors.New("expected func type form 0x60")
		}
		np, err := c.u32leb()
		if err != nil {
			return err
		}
		params := make([]ValueType, np)
		for j := range params {
			if params[j], err = c.valType(); err != nil {
				return err
			}
		}
		nr, err := c.u32leb()
		if err != nil {
			return err
		}
		results := make([]ValueType, nr)
		for j := range results {
			if results[j], err = c.valType(); err != nil {
				return err
			}
		}
		m.Sigs = append(m.Sigs, FuncSig{Params: params, Results: results})
	}
	return nil
}

func decodeImportSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		modName, err := decodeName(c)
		if err != nil {
			return err
		}
		fieldName, err := decodeName(c)
		if err != nil {
			return err
		}
		kind, err := c.byte()
		if err != nil {
			return err
		}
		if kind != 0x00 {
			return errUnsupportedImport
		}
		sigIdx, err := c.u32leb()
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, Import{Module: modName, Name: fieldName, Kind: ImportFunc, SigIdx: sigIdx})
		m.Funcs = append(m.Funcs, FuncDecl{Sig: m.Sigs[sigIdx], Host: true, HostName: fieldName})
	}
	return nil
}

func decodeName(c *cursor) (string, error) {
	n, err := c.u32leb()
	if err != nil {
		return "", err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFunctionSection(c *cursor, m *Module) (int, error) {
	n, err := c.u32leb()
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < n; i++ {
		sigIdx, err := c.u32leb()
		if err != nil {
			return 0, err
		}
		m.Funcs = append(m.Funcs, FuncDecl{Sig: m.Sigs[sigIdx]})
	}
	return int(n), nil
}

func decodeTableSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		elemType, err := c.byte()
		if err != nil {
			return err
		}
		if elemType != 0x70 {
			return errors.New("only funcref tables are supported")
		}
		limMin, limMax, hasMax, err := decodeLimits(c)
		if err != nil {
			return err
		}
		t := Table{Min: limMin, Elems: make([]int64, limMin)}
		if hasMax {
			t.Max = limMax
		}
		for j := range t.Elems {
			t.Elems[j] = -1
		}
		m.Tables = append(m.Tables, t)
	}
	return nil
}

func decodeLimits(c *cursor) (min, max uint32, hasMax bool, err error) {
	flags, err := c.byte()
	if err != nil {
		return 0, 0, false, err
	}
	min, err = c.u32leb()
	if err != nil {
		return 0, 0, false, err
	}
	if flags&0x01 != 0 {
		max, err = c.u32leb()
		if err != nil {
			return 0, 0, false, err
		}
		hasMax = true
	}
	return min, max, hasMax, nil
}

func decodeMemorySection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	min, max, hasMax, err := decodeLimits(c)
	if err != nil {
		return err
	}
	m.Mem = &MemoryLimits{Min: min, Max: max, HasMax: hasMax}
	return nil
}

// constExpr decodes a single constant initializer expression, i.e.
// i32.const <n> end or f64.const <n> end — the only shapes §4.1
// "Globals" and §3 element/data offsets allow.
func constExpr(c *cursor) (Value, error) {
	op, err := c.byte()
	if err != nil {
		return Value{}, err
	}
	var v Value
	switch op {
	case 0x41:
		n, err := c.s32leb()
		if err != nil {
			return Value{}, err
		}
		v = I32Val(n)
	case 0x44:
		f, err := c.f64()
		if err != nil {
			return Value{}, err
		}
		v = F64Val(f)
	default:
		return Value{}, errBadOffsetExpr
	}
	end, err := c.byte()
	if err != nil {
		return Value{}, err
	}
	if end != 0x0B {
		return Value{}, errBadOffsetExpr
	}
	return v, nil
}

func decodeGlobalSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		vt, err := c.valType()
		if err != nil {
			return err
		}
		mutByte, err := c.byte()
		if err != nil {
			return err
		}
		v, err := constExpr(c)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: vt, Mutable: mutByte == 1, Init: v})
	}
	return nil
}

func decodeExportSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := decodeName(c)
		if err != nil {
			return err
		}
		kindByte, err := c.byte()
		if err != nil {
			return err
		}
		idx, err := c.u32leb()
		if err != nil {
			return err
		}
		var kind ExportKind
		switch kindByte {
		case 0x00:
			kind = ExportFunc
		case 0x01:
			kind = ExportTable
		case 0x02:
			kind = ExportMemory
		case 0x03:
			kind = ExportGlobal
		default:
			return errors.New("unknown export kind")
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func decodeElementSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		tableIdx, err := c.u32leb()
		if err != nil {
			return err
		}
		if tableIdx&1 != 0 { // segment flags 1/3/5/7: passive or declarative
			return errPassiveSegment
		}
		offVal, err := constExpr(c)
		if err != nil {
			return err
		}
		if offVal.Type != I32 {
			return errBadOffsetExpr
		}
		numFuncs, err := c.u32leb()
		if err != nil {
			return err
		}
		funcs := make([]uint32, numFuncs)
		for j := range funcs {
			if funcs[j], err = c.u32leb(); err != nil {
				return err
			}
		}
		m.Elems = append(m.Elems, ElementSegment{TableIdx: tableIdx, Offset: offVal.I32, Funcs: funcs})

		if int(tableIdx) < len(m.Tables) {
			t := &m.Tables[tableIdx]
			for j, fn := range funcs {
				slot := int(offVal.I32) + j
				if slot >= 0 && slot < len(t.Elems) {
					t.Elems[slot] = int64(fn)
				}
			}
		}
	}
	return nil
}

func decodeDataSection(c *cursor, m *Module) error {
	n, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		memIdx, err := c.u32leb()
		if err != nil {
			return err
		}
		if memIdx == 1 { // segment flag 1: passive
			return errPassiveSegment
		}
		offVal, err := constExpr(c)
		if err != nil {
			return err
		}
		if offVal.Type != I32 {
			return errBadOffsetExpr
		}
		sz, err := c.u32leb()
		if err != nil {
			return err
		}
		b, err := c.bytes(int(sz))
		if err != nil {
			return err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		m.Datas = append(m.Datas, DataSegment{MemIdx: memIdx, Offset: offVal.I32, Bytes: cp})
	}
	return nil
}

// decodeCodeSection returns each function body's raw bytes (locals
// declarations + instruction stream), to be decoded per-function once all
// signatures are known.
func decodeCodeSection(c *cursor) ([][]byte, error) {
	n, err := c.u32leb()
	if err != nil {
		return nil, err
	}
	bodies := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		sz, err := c.u32leb()
		if err != nil {
			return nil, err
		}
		b, err := c.bytes(int(sz))
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, b)
	}
	return bodies, nil
}

func decodeFuncBody(body []byte, f *FuncDecl) error {
	c := &cursor{buf: body}
	numLocalDecls, err := c.u32leb()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numLocalDecls; i++ {
		count, err := c.u32leb()
		if err != nil {
			return err
		}
		vt, err := c.valType()
		if err != nil {
			return err
		}
		for j := uint32(0); j < count; j++ {
			f.Locals = append(f.Locals, vt)
		}
	}

	insts, err := decodeInstructions(c)
	if err != nil {
		return err
	}
	f.Insts = insts
	linkStructuredControl(f.Insts)
	return nil
}

// linkStructuredControl fills in EndPC/ElsePC on every block/loop/if
// instruction, by the same depth-counter rule as §4.1 "End-matching",
// computed once at decode time rather than rescanned on every dispatch.
func linkStructuredControl(insts []Instruction) {
	var stack []int // indices of open block/loop/if instructions
	for pc := range insts {
		switch insts[pc].Op {
		case OpBlock, OpLoop, OpIf:
			stack = append(stack, pc)
		case OpElse:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if insts[top].Op == OpIf {
					insts[top].ElsePC = pc
				}
			}
		case OpEnd:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				insts[top].EndPC = pc
				if insts[top].Op == OpIf && insts[top].ElsePC == 0 {
					insts[top].ElsePC = -1
				}
			}
		}
	}
}
