package wasm

// FuncSig is a function signature: parameter and result value types.
type FuncSig struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two signatures describe the same params/results,
// used by call_indirect to verify the callee matches the call-site type
// exactly (§4.1 "Calls").
func (s FuncSig) Equal(o FuncSig) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// ImportKind distinguishes the kinds of things a module can import. Only
// ImportFunc is permitted by §6; any other kind is a load-time panic.
type ImportKind uint8

const (
	ImportFunc ImportKind = iota
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
	// SigIdx is meaningful for ImportFunc.
	SigIdx uint32
}

// FuncDecl is a function declaration: its signature, its declared pure
// locals (in order, expanded to one ValueType per local — not run-length
// encoded, since the decoder expands counts at load time), and its decoded
// instruction list. Imported functions carry a Host flag and no
// instructions; §4.1 "Calls" dispatches on this flag.
type FuncDecl struct {
	Sig    FuncSig
	Locals []ValueType
	Insts  []Instruction

	Host     bool
	HostName string
}

// NumLocalSlots is the number of local slots a fresh invocation needs:
// parameters occupy the lowest indices, then declared locals (§3 "Function
// declaration").
func (f *FuncDecl) NumLocalSlots() int {
	return len(f.Sig.Params) + len(f.Locals)
}

// LocalType returns the declared type of local slot i.
func (f *FuncDecl) LocalType(i int) ValueType {
	if i < len(f.Sig.Params) {
		return f.Sig.Params[i]
	}
	return f.Locals[i-len(f.Sig.Params)]
}

// Table is a single function table: a vector of function indices,
// populated by active element segments at load time. A -1 entry means
// "no function installed at this slot" and call_indirect against it traps.
type Table struct {
	Min, Max uint32 // in elements; Max == 0 means unbounded
	Elems    []int64 // -1 signals an empty slot; otherwise a function index
}

// MemoryLimits describes the single permitted memory's size bounds, in
// pages (65536 bytes each).
type MemoryLimits struct {
	Min uint32
	Max uint32 // meaningful only when HasMax is set; without it there is no declared max
	HasMax bool
}

// Global is one global variable: its type, mutability, and initial value,
// decoded from its initializer expression (a single i32.const or
// f64.const immediate followed by end, per §4.1 "Globals" / §7 load-time
// panics for any other shape).
type Global struct {
	Type    ValueType
	Mutable bool
	Init    Value
}

// ExportKind distinguishes what an export name refers to.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// ElementSegment initializes a range of a table with a vector of function
// indices, starting at a constant i32 offset (§3 "active element
// segments"; passive segments are a load-time panic per §7).
type ElementSegment struct {
	TableIdx uint32
	Offset   int32
	Funcs    []uint32
}

// DataSegment initializes a range of linear memory with raw bytes, starting
// at a constant i32 offset (active only; passive is a load-time panic).
type DataSegment struct {
	MemIdx uint32
	Offset int32
	Bytes  []byte
}

// Module is the read-mostly, load-once representation of a decoded .wasm
// file. It is shared across every invocation; nothing here is mutated once
// decode.go returns (globals are mutated, but copy-on-write through a
// Store — see interp.Store — rather than through this struct, per the
// "shared mutable module" decision in SPEC_FULL.md §9).
type Module struct {
	Sigs    []FuncSig
	Imports []Import
	Funcs   []FuncDecl
	Tables  []Table
	Mem     *MemoryLimits
	Globals []Global
	Exports []Export
	Elems   []ElementSegment
	Datas   []DataSegment

	StartFunc *uint32
}

// FindExport looks up an export by name and kind.
func (m *Module) FindExport(name string, kind ExportKind) (*Export, bool) {
	for i := range m.Exports {
		if m.Exports[i].Name == name && m.Exports[i].Kind == kind {
			return &m.Exports[i], true
		}
	}
	return nil, false
}

// MainFunc locates the exported "main" function required by §6.
func (m *Module) MainFunc() (*FuncDecl, error) {
	exp, ok := m.FindExport("main", ExportFunc)
	if !ok {
		return nil, errNoMainExport
	}
	if int(exp.Index) >= len(m.Funcs) {
		return nil, errNoMainExport
	}
	return &m.Funcs[exp.Index], nil
}
