package interp

const pageSize = 65536

// Memory is the interpreter's linear memory: a growable byte buffer with
// page accounting, grounded on original_source's LinearMemory wrapper
// (vm/interpreter.rs) and little-endian byte-slice helpers in the style
// of vm/vm.go.
type Memory struct {
	bytes   []byte
	maxPage uint32
	hasMax  bool
}

// NewMemory allocates a memory of minPages pages, zero-initialized.
func NewMemory(minPages, maxPages uint32, hasMax bool) *Memory {
	return &Memory{
		bytes:   make([]byte, uint64(minPages)*pageSize),
		maxPage: maxPages,
		hasMax:  hasMax,
	}
}

// SizePages is the current size in pages (§3 invariant: always a multiple
// of one page).
func (m *Memory) SizePages() uint32 { return uint32(len(m.bytes) / pageSize) }

// Grow implements §4.1 "memory.size/memory.grow": returns -1 and does
// nothing if n is negative or would exceed the declared max; otherwise
// grows by n pages and returns the previous page count.
func (m *Memory) Grow(n int32) int32 {
	if n < 0 {
		return -1
	}
	prev := m.SizePages()
	next := prev + uint32(n)
	if m.hasMax && next > m.maxPage {
		return -1
	}
	m.bytes = append(m.bytes, make([]byte, uint64(n)*pageSize)...)
	return int32(prev)
}

// boundsOK reports whether [addr, addr+width) lies within memory.
func (m *Memory) boundsOK(addr uint64, width uint64) bool {
	return addr+width >= addr && addr+width <= uint64(len(m.bytes))
}

func (m *Memory) slice(addr uint64, width uint64) ([]byte, bool) {
	if !m.boundsOK(addr, width) {
		return nil, false
	}
	return m.bytes[addr : addr+width], true
}
