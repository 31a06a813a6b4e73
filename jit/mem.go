package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	pageSizeBytes = 65536
	memLimitBytes = 32 * 1024 * 1024 * 1024 // 32 GiB reservation, §4.3
)

// LinearMemory is the JIT's 32 GiB mmap/mprotect-guarded linear memory
// arena. Grounded on original_source's JitLinearMemory (jit/mem.rs): a
// fixed PROT_NONE reservation is made once at startup, and Grow extends
// the readable/writable high-water mark via mprotect rather than
// relocating or copying the backing store. Any access past that
// high-water mark raises SIGSEGV, caught by the trap subsystem (§4.4).
type LinearMemory struct {
	base      uintptr
	region    []byte // the full 32 GiB PROT_NONE reservation, for Munmap
	sizePages int64
	maxPages  int64 // growth limit in pages: the declared module maximum, or the 32 GiB reservation's page count when none is declared
}

// NewLinearMemory reserves the 32 GiB region PROT_NONE and grows it to
// initialPages immediately, matching JitLinearMemory::new + init_size.
func NewLinearMemory(initialPages, maxPages uint32, hasMax bool) (*LinearMemory, error) {
	region, err := unix.Mmap(-1, 0, memLimitBytes, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("reserving linear memory arena: %w", err)
	}

	lim := int64(memLimitBytes / pageSizeBytes)
	if hasMax {
		lim = int64(maxPages)
	}

	m := &LinearMemory{
		base:     uintptr(unsafe.Pointer(&region[0])),
		region:   region,
		maxPages: lim,
	}
	if _, ok := m.Grow(int32(initialPages)); !ok {
		m.Close()
		return nil, fmt.Errorf("initial memory size %d pages exceeds limit", initialPages)
	}
	return m, nil
}

// Base is the address baked into emitted code as the linear-memory base
// register's initial value (§4.3, loaded into R15 at JIT function entry).
func (m *LinearMemory) Base() uintptr { return m.base }

// sizeAddr is the address of the page counter, baked into emitted code's
// memory.size/memory.grow sequences as an immediate (§4.3 "The current
// size in pages lives in a single heap cell whose address is baked into
// the emitted code").
func (m *LinearMemory) sizeAddr() uintptr { return uintptr(unsafe.Pointer(&m.sizePages)) }

// SizePages returns the current high-water mark, in pages.
func (m *LinearMemory) SizePages() int32 { return int32(m.sizePages) }

// Grow implements the grow sequence of §4.3, corrected per the
// SPEC_FULL.md §9 decision: delta is compared with a genuine signed
// check rather than the source's effectively-unreachable unsigned
// comparison. Returns (oldSize, true) on success, or (_, false) if the
// request is rejected. Its caller is NewLinearMemory, which turns a
// rejection into an error; emitted memory.grow code runs its own inline
// sequence (jit/memops.go) and does not call Grow.
func (m *LinearMemory) Grow(delta int32) (int32, bool) {
	if delta < 0 {
		return 0, false
	}
	old := m.sizePages
	next := old + int64(delta)
	if next > m.maxPages {
		return 0, false
	}
	newBytes := next * pageSizeBytes
	if newBytes > 0 {
		if err := unix.Mprotect(m.region[:newBytes], unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return 0, false
		}
	}
	m.sizePages = next
	return int32(old), true
}

// Bytes returns the currently-readable/writable prefix of the arena, for
// the data-segment loader and host string printing to slice into safely.
func (m *LinearMemory) Bytes() []byte {
	return m.region[:m.sizePages*pageSizeBytes]
}

// Close releases the 32 GiB reservation. The engine is process-lifetime
// in ordinary operation (§5); Close exists so tests don't leak the
// reservation across table-driven cases.
func (m *LinearMemory) Close() error {
	return unix.Munmap(m.region)
}
