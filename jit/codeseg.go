package jit

import "golang.org/x/sys/unix"

// mmapCodeSegment copies assembled machine code into a freshly mapped
// RW-then-RX region: written with PROT_READ|PROT_WRITE, then remapped
// executable, so the code survives for the life of the compiled function
// (code segments are process-lifetime resources, §5 — never released by
// the engine).
func mmapCodeSegment(code []byte) ([]byte, error) {
	if len(code) == 0 {
		return nil, nil
	}
	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return mem, nil
}
