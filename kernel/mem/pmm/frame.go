// Package pmm defines the physical-memory vocabulary shared by the
// buddy and slab allocators: frame numbers, the boot-time region list
// and the kernel-image/MMIO extents the boot collaborator hands in.
package pmm

import (
	"math"

	"vmkernel/kernel/mem"
)

// Frame identifies a physical page frame by its frame number
// (phys_addr / PageSize), not its address.
type Frame uintptr

// InvalidFrame is the sentinel returned where no frame applies.
const InvalidFrame = Frame(math.MaxUint64)

// Valid reports whether f is not the InvalidFrame sentinel.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of f.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the frame containing addr.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
