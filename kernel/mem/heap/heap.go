// Package heap provides GlobalHeap, the single allocate/free surface
// the rest of the kernel uses: small requests are routed to a slab
// allocator, page-sized-and-larger requests go straight to the buddy
// allocator underneath it.
package heap

import (
	"vmkernel/kernel"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/allocator"
	"vmkernel/kernel/mem/slab"
	"vmkernel/kernel/sync"
)

// ErrAlignTooLarge is returned when align exceeds the frame size; the
// slab cannot honor an alignment wider than a whole frame.
var ErrAlignTooLarge = &kernel.Error{Module: "heap", Message: "requested alignment exceeds frame size"}

// GlobalHeap is the kernel-wide allocate/free adapter. It is
// constructed once, right after the buddy allocator is ready, and
// never torn down.
type GlobalHeap struct {
	buddy *allocator.BuddyAllocator
	slab  *slab.SlabAllocator
}

// New builds a GlobalHeap over buddy, with a slab layer for sub-page
// allocations.
func New(buddy *allocator.BuddyAllocator) *GlobalHeap {
	return &GlobalHeap{
		buddy: buddy,
		slab:  slab.New(buddy),
	}
}

// Allocate returns an address for a block of at least size bytes,
// aligned to at least align. align must be <= the frame size; asking
// for a size class at or above the requested alignment is how wider
// alignments within a class are honored.
func (h *GlobalHeap) Allocate(size mem.Size, align uintptr) (uintptr, error) {
	if align > uintptr(mem.PageSize) {
		return 0, ErrAlignTooLarge
	}
	if align > uintptr(size) {
		size = mem.Size(align)
	}

	g := sync.EnterCritical()
	defer g.Release()

	return h.slab.Allocate(size)
}

// Free releases addr, previously returned by Allocate with the given
// size and align.
func (h *GlobalHeap) Free(addr uintptr, size mem.Size, align uintptr) {
	if align > uintptr(size) {
		size = mem.Size(align)
	}

	g := sync.EnterCritical()
	defer g.Release()

	h.slab.Free(addr, size)
}

// Buddy exposes the underlying frame allocator for callers (such as
// the page table manager) that need whole frames directly.
func (h *GlobalHeap) Buddy() *allocator.BuddyAllocator { return h.buddy }
