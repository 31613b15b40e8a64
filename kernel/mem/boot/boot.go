// Package boot wires the memory subsystem together at startup: a
// memory-region map comes in from the boot collaborator, the largest
// usable region becomes the buddy's pool, the slab and global heap
// layer on top, and a fresh page table (which installs its recursive
// self-reference when it is constructed) identity-maps the kernel image
// and any fixed MMIO windows before the table is switched to.
package boot

import (
	"vmkernel/kernel"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/allocator"
	"vmkernel/kernel/mem/heap"
	"vmkernel/kernel/mem/pmm"
	"vmkernel/kernel/mem/vmm"
)

// ErrNoUsableRegion is returned when regions contains no region large
// enough to serve as the pool, once the kernel image is trimmed out.
var ErrNoUsableRegion = &kernel.Error{Module: "boot", Message: "no usable memory region for the allocator pool"}

// Result holds the handles the rest of the kernel needs after
// Bootstrap runs: the heap for ordinary allocation, and the active
// page table for further mapping.
type Result struct {
	Heap  *heap.GlobalHeap
	Table *vmm.PageTable
}

// Bootstrap selects a physical memory pool from regions, builds the
// buddy and slab allocators over it, constructs a fresh page table
// (with its recursive self-reference already installed), identity-maps
// the kernel image, every entry in mmio and the pool itself, and
// switches the CPU to the new table.
func Bootstrap(regions pmm.MemoryRegions, image pmm.KernelImageExtents, mmio []pmm.MmioMapping) (*Result, error) {
	base, length, ok := pmm.SelectPool(regions, image, pmm.DefaultPoolCap)
	if !ok {
		return nil, ErrNoUsableRegion
	}

	buddy := allocator.NewBuddyAllocator(base, length)
	h := heap.New(buddy)

	table, err := vmm.New(buddy)
	if err != nil {
		return nil, err
	}

	if err := table.MapRangeIdentity(image.Start, image.End, vmm.FlagPresent|vmm.FlagRW); err != nil {
		return nil, err
	}
	for _, m := range mmio {
		frameAddr := m.Frame.Address()
		if err := table.MapRangeIdentity(frameAddr, frameAddr+uintptr(mem.PageSize), vmm.PageTableEntryFlag(m.Flags)); err != nil {
			return nil, err
		}
	}
	if err := table.MapRangeIdentity(base, base+uintptr(length), vmm.FlagPresent|vmm.FlagRW); err != nil {
		return nil, err
	}

	table.Activate()

	return &Result{Heap: h, Table: table}, nil
}
