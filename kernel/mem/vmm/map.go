// Package vmm implements the recursive four-level page table: mapping,
// unmapping, translation and temporary foreign-address-space editing.
package vmm

import (
	"unsafe"

	"vmkernel/kernel"
	"vmkernel/kernel/cpu"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/pmm"
)

var (
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page already mapped"}
	ErrNotMapped     = &kernel.Error{Module: "vmm", Message: "virtual page not mapped"}
	ErrOutOfMemory   = &kernel.Error{Module: "vmm", Message: "out of memory allocating page table frame"}
)

// FrameSource supplies fresh frames for intermediate page tables
// (nextTableOrCreate zeroes them before use); satisfied by
// *allocator.BuddyAllocator.
type FrameSource interface {
	Allocate(size mem.Size) (uintptr, error)
	Free(addr uintptr)
}

// Page is a page-aligned virtual address.
type Page uintptr

// PageTable is a handle over one L4 frame. Map/Unmap/Translate operate
// directly on this L4's content, whether or not it is the CPU's
// currently active table (see tableOf).
type PageTable struct {
	l4  pmm.Frame
	src FrameSource
}

// New allocates a fresh L4 frame from src and wraps it, installing its
// recursive self-reference.
func New(src FrameSource) (*PageTable, error) {
	addr, err := src.Allocate(mem.PageSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	return NewFromFrame(pmm.FrameFromAddress(addr), src), nil
}

// NewFromFrame wraps an already allocated, zeroed L4 frame and installs
// its recursive self-reference.
func NewFromFrame(l4 pmm.Frame, src FrameSource) *PageTable {
	pt := &PageTable{l4: l4, src: src}
	table := tableOf(l4)
	table[recursiveIndex] = newEntry(l4, FlagPresent|FlagRW)
	return pt
}

// L4Frame returns the physical frame backing this table's L4.
func (pt *PageTable) L4Frame() pmm.Frame { return pt.l4 }

// nextTableOrCreate returns the child table at entry index of parent,
// allocating and zeroing a fresh frame via src if it is not yet
// present. Intermediate tables are always PRESENT|WRITABLE regardless
// of the caller's requested leaf flags.
func (pt *PageTable) nextTableOrCreate(parent *[512]pageTableEntry, index uintptr) (*[512]pageTableEntry, error) {
	entry := &parent[index]
	if entry.HasFlags(FlagPresent) {
		return tableOf(entry.Frame()), nil
	}

	addr, err := pt.src.Allocate(mem.PageSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	frame := pmm.FrameFromAddress(addr)
	child := tableOf(frame)
	mem.Memset(uintptr(unsafe.Pointer(child)), 0, mem.Size(unsafe.Sizeof(*child)))
	*entry = newEntry(frame, FlagPresent|FlagRW)
	return child, nil
}

// nextTableOrNil returns the child table at index of parent, or nil if
// the entry is not present. Never allocates.
func nextTableOrNil(parent *[512]pageTableEntry, index uintptr) *[512]pageTableEntry {
	entry := parent[index]
	if !entry.HasFlags(FlagPresent) {
		return nil
	}
	return tableOf(entry.Frame())
}

// Map installs virtPage -> frame with the given leaf flags, creating
// any missing intermediate tables.
func (pt *PageTable) Map(virtPage Page, frame pmm.Frame, flags PageTableEntryFlag) error {
	virtAddr := uintptr(virtPage)
	table := tableOf(pt.l4)

	for level := 0; level < pageLevels-1; level++ {
		next, err := pt.nextTableOrCreate(table, levelIndex(virtAddr, level))
		if err != nil {
			return err
		}
		table = next
	}

	l1Index := levelIndex(virtAddr, pageLevels-1)
	if table[l1Index].HasFlags(FlagPresent) {
		return ErrAlreadyMapped
	}
	table[l1Index] = newEntry(frame, flags|FlagPresent)
	return nil
}

// Unmap clears the mapping for virtPage, flushes its TLB entry and
// returns the frame that had been mapped there.
func (pt *PageTable) Unmap(virtPage Page) (pmm.Frame, error) {
	virtAddr := uintptr(virtPage)
	table := tableOf(pt.l4)

	for level := 0; level < pageLevels-1; level++ {
		next := nextTableOrNil(table, levelIndex(virtAddr, level))
		if next == nil {
			return pmm.InvalidFrame, ErrNotMapped
		}
		table = next
	}

	l1Index := levelIndex(virtAddr, pageLevels-1)
	entry := &table[l1Index]
	if !entry.HasFlags(FlagPresent) {
		return pmm.InvalidFrame, ErrNotMapped
	}

	frame := entry.Frame()
	*entry = 0
	cpu.FlushTLBEntry(virtAddr)
	return frame, nil
}

// MapRangeIdentity maps every page-aligned address in [start, end) to
// the physical frame of the same address.
func (pt *PageTable) MapRangeIdentity(start, end uintptr, flags PageTableEntryFlag) error {
	start = mem.AlignDown(start, uintptr(mem.PageSize))
	end = mem.AlignUp(end, uintptr(mem.PageSize))
	for addr := start; addr < end; addr += uintptr(mem.PageSize) {
		if err := pt.Map(Page(addr), pmm.FrameFromAddress(addr), flags); err != nil {
			return err
		}
	}
	return nil
}

// MapPagesN maps count consecutive pages starting at base to count
// consecutive frames starting at the frame of base.
func (pt *PageTable) MapPagesN(base Page, count int, flags PageTableEntryFlag) error {
	addr := uintptr(base)
	for i := 0; i < count; i++ {
		if err := pt.Map(Page(addr), pmm.FrameFromAddress(addr), flags); err != nil {
			return err
		}
		addr += uintptr(mem.PageSize)
	}
	return nil
}
