package pmm

import "vmkernel/kernel/mem"

// RegionKind classifies a physical memory region as reported by the
// boot collaborator's memory map.
type RegionKind uint8

const (
	Usable RegionKind = iota
	Reserved
)

// MemoryRegion is one entry of the boot-time physical memory map.
type MemoryRegion struct {
	PhysBase uintptr
	Length   mem.Size
	Kind     RegionKind
}

// End returns the address one past the last byte of the region.
func (r MemoryRegion) End() uintptr {
	return r.PhysBase + uintptr(r.Length)
}

// Overlaps reports whether [start, end) intersects the region.
func (r MemoryRegion) Overlaps(start, end uintptr) bool {
	return start < r.End() && end > r.PhysBase
}

// MemoryRegions is the boot collaborator's full memory map, in no
// particular order.
type MemoryRegions []MemoryRegion

// KernelImageExtents describes the physical footprint of the already
// loaded kernel image, which must never be handed out by the pool
// selector.
type KernelImageExtents struct {
	Start, End uintptr
}

// MmioMapping is a fixed physical-to-virtual mapping the boot
// collaborator requires installed verbatim (e.g. the VGA text buffer
// at 0xB8000), independent of anything the buddy allocator owns.
type MmioMapping struct {
	Frame Frame
	Flags uint64
}

// DefaultPoolCap is the default implementation limit (30 MiB) applied
// by SelectPool when the caller does not override it. It bounds
// buddy/slab metadata size, not a hardware limit; SelectPool's caller
// can pass any cap, including 0 for "no cap".
const DefaultPoolCap = 30 * mem.Mb

// SelectPool picks the largest Usable region that does not overlap the
// kernel image, trims it to at most capBytes (0 means unbounded), and
// returns its (base, length) aligned to whole frames. It returns ok =
// false if no usable region exists.
func SelectPool(regions MemoryRegions, kernel KernelImageExtents, capBytes mem.Size) (base uintptr, length mem.Size, ok bool) {
	var bestBase uintptr
	var bestLen mem.Size

	for _, r := range regions {
		if r.Kind != Usable {
			continue
		}

		base, length, usable := trimAgainstKernelImage(r, kernel)
		if !usable {
			continue
		}
		if length > bestLen {
			bestBase, bestLen = base, length
		}
	}

	if bestLen == 0 {
		return 0, 0, false
	}

	if capBytes != 0 && bestLen > capBytes {
		bestLen = capBytes
	}

	alignedBase := mem.AlignUp(bestBase, uintptr(mem.PageSize))
	shrink := mem.Size(alignedBase - bestBase)
	if shrink > bestLen {
		return 0, 0, false
	}
	bestLen -= shrink
	bestLen = mem.Size(mem.AlignDown(uintptr(bestLen), uintptr(mem.PageSize)))
	if bestLen == 0 {
		return 0, 0, false
	}

	return alignedBase, bestLen, true
}

// trimAgainstKernelImage removes the portion of r that overlaps the
// kernel image, keeping whichever remaining sub-range (before or
// after the image) is larger. A region entirely consumed by the image
// is reported unusable.
func trimAgainstKernelImage(r MemoryRegion, k KernelImageExtents) (base uintptr, length mem.Size, ok bool) {
	if !r.Overlaps(k.Start, k.End) {
		return r.PhysBase, r.Length, true
	}

	var beforeLen, afterLen mem.Size
	if k.Start > r.PhysBase {
		beforeLen = mem.Size(k.Start - r.PhysBase)
	}
	if r.End() > k.End {
		afterLen = mem.Size(r.End() - k.End)
	}

	if afterLen >= beforeLen {
		if afterLen == 0 {
			return 0, 0, false
		}
		return k.End, afterLen, true
	}
	return r.PhysBase, beforeLen, true
}
