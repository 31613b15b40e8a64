package vmm

import "vmkernel/kernel/mem/pmm"

// tableOf returns the 512-entry table backing frame, lazily creating
// a zeroed one on first reference. On real hardware this is exactly
// what the recursive-slot virtual address resolves to; here it stands
// in for that physical content directly, backing page tables with a
// real Go array rather than driving an MMU. Walk/map/unmap always go
// through tableOf rather than recursive virtual-address arithmetic,
// which is what lets the whole subsystem run and be tested as ordinary
// hosted Go code.
var tableStore = map[pmm.Frame]*[512]pageTableEntry{}

func tableOf(f pmm.Frame) *[512]pageTableEntry {
	t, ok := tableStore[f]
	if !ok {
		t = &[512]pageTableEntry{}
		tableStore[f] = t
	}
	return t
}

// ResetForTest clears all simulated page table frame content.
func ResetForTest() {
	tableStore = map[pmm.Frame]*[512]pageTableEntry{}
}
