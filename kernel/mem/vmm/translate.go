package vmm

import "vmkernel/kernel/mem"

// Translate walks L4 down to L1 and returns the physical address
// virtAddr currently maps to, or ok=false at the first non-present
// entry. It never allocates.
func (pt *PageTable) Translate(virtAddr uintptr) (uintptr, bool) {
	table := tableOf(pt.l4)

	for level := 0; level < pageLevels-1; level++ {
		table = nextTableOrNil(table, levelIndex(virtAddr, level))
		if table == nil {
			return 0, false
		}
	}

	entry := table[levelIndex(virtAddr, pageLevels-1)]
	if !entry.HasFlags(FlagPresent) {
		return 0, false
	}

	offset := virtAddr & (uintptr(mem.PageSize) - 1)
	return entry.Frame().Address() + offset, true
}
