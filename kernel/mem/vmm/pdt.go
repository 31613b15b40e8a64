package vmm

import (
	"unsafe"

	"vmkernel/kernel/cpu"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/pmm"
)

// WithForeign runs action against the address space rooted at
// foreignL4 by temporarily redirecting pt's own recursive slot (entry
// 511 of pt's L4) to point at foreignL4, following the nine-step
// protocol: save the current self-reference, install a fresh
// self-reference on the foreign table, redirect pt's recursive slot to
// the foreign frame, run action, then restore pt's original
// self-reference. At no point does the running CPU end up without a
// valid recursive entry reachable from its active table.
func (pt *PageTable) WithForeign(foreignL4 pmm.Frame, action func(foreign *PageTable) error) error {
	currentTable := tableOf(pt.l4)

	// 1. Save the current L4's own self-reference.
	savedRecursiveEntry := currentTable[recursiveIndex]

	// 2-3. Zero the foreign L4 and install its own self-reference so
	// that it is a well-formed L4 in its own right once addressed.
	foreignTable := tableOf(foreignL4)
	mem.Memset(uintptr(unsafe.Pointer(foreignTable)), 0, mem.Size(unsafe.Sizeof(*foreignTable)))
	foreignTable[recursiveIndex] = newEntry(foreignL4, FlagPresent|FlagRW)

	// 4. (unmap scratch A2 — no-op: tableOf holds content directly.)

	// 5. Redirect the current L4's recursive slot to the foreign frame.
	currentTable[recursiveIndex] = newEntry(foreignL4, FlagPresent|FlagRW)

	// 6. The magic recursive address now aliases the foreign table.
	cpu.FlushTLBAll()

	// 7. Run the caller's action against the now-aliased foreign table.
	foreign := &PageTable{l4: foreignL4, src: pt.src}
	err := action(foreign)

	// 8. Restore the current L4's self-reference (written directly:
	// tableOf holds content, so no scratch mapping A1 is used).
	currentTable[recursiveIndex] = savedRecursiveEntry

	// 9. (unmap scratch A1 — no-op.)
	cpu.FlushTLBAll()

	return err
}
