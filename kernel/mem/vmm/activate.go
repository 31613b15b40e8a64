package vmm

import "vmkernel/kernel/cpu"

// Activate installs pt as the CPU's active top-level page table.
func (pt *PageTable) Activate() {
	cpu.SwitchPDT(pt.l4.Address())
}
