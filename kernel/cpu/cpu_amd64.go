// Package cpu exposes the small set of CPU primitives the memory
// subsystem depends on: interrupt masking, TLB control and the active
// page table register. On real hardware these would be single
// instructions (cli/sti, invlpg, mov cr3); here they have real Go
// bodies over simulated CPU state so the rest of the kernel is testable
// as ordinary Go code, while keeping the names and shapes a kernel
// built against real assembly would use.
package cpu

var (
	interruptsEnabled = true
	activePDT         uintptr

	flushedAddrs    []uintptr
	flushAllCount   int
	switchPDTCalls  int
)

// EnableInterrupts unmasks interrupts on this CPU.
func EnableInterrupts() {
	interruptsEnabled = true
}

// DisableInterrupts masks interrupts on this CPU and returns whether
// they were previously enabled, so callers can restore prior state.
func DisableInterrupts() bool {
	prev := interruptsEnabled
	interruptsEnabled = false
	return prev
}

// InterruptsEnabled reports whether interrupts are currently unmasked.
func InterruptsEnabled() bool {
	return interruptsEnabled
}

// Halt stops the CPU until the next interrupt. The simulated body is a
// no-op hook so tests can substitute their own behavior.
var Halt = func() {}

// FlushTLBEntry invalidates the TLB entry for virtAddr.
func FlushTLBEntry(virtAddr uintptr) {
	flushedAddrs = append(flushedAddrs, virtAddr)
}

// FlushTLBAll invalidates every TLB entry, simulating a CR3 reload.
func FlushTLBAll() {
	flushAllCount++
}

// SwitchPDT loads pdtPhysAddr as the active top-level page table
// address (simulating a write to CR3).
func SwitchPDT(pdtPhysAddr uintptr) {
	activePDT = pdtPhysAddr
	switchPDTCalls++
}

// ActivePDT returns the physical address of the currently active
// top-level page table (simulating a read from CR3).
func ActivePDT() uintptr {
	return activePDT
}

// ResetForTest restores simulated CPU state to its zero value. It
// exists only to keep tests independent of each other's CR3/TLB writes.
func ResetForTest() {
	interruptsEnabled = true
	activePDT = 0
	flushedAddrs = nil
	flushAllCount = 0
	switchPDTCalls = 0
}

// FlushedAddrsForTest returns the virtual addresses passed to
// FlushTLBEntry since the last ResetForTest.
func FlushedAddrsForTest() []uintptr {
	return flushedAddrs
}

// FlushAllCountForTest returns how many times FlushTLBAll has run
// since the last ResetForTest.
func FlushAllCountForTest() int {
	return flushAllCount
}
