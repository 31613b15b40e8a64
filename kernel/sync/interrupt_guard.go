package sync

import "vmkernel/kernel/cpu"

// InterruptGuard masks interrupts for the lifetime of a non-reentrant
// call and restores the prior interrupt state on Release. The memory
// subsystem is not interrupt-safe: buddy/slab/page-table operations
// run to completion synchronously and must not be re-entered by an
// interrupt handler that itself allocates, so every entry point that
// can be reached from an interrupt context brackets its body with a
// guard:
//
//	g := sync.EnterCritical()
//	defer g.Release()
type InterruptGuard struct {
	prevEnabled bool
	released    bool
}

// EnterCritical disables interrupts and returns a guard that restores
// the previous state when released.
func EnterCritical() *InterruptGuard {
	prev := cpu.DisableInterrupts()
	return &InterruptGuard{prevEnabled: prev}
}

// Release restores the interrupt state captured by EnterCritical. It
// is safe to call more than once; only the first call has an effect.
func (g *InterruptGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	if g.prevEnabled {
		cpu.EnableInterrupts()
	}
}
