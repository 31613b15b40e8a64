// Package allocator holds the low-level building blocks the buddy and
// slab allocators are carved out of: a monotonic bump arena and a
// fixed-cell free list built on top of it.
package allocator

import (
	"unsafe"

	"vmkernel/kernel"
)

// ErrOutOfArena is returned by BumpArena.Allocate when the requested
// size would run past the arena's end.
var ErrOutOfArena = &kernel.Error{Module: "bump_arena", Message: "out of arena"}

// BumpArena is a monotonic allocator over a fixed [base, end) byte
// range. It exists only to bootstrap the buddy and slab's metadata
// arrays, whose sizes are known up front from the pool size; it never
// grows and individual frees are no-ops.
type BumpArena struct {
	base   uintptr
	end    uintptr
	cursor uintptr

	// buf anchors the backing storage when the arena carves Go-managed
	// memory (CarveBytes) rather than addresses into physical memory;
	// nil for arenas built with NewBumpArena.
	buf []byte
}

// NewBumpArena creates an arena covering [base, base+size).
func NewBumpArena(base uintptr, size uintptr) *BumpArena {
	return &BumpArena{base: base, end: base + size, cursor: base}
}

// NewBumpArenaOverBuffer creates an arena whose address range is the
// backing array of buf, so CarveBytes can hand out Go byte slices that
// alias it. Used to carve bookkeeping arrays (bitmaps, level tables)
// out of a single allocation instead of one make() per array.
func NewBumpArenaOverBuffer(buf []byte) *BumpArena {
	base := uintptr(unsafe.Pointer(&buf[0]))
	return &BumpArena{base: base, end: base + uintptr(len(buf)), cursor: base, buf: buf}
}

// Allocate carves n bytes off the arena and returns their base address.
func (a *BumpArena) Allocate(n uintptr) (uintptr, error) {
	if a.cursor+n > a.end {
		return 0, ErrOutOfArena
	}
	addr := a.cursor
	a.cursor += n
	return addr, nil
}

// Free is a no-op: the bump arena never reclaims individual
// allocations. It exists to satisfy callers that treat allocators
// uniformly.
func (a *BumpArena) Free(uintptr) {}

// Reset rewinds the cursor back to base, invalidating every address
// previously handed out. Used only during arena teardown.
func (a *BumpArena) Reset() {
	a.cursor = a.base
}

// Base returns the arena's starting address.
func (a *BumpArena) Base() uintptr { return a.base }

// End returns the arena's exclusive end address.
func (a *BumpArena) End() uintptr { return a.end }

// Cursor returns the next address that would be handed out.
func (a *BumpArena) Cursor() uintptr { return a.cursor }

// Remaining returns the number of bytes still available.
func (a *BumpArena) Remaining() uintptr { return a.end - a.cursor }

// CarveBytes returns the next n bytes of the arena as a slice sharing
// the backing array passed to NewBumpArenaOverBuffer, advancing the
// cursor past them. It returns ErrOutOfArena if called on an arena
// built with NewBumpArena instead, since there is no backing slice to
// share.
func (a *BumpArena) CarveBytes(n uintptr) ([]byte, error) {
	if a.buf == nil {
		return nil, ErrOutOfArena
	}
	addr, err := a.Allocate(n)
	if err != nil {
		return nil, err
	}
	off := addr - a.base
	return a.buf[off : off+n : off+n], nil
}
