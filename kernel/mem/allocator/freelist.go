package allocator

import "vmkernel/kernel"

// ErrFreeListExhausted is returned when a FreeList's backing arena has
// no room left for another cell.
var ErrFreeListExhausted = &kernel.Error{Module: "free_list", Message: "free list exhausted"}

// FreeList hands out fixed-size cells from a BumpArena, reusing freed
// cells LIFO before bumping the arena for a fresh one. The slab
// allocator anchors one at the base of each slab frame to hand out
// that frame's fixed-size cells.
type FreeList struct {
	arena      *BumpArena
	cellSize   uintptr
	cellCount  uintptr
	freeCells  []uintptr
	bumped     uintptr
}

// NewFreeList creates a FreeList for cellCount cells of cellSize bytes
// each, backed by a freshly sized BumpArena anchored at base.
func NewFreeList(base uintptr, cellSize, cellCount uintptr) *FreeList {
	return &FreeList{
		arena:     NewBumpArena(base, cellSize*cellCount),
		cellSize:  cellSize,
		cellCount: cellCount,
	}
}

// AllocateCell returns the address of a free cell.
func (f *FreeList) AllocateCell() (uintptr, error) {
	if n := len(f.freeCells); n > 0 {
		addr := f.freeCells[n-1]
		f.freeCells = f.freeCells[:n-1]
		return addr, nil
	}

	addr, err := f.arena.Allocate(f.cellSize)
	if err != nil {
		return 0, ErrFreeListExhausted
	}
	f.bumped++
	return addr, nil
}

// FreeCell returns a previously allocated cell to the list.
func (f *FreeList) FreeCell(addr uintptr) {
	f.freeCells = append(f.freeCells, addr)
}

// FullyFree reports whether every cell ever bumped off the arena is
// currently on the free stack, i.e. nothing is live.
func (f *FreeList) FullyFree() bool {
	return uintptr(len(f.freeCells)) == f.bumped
}

// CellSize returns the fixed cell size.
func (f *FreeList) CellSize() uintptr { return f.cellSize }

// LiveCount returns the number of cells currently allocated: every
// cell ever bumped off the arena minus whatever is sitting on the
// free stack.
func (f *FreeList) LiveCount() int {
	return int(f.bumped) - len(f.freeCells)
}
