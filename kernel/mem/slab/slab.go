// Package slab implements the size-classed small-object allocator that
// sits above a frame source (normally the buddy allocator): each size
// class caches fixed-size cells inside whole frames, handing frames
// back to the frame source once every cell in them is free again.
package slab

import (
	"vmkernel/kernel"
	"vmkernel/kernel/kfmt"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/allocator"
)

// MinCellSize is S_0, the smallest size class.
const MinCellSize = 32

// ErrZeroSize is returned by Allocate(0, ...).
var ErrZeroSize = &kernel.Error{Module: "slab", Message: "zero-size allocation"}

// ErrOutOfMemory is returned when the underlying frame source cannot
// produce a fresh frame for a new slab.
var ErrOutOfMemory = &kernel.Error{Module: "slab", Message: "out of memory"}

var errInvalidFree = &kernel.Error{Module: "slab", Message: "free of address not owned by any slab frame"}

// FrameSource is the frame-granularity allocator slabs are built on
// top of; satisfied by *allocator.BuddyAllocator.
type FrameSource interface {
	Allocate(size mem.Size) (uintptr, error)
	Free(addr uintptr)
}

// classCount is K: the number of size classes from 32 B up to F/2.
func classCount() int {
	return int(mem.Log2(uint64(mem.PageSize)/2)) - int(mem.Log2(MinCellSize)) + 1
}

// classIndex returns the size class serving size, or -1 if size
// should be served directly by the frame source (size rounds up to
// F or larger).
func classIndex(size mem.Size) int {
	if size == 0 {
		return -1
	}
	rounded := mem.NextPowerOfTwo(uint64(size))
	if rounded < MinCellSize {
		rounded = MinCellSize
	}
	if rounded >= uint64(mem.PageSize) {
		return -1
	}
	return int(mem.Log2(rounded)) - int(mem.Log2(MinCellSize))
}

func classCellSize(k int) mem.Size {
	return mem.Size(MinCellSize) << uint(k)
}

// SlabAllocator is the size-classed allocator for objects smaller than
// a page; requests at or above page size are routed straight to src.
type SlabAllocator struct {
	src     FrameSource
	classes []slabClass
}

type slabClass struct {
	cellSize  uintptr
	nonFull   *slabFrame
	allFrames allocator.RangeTree[*slabFrame]
}

// slabFrame is a single frame from the frame source, subdivided into
// fixed-size cells. Cell bookkeeping is an allocator.FreeList anchored
// at the frame's base address, so cells are handed out in the same
// bump-then-LIFO-reuse order a FreeList gives any other fixed-size
// record.
type slabFrame struct {
	start, end uintptr
	cells      *allocator.FreeList
}

func newSlabFrame(addr uintptr, cellSize uintptr) *slabFrame {
	capacity := uintptr(mem.PageSize) / cellSize
	return &slabFrame{
		start: addr,
		end:   addr + uintptr(mem.PageSize),
		cells: allocator.NewFreeList(addr, cellSize, capacity),
	}
}

func (f *slabFrame) contains(p uintptr) bool { return p >= f.start && p < f.end }
func (f *slabFrame) isFullyFree() bool       { return f.cells.FullyFree() }

func (f *slabFrame) allocate() (uintptr, bool) {
	addr, err := f.cells.AllocateCell()
	if err != nil {
		return 0, false
	}
	return addr, true
}

func (f *slabFrame) free(addr uintptr) {
	f.cells.FreeCell(addr)
}

// New builds a SlabAllocator drawing fresh frames from src.
func New(src FrameSource) *SlabAllocator {
	s := &SlabAllocator{
		src:     src,
		classes: make([]slabClass, classCount()),
	}
	for k := range s.classes {
		s.classes[k].cellSize = uintptr(classCellSize(k))
	}
	return s
}

// Allocate returns a cell large enough for size bytes. Sizes above F/2
// (those that round up to F or larger) are served directly by the
// frame source.
func (s *SlabAllocator) Allocate(size mem.Size) (uintptr, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}

	k := classIndex(size)
	if k < 0 {
		addr, err := s.src.Allocate(size)
		if err != nil {
			return 0, err
		}
		return addr, nil
	}

	return s.allocateFromClass(k)
}

func (s *SlabAllocator) allocateFromClass(k int) (uintptr, error) {
	class := &s.classes[k]

	if class.nonFull != nil {
		if addr, ok := class.nonFull.allocate(); ok {
			return addr, nil
		}
	}

	frameAddr, err := s.src.Allocate(mem.PageSize)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	frame := newSlabFrame(frameAddr, class.cellSize)
	class.allFrames.Insert(frame.start, frame.end, frame)
	class.nonFull = frame

	addr, ok := frame.allocate()
	if !ok {
		// capacity is always >= 1 for any class cell size <= F/2
		kfmt.Panic(errInvalidFree)
	}
	return addr, nil
}

// Free releases addr. sizeHint, when known, avoids a lookup: 0 means
// "find the owning frame by address", and any value at or above page
// size routes straight to the frame source.
func (s *SlabAllocator) Free(addr uintptr, sizeHint mem.Size) {
	if sizeHint >= mem.PageSize {
		s.src.Free(addr)
		return
	}
	if sizeHint == 0 {
		for k := range s.classes {
			if s.freeFromClassIfOwned(k, addr) {
				return
			}
		}
		s.src.Free(addr)
		return
	}

	k := classIndex(sizeHint)
	if k < 0 {
		s.src.Free(addr)
		return
	}
	if !s.freeFromClassIfOwned(k, addr) {
		kfmt.Panic(errInvalidFree)
	}
}

func (s *SlabAllocator) freeFromClassIfOwned(k int, addr uintptr) bool {
	class := &s.classes[k]

	if class.nonFull != nil && class.nonFull.contains(addr) {
		class.nonFull.free(addr)
		s.reclaimIfDrained(class, class.nonFull)
		return true
	}

	frame, ok := class.allFrames.FindContaining(addr)
	if !ok {
		return false
	}
	frame.free(addr)
	s.reclaimIfDrained(class, frame)
	return true
}

func (s *SlabAllocator) reclaimIfDrained(class *slabClass, frame *slabFrame) {
	if !frame.isFullyFree() {
		return
	}
	class.allFrames.Delete(frame.start)
	if class.nonFull == frame {
		class.nonFull = nil
	}
	s.src.Free(frame.start)
}

// LiveCells reports the number of currently allocated cells in class k.
func (s *SlabAllocator) LiveCells(k int) int {
	class := &s.classes[k]
	total := 0
	class.allFrames.Walk(func(f *slabFrame) {
		total += f.cells.LiveCount()
	})
	return total
}

// FrameCount reports the number of frames currently backing class k.
func (s *SlabAllocator) FrameCount(k int) int {
	return s.classes[k].allFrames.Len()
}
