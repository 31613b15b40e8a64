package slab

import (
	"testing"

	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/allocator"
)

const poolBase = uintptr(0x40_0000)

func newTestSlab() (*SlabAllocator, *allocator.BuddyAllocator) {
	b := allocator.NewBuddyAllocator(poolBase, 1*mem.Mb)
	return New(b), b
}

func TestClassIndexRounding(t *testing.T) {
	cases := map[mem.Size]int{
		1:    0, // -> 32B class
		32:   0,
		33:   1, // -> 64B class
		100:  2, // -> 128B class
		2048: 6, // -> 2048B class, the last one
	}
	for size, want := range cases {
		if got := classIndex(size); got != want {
			t.Errorf("classIndex(%d) = %d, want %d", size, got, want)
		}
	}
	if got := classIndex(4096); got != -1 {
		t.Errorf("classIndex(4096) = %d, want -1 (delegate to frame source)", got)
	}
}

func TestSlabSizeClassAllocatesLIFO(t *testing.T) {
	s, _ := newTestSlab()

	p, err := s.Allocate(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p%128 != 0 {
		t.Fatalf("expected 128-aligned cell, got %x", p)
	}

	s.Free(p, 100)
	p2, err := s.Allocate(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p2 != p {
		t.Fatalf("expected LIFO reuse of %x, got %x", p, p2)
	}
}

func TestSlabFrameReclamation(t *testing.T) {
	s, buddy := newTestSlab()

	const n = int(mem.PageSize) / 128
	addrs := make([]uintptr, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.Allocate(100)
		if err != nil {
			t.Fatalf("allocate %d failed: %v", i, err)
		}
		addrs = append(addrs, p)
	}

	freeBeforeReclaim := buddy.FreeBytes()
	for _, p := range addrs {
		s.Free(p, 100)
	}
	if buddy.FreeBytes() != freeBeforeReclaim+mem.PageSize {
		t.Fatalf("expected the drained slab frame to return to the buddy")
	}

	frame, err := buddy.Allocate(mem.PageSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame != mem.AlignDown(addrs[0], uintptr(mem.PageSize)) {
		t.Fatalf("expected reclaimed frame %x to be handed back out, got %x",
			mem.AlignDown(addrs[0], uintptr(mem.PageSize)), frame)
	}
}

func TestInvariantLiveCellsBoundedByCapacity(t *testing.T) {
	s, _ := newTestSlab()
	k := classIndex(100)

	for i := 0; i < 10; i++ {
		if _, err := s.Allocate(100); err != nil {
			t.Fatalf("allocate %d failed: %v", i, err)
		}
	}

	capacityPerFrame := int(mem.PageSize) / int(classCellSize(k))
	if live, cap := s.LiveCells(k), s.FrameCount(k)*capacityPerFrame; live > cap {
		t.Fatalf("live cells %d exceeds capacity %d", live, cap)
	}
}

func TestLargeAllocationBypassesSlab(t *testing.T) {
	s, buddy := newTestSlab()
	free := buddy.FreeBytes()

	p, err := s.Allocate(8192)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buddy.FreeBytes() == free {
		t.Fatalf("expected a large allocation to draw directly from the buddy")
	}
	s.Free(p, 8192)
	if buddy.FreeBytes() != free {
		t.Fatalf("expected buddy free bytes restored after large free")
	}
}
