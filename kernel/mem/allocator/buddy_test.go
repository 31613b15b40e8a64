package allocator

import (
	"math/rand"
	"testing"

	"vmkernel/kernel/mem"
)

const poolBase = uintptr(0x10_0000)

func TestFullPoolAllocateFreeReallocate(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)

	a, err := b.Allocate(64 * mem.Kb)
	if err != nil || a != poolBase {
		t.Fatalf("a = %x, %v; want %x, nil", a, err, poolBase)
	}
	b.Free(a)

	c, err := b.Allocate(64 * mem.Kb)
	if err != nil || c != poolBase {
		t.Fatalf("c = %x, %v; want %x, nil", c, err, poolBase)
	}
}

func TestBuddySplitOnHalves(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)

	a, err := b.Allocate(32 * mem.Kb)
	if err != nil || a != poolBase {
		t.Fatalf("a = %x, %v", a, err)
	}
	bAddr, err := b.Allocate(32 * mem.Kb)
	if err != nil || bAddr != poolBase+32*1024 {
		t.Fatalf("b = %x, %v", bAddr, err)
	}

	b.Free(a)
	b.Free(bAddr)

	c, err := b.Allocate(64 * mem.Kb)
	if err != nil || c != poolBase {
		t.Fatalf("c = %x, %v; want %x", c, err, poolBase)
	}
}

func TestSixteenFrameAllocationsAreDistinct(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)

	seen := map[uintptr]bool{}
	for i := 0; i < 16; i++ {
		addr, err := b.Allocate(4096)
		if err != nil {
			t.Fatalf("allocate %d failed: %v", i, err)
		}
		if addr < poolBase || addr >= poolBase+64*1024 {
			t.Fatalf("addr %x out of pool", addr)
		}
		if addr%4096 != 0 {
			t.Fatalf("addr %x not frame-aligned", addr)
		}
		if seen[addr] {
			t.Fatalf("addr %x returned twice", addr)
		}
		seen[addr] = true
	}

	if _, err := b.Allocate(4096); err != ErrOutOfMemory {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
}

func TestAllocateRoundsSizeUpToFrame(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)
	a, err := b.Allocate(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a%uintptr(mem.PageSize) != 0 {
		t.Fatalf("expected frame-aligned result for sub-frame request")
	}
}

func TestAllocateTooLargeFails(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)
	if _, err := b.Allocate(128 * mem.Kb); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestFreeThenAllocateRestoresWholePool(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)

	var addrs []uintptr
	for i := 0; i < 16; i++ {
		a, err := b.Allocate(4096)
		if err != nil {
			t.Fatalf("allocate failed: %v", err)
		}
		addrs = append(addrs, a)
	}
	for _, a := range addrs {
		b.Free(a)
	}

	if b.FreeBytes() != 64*mem.Kb {
		t.Fatalf("expected whole pool free, got %d", b.FreeBytes())
	}

	whole, err := b.Allocate(64 * mem.Kb)
	if err != nil || whole != poolBase {
		t.Fatalf("whole = %x, %v; want %x", whole, err, poolBase)
	}
}

// TestPropertyRandomizedAllocateFreeDisjointAndTiled is a property test
// over a random interleaving of allocate/free: a new allocation never
// overlaps a live one, at the end of each trial the allocator's free
// bytes plus the live bytes equal the pool size, and once every live
// block is freed the whole pool is free again.
func TestPropertyRandomizedAllocateFreeDisjointAndTiled(t *testing.T) {
	const poolSize = 1 * mem.Mb
	b := NewBuddyAllocator(poolBase, poolSize)

	type liveBlock struct{ addr, size uintptr }
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		live := map[uintptr]liveBlock{}

		ops := 60 + rng.Intn(60)
		for i := 0; i < ops; i++ {
			if len(live) > 0 && rng.Intn(3) == 0 {
				var victim uintptr
				for a := range live {
					victim = a
					break
				}
				b.Free(victim)
				delete(live, victim)
				continue
			}

			sizeFrames := uintptr(1) << uint(rng.Intn(6))
			size := mem.Size(sizeFrames) * mem.PageSize
			addr, err := b.Allocate(size)
			if err != nil {
				continue
			}

			blockSize := uintptr(mem.NextPowerOfTwo(uint64(sizeFrames))) * uintptr(mem.PageSize)
			for existingAddr, existing := range live {
				overlap := addr < existingAddr+existing.size && existingAddr < addr+blockSize
				if overlap {
					t.Fatalf("trial %d: new block [%x,%x) overlaps live block [%x,%x)",
						trial, addr, addr+blockSize, existingAddr, existingAddr+existing.size)
				}
			}
			live[addr] = liveBlock{addr: addr, size: blockSize}
		}

		var totalLive mem.Size
		for _, blk := range live {
			totalLive += mem.Size(blk.size)
		}
		if b.FreeBytes()+totalLive != poolSize {
			t.Fatalf("trial %d: free bytes %d + live bytes %d != pool size %d",
				trial, b.FreeBytes(), totalLive, poolSize)
		}

		for addr := range live {
			b.Free(addr)
		}
		if b.FreeBytes() != poolSize {
			t.Fatalf("trial %d: pool not fully reclaimed, free bytes = %d", trial, b.FreeBytes())
		}
	}
}

func TestFreeBytesAccounting(t *testing.T) {
	b := NewBuddyAllocator(poolBase, 64*mem.Kb)
	if b.FreeBytes() != 64*mem.Kb {
		t.Fatalf("got %d", b.FreeBytes())
	}
	a, _ := b.Allocate(16 * mem.Kb)
	if b.FreeBytes() != 48*mem.Kb {
		t.Fatalf("got %d", b.FreeBytes())
	}
	b.Free(a)
	if b.FreeBytes() != 64*mem.Kb {
		t.Fatalf("got %d", b.FreeBytes())
	}
}
