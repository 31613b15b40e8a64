package allocator

import (
	"vmkernel/kernel"
	"vmkernel/kernel/kfmt"
	"vmkernel/kernel/mem"
)

// ErrOutOfMemory is returned by Allocate when no block of the
// requested size is available anywhere in the pool.
var ErrOutOfMemory = &kernel.Error{Module: "buddy", Message: "out of memory"}

// errInvalidFree and errCorruptFreeSet are fatal: they indicate a
// programmer error (freeing an address the allocator never handed
// out) or a corrupted bitmap, and are routed to kfmt.Panic rather than
// returned, matching the kernel's InvalidFree policy.
var (
	errInvalidFree    = &kernel.Error{Module: "buddy", Message: "free of address outside pool or not currently allocated"}
	errCorruptFreeSet = &kernel.Error{Module: "buddy", Message: "corrupted buddy free set"}
	errMetaExhausted  = &kernel.Error{Module: "buddy", Message: "bookkeeping arena undersized for pool"}
)

// noLevel marks an allocLevel entry that is not the first frame of a
// currently live allocation.
const noLevel = 0xFF

// BuddyAllocator owns a contiguous physical region, carved into
// power-of-two blocks of 4 KiB frames, and hands them out with
// buddy-merging on free. The usable pool is rounded DOWN to the
// largest power-of-two multiple of the frame size that fits in the
// region handed to NewBuddyAllocator, so that the single top-level
// free block always covers real, in-bounds memory.
//
// The allocator's own bookkeeping - the per-level free bitmaps and the
// per-frame allocation levels - is carved out of a single BumpArena
// sized up front from frameCount, rather than allocated as one make()
// per array.
type BuddyAllocator struct {
	poolBase   uintptr
	frameCount uint64 // power of two; total usable frames
	levelCount int    // L

	// freeStack[level] is a LIFO stack of block indices that may
	// contain stale entries already removed by isFree[level][idx]
	// going false (lazy deletion keeps merge/free O(1) amortized
	// instead of requiring an O(n) scan-and-remove).
	freeStack [][]uint64
	isFree    [][]byte
	mergeMark [][]byte

	// allocLevel[frameNumber] records the level a block starting at
	// frameNumber was cut at; noLevel means that frame is not the
	// first frame of a currently live allocation.
	allocLevel []byte

	meta *BumpArena

	freeBytes mem.Size
}

// NewBuddyAllocator builds an allocator over the largest power-of-two
// aligned sub-range of [base, base+total) expressible in whole frames.
func NewBuddyAllocator(base uintptr, total mem.Size) *BuddyAllocator {
	totalFrames := uint64(total) / uint64(mem.PageSize)
	if totalFrames == 0 {
		totalFrames = 1
	}
	frameCount := uint64(1) << mem.Log2(totalFrames)
	levelCount := int(mem.Log2(frameCount)) + 1

	var metaSize uintptr
	for l := 0; l < levelCount; l++ {
		metaSize += 2 * uintptr(frameCount>>uint(l))
	}
	metaSize += uintptr(frameCount)
	meta := NewBumpArenaOverBuffer(make([]byte, metaSize))

	b := &BuddyAllocator{
		poolBase:   base,
		frameCount: frameCount,
		levelCount: levelCount,
		freeStack:  make([][]uint64, levelCount),
		isFree:     make([][]byte, levelCount),
		mergeMark:  make([][]byte, levelCount),
		meta:       meta,
		freeBytes:  mem.Size(frameCount) * mem.PageSize,
	}
	for l := 0; l < levelCount; l++ {
		blocks := uintptr(frameCount >> uint(l))
		b.isFree[l] = b.carveMeta(blocks)
		b.mergeMark[l] = b.carveMeta(blocks)
	}
	b.allocLevel = b.carveMeta(uintptr(frameCount))
	for i := range b.allocLevel {
		b.allocLevel[i] = noLevel
	}

	b.pushFree(levelCount-1, 0)
	return b
}

func (b *BuddyAllocator) carveMeta(n uintptr) []byte {
	buf, err := b.meta.CarveBytes(n)
	if err != nil {
		kfmt.Panic(errMetaExhausted)
	}
	return buf
}

// PoolBase returns the first usable physical address.
func (b *BuddyAllocator) PoolBase() uintptr { return b.poolBase }

// TotalBytes returns the total usable pool size.
func (b *BuddyAllocator) TotalBytes() mem.Size {
	return mem.Size(b.frameCount) * mem.PageSize
}

// FreeBytes returns the number of bytes currently free across all
// levels; a diagnostics accessor, not required by any invariant.
func (b *BuddyAllocator) FreeBytes() mem.Size { return b.freeBytes }

func blockSize(level int) mem.Size {
	return mem.Size(uint64(1)<<uint(level)) * mem.PageSize
}

// levelFor returns the smallest level l with blockSize(l) >= max(size, F).
func (b *BuddyAllocator) levelFor(size mem.Size) int {
	if size < mem.PageSize {
		size = mem.PageSize
	}
	framesNeeded := (uint64(size) + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	framesP2 := mem.NextPowerOfTwo(framesNeeded)
	return int(mem.Log2(framesP2))
}

// Allocate returns the address of a block of at least size bytes,
// rounded up to the smallest serviceable power-of-two run of frames.
func (b *BuddyAllocator) Allocate(size mem.Size) (uintptr, error) {
	level := b.levelFor(size)
	if level >= b.levelCount {
		return 0, ErrOutOfMemory
	}

	blockIdx, ok := b.takeBlock(level)
	if !ok {
		return 0, ErrOutOfMemory
	}

	firstFrame := blockIdx << uint(level)
	b.allocLevel[firstFrame] = byte(level)
	b.freeBytes -= blockSize(level)

	return b.poolBase + uintptr(firstFrame)*uintptr(mem.PageSize), nil
}

// takeBlock returns a free block at exactly `level`, splitting a
// larger block if necessary.
func (b *BuddyAllocator) takeBlock(level int) (uint64, bool) {
	if idx, ok := b.popFree(level); ok {
		return idx, true
	}

	for l := level + 1; l < b.levelCount; l++ {
		parent, ok := b.popFree(l)
		if !ok {
			continue
		}
		// Split parent down to `level`: at each intermediate level the
		// right half is pushed to the free set, the left half
		// continues splitting. The final left half, at `level`, is
		// handed back unsplit and un-enqueued.
		block := parent
		for i := l - 1; i >= level; i-- {
			left := block * 2
			right := block*2 + 1
			b.pushFree(i, right)
			block = left
		}
		return block, true
	}

	return 0, false
}

func (b *BuddyAllocator) pushFree(level int, idx uint64) {
	b.freeStack[level] = append(b.freeStack[level], idx)
	b.isFree[level][idx] = 1
}

func (b *BuddyAllocator) popFree(level int) (uint64, bool) {
	stack := b.freeStack[level]
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b.isFree[level][idx] != 0 {
			b.isFree[level][idx] = 0
			b.freeStack[level] = stack
			return idx, true
		}
	}
	b.freeStack[level] = stack
	return 0, false
}

// removeFree drops idx from level's free set without returning it
// (used when a free buddy is consumed by a merge rather than handed
// out by an allocation).
func (b *BuddyAllocator) removeFree(level int, idx uint64) {
	b.isFree[level][idx] = 0
}

// Free releases the block previously returned by Allocate at addr.
// It panics (via kfmt.Panic) if addr is outside the pool or was not
// the start of a currently live allocation: both are programmer
// errors, not recoverable conditions.
func (b *BuddyAllocator) Free(addr uintptr) {
	total := uintptr(b.frameCount) * uintptr(mem.PageSize)
	if addr < b.poolBase || addr >= b.poolBase+total {
		kfmt.Panic(errInvalidFree)
		return
	}

	firstFrame := uint64(addr-b.poolBase) / uint64(mem.PageSize)
	level := b.allocLevel[firstFrame]
	if level == noLevel {
		kfmt.Panic(errInvalidFree)
		return
	}
	b.allocLevel[firstFrame] = noLevel
	b.freeBytes += blockSize(int(level))

	b.mergeUp(int(level), firstFrame>>uint(level))
}

func (b *BuddyAllocator) mergeUp(level int, blockIdx uint64) {
	for level < b.levelCount-1 {
		buddyIdx := blockIdx ^ 1
		if b.isFree[level][buddyIdx] == 0 || b.mergeMark[level][blockIdx] != 0 || b.mergeMark[level][buddyIdx] != 0 {
			break
		}

		b.mergeMark[level][blockIdx] = 1
		b.mergeMark[level][buddyIdx] = 1
		b.removeFree(level, buddyIdx)
		b.mergeMark[level][blockIdx] = 0
		b.mergeMark[level][buddyIdx] = 0

		blockIdx >>= 1
		level++
	}

	if level >= b.levelCount || blockIdx >= uint64(len(b.isFree[level])) {
		kfmt.Panic(errCorruptFreeSet)
		return
	}
	b.pushFree(level, blockIdx)
}
