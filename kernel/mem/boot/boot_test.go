package boot

import (
	"testing"

	"vmkernel/kernel/cpu"
	"vmkernel/kernel/mem"
	"vmkernel/kernel/mem/pmm"
	"vmkernel/kernel/mem/vmm"
)

func TestBootstrapMapsImageAndMmio(t *testing.T) {
	vmm.ResetForTest()
	cpu.ResetForTest()

	regions := pmm.MemoryRegions{
		{PhysBase: 0x10_0000, Length: 16 * mem.Mb, Kind: pmm.Usable},
	}
	image := pmm.KernelImageExtents{Start: 0x10_0000, End: 0x20_0000}
	mmio := []pmm.MmioMapping{
		{Frame: pmm.FrameFromAddress(0xB8000), Flags: uint64(vmm.FlagPresent | vmm.FlagRW)},
	}

	res, err := Bootstrap(regions, image, mmio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, ok := res.Table.Translate(0x10_0123); !ok || got != 0x10_0123 {
		t.Fatalf("kernel image not identity-mapped: %x, %v", got, ok)
	}
	if got, ok := res.Table.Translate(0xB8042); !ok || got != 0xB8042 {
		t.Fatalf("mmio window not identity-mapped: %x, %v", got, ok)
	}

	p, err := res.Heap.Allocate(64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == 0 {
		t.Fatal("expected non-zero allocation")
	}
}

func TestBootstrapNoUsableRegion(t *testing.T) {
	vmm.ResetForTest()
	cpu.ResetForTest()

	_, err := Bootstrap(nil, pmm.KernelImageExtents{}, nil)
	if err != ErrNoUsableRegion {
		t.Fatalf("expected ErrNoUsableRegion, got %v", err)
	}
}
