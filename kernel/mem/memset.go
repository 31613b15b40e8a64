package mem

import "unsafe"

// Memset fills size bytes starting at addr with value. The page-table
// layer uses it to zero a freshly allocated intermediate table frame
// before linking it in, so a stale frame's old entries never leak into
// a new table; the kernel has no runtime-provided memclr to rely on,
// so this is a plain byte loop over an unsafe.Pointer, matching how a
// freestanding kernel touches raw physical memory.
func Memset(addr uintptr, value byte, size Size) {
	p := (*[1 << 30]byte)(unsafe.Pointer(addr))
	for i := Size(0); i < size; i++ {
		p[i] = value
	}
}
