//go:build amd64

package mem

const (
	// PointerShift is log2(sizeof(uintptr)); used to convert a page
	// table entry index into a byte offset.
	PointerShift = 3

	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the fixed frame/page size, F in the allocator design.
	PageSize = Size(1 << PageShift)
)
