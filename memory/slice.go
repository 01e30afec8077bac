package memory

// Flat is a Region backed by a Go byte slice. It serves in-process cores and tests.
type Flat []byte

// NewFlat allocates a zeroed region of the given number of 64KiB pages.
func NewFlat(pages uint32) Flat {
	return make(Flat, int(pages)*PageSize)
}

// PageSize is the WebAssembly page size.
const PageSize = 65536

// Size implements Region.
func (f Flat) Size() uint32 { return uint32(len(f)) }

// Read implements Region.
func (f Flat) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(f)) {
		return nil, false
	}
	return f[offset:end], true
}
