package memory

import (
	"encoding/binary"
	"sync"

	"github.com/wippyai/nostr-wasm/errors"
)

// Region is the module's linear memory as exposed by the engine.
// wazero's api.Memory satisfies it.
type Region interface {
	// Size returns the current size in bytes.
	Size() uint32
	// Read returns a view over [offset, offset+byteCount) that aliases the memory.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Heap holds the current views over a Region.
type Heap struct {
	region Region
	u8     []byte
	mu     sync.RWMutex
}

// Bind creates a Heap over r and derives its views.
func Bind(r Region) *Heap {
	h := &Heap{region: r}
	h.Rebind()
	return h
}

// Rebind re-derives the byte and word views from the region.
// Offsets handed out before remain valid only if the region kept its contents.
func (h *Heap) Rebind() {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.region.Size()
	view, ok := h.region.Read(0, size)
	if !ok {
		view = nil
	}
	h.u8 = view
}

// Stale reports whether the region changed size since the last Rebind.
func (h *Heap) Stale() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return uint32(len(h.u8)) != h.region.Size()
}

// Size returns the size of the bound byte view.
func (h *Heap) Size() uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return uint32(len(h.u8))
}

// U8 returns the raw byte view. It aliases module memory.
func (h *Heap) U8() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.u8
}

func (h *Heap) span(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(h.u8)) {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length, uint32(len(h.u8)))
	}
	return h.u8[offset:end], nil
}

// View returns a slice aliasing [offset, offset+length).
func (h *Heap) View(offset, length uint32) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.span(offset, length)
}

// Slice returns a copy of [offset, offset+length).
func (h *Heap) Slice(offset, length uint32) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, err := h.span(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

// Set copies src into memory at offset.
func (h *Heap) Set(offset uint32, src []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, err := h.span(offset, uint32(len(src)))
	if err != nil {
		return err
	}
	copy(b, src)
	return nil
}

// Fill overwrites [offset, offset+length) with v.
func (h *Heap) Fill(offset, length uint32, v byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, err := h.span(offset, length)
	if err != nil {
		return err
	}
	for i := range b {
		b[i] = v
	}
	return nil
}

// CopyWithin moves size bytes from src to dst. The ranges may overlap.
func (h *Heap) CopyWithin(dst, src, size uint32) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	from, err := h.span(src, size)
	if err != nil {
		return err
	}
	to, err := h.span(dst, size)
	if err != nil {
		return err
	}
	copy(to, from) // copy is memmove
	return nil
}

// U32 reads the little-endian word containing addr. Like a Uint32Array index
// (addr >> 2), unaligned addresses round down to the word boundary.
func (h *Heap) U32(addr uint32) (uint32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, err := h.span(addr&^3, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// SetU32 writes a little-endian word at the word boundary containing addr.
func (h *Heap) SetU32(addr, v uint32) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, err := h.span(addr&^3, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}
