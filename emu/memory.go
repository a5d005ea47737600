package emu

import (
	"encoding/binary"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// AddressSpaceSize covers the full 32-bit address space.
const AddressSpaceSize = uint64(1) << 32

// Memory is a flat little-endian byte-addressable memory. Pages are
// allocated by the akita storage on first touch.
type Memory struct {
	storage *mem.Storage
	base    uint32
}

// NewMemory creates a memory covering the whole 32-bit address space.
func NewMemory() *Memory {
	return &Memory{storage: mem.NewStorage(AddressSpaceSize)}
}

// NewMemoryWindow creates a memory holding size bytes visible at base.
// Addresses are translated to offsets inside the window.
func NewMemoryWindow(base uint32, size uint64) *Memory {
	return &Memory{storage: mem.NewStorage(size), base: base}
}

// Storage exposes the underlying akita storage.
func (m *Memory) Storage() *mem.Storage {
	return m.storage
}

// ReadBytes reads n bytes. Bytes outside the storage read as zero.
func (m *Memory) ReadBytes(addr uint32, n int) []byte {
	data, err := m.storage.Read(uint64(addr-m.base), uint64(n))
	if err != nil {
		return make([]byte, n)
	}
	return data
}

// WriteBytes writes data. Bytes outside the storage are dropped.
func (m *Memory) WriteBytes(addr uint32, data []byte) {
	_ = m.storage.Write(uint64(addr-m.base), data)
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) uint8 {
	return m.ReadBytes(addr, 1)[0]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, v uint8) {
	m.WriteBytes(addr, []byte{v})
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint32) uint16 {
	return binary.LittleEndian.Uint16(m.ReadBytes(addr, 2))
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	m.WriteBytes(addr, b[:])
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(m.ReadBytes(addr, 4))
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.WriteBytes(addr, b[:])
}

// WriteMasked writes the byte lanes of a word selected by mask. Bit i of
// the mask enables byte i of the word.
func (m *Memory) WriteMasked(addr uint32, v uint32, mask uint8) {
	if mask == 0xF {
		m.Write32(addr, v)
		return
	}
	for i := uint32(0); i < 4; i++ {
		if mask&(1<<i) != 0 {
			m.Write8(addr+i, uint8(v>>(8*i)))
		}
	}
}

// LoadWords writes consecutive words starting at addr.
func (m *Memory) LoadWords(addr uint32, words []uint32) {
	for i, w := range words {
		m.Write32(addr+uint32(i)*4, w)
	}
}
