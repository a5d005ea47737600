package bus

import (
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/timing/latency"
)

// RAM is the backing memory target. Reads cost the configured first-word
// latency plus a per-word cost for bursts.
type RAM struct {
	memory *emu.Memory
	size   uint32
	timing *latency.TimingConfig
}

// NewRAM creates a RAM target of size bytes.
func NewRAM(size uint32, timing *latency.TimingConfig) *RAM {
	return &RAM{
		memory: emu.NewMemoryWindow(0, uint64(size)),
		size:   size,
		timing: timing,
	}
}

// Memory exposes the RAM contents.
func (r *RAM) Memory() *emu.Memory {
	return r.memory
}

// Size returns the RAM size in bytes.
func (r *RAM) Size() uint32 {
	return r.size
}

// ReadWord implements Target.
func (r *RAM) ReadWord(offset uint32, _ uint8) uint32 {
	return r.memory.Read32(offset)
}

// WriteWord implements Target.
func (r *RAM) WriteWord(offset uint32, data uint32, mask uint8) {
	r.memory.WriteMasked(offset, data, mask)
}

// Latency implements Target.
func (r *RAM) Latency(words int) uint64 {
	return r.timing.RAMCycles(words)
}

// Peek implements Debugger.
func (r *RAM) Peek(offset uint32) uint32 {
	return r.memory.Read32(offset)
}

// Poke implements Debugger.
func (r *RAM) Poke(offset uint32, data uint32, mask uint8) {
	r.memory.WriteMasked(offset, data, mask)
}
