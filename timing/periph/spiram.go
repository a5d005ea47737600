package periph

import (
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/timing/latency"
)

// SPIRAMBanks is the number of serial RAM chips.
const SPIRAMBanks = 3

// SPIRAM is the triple-bank serial RAM controller. The window is split into
// equally sized banks, one per chip.
type SPIRAM struct {
	timing   *latency.TimingConfig
	bankSize uint32
	banks    [SPIRAMBanks]*emu.Memory
	accesses [SPIRAMBanks]uint64
}

// NewSPIRAM creates a controller with three banks of bankSize bytes.
func NewSPIRAM(bankSize uint32, timing *latency.TimingConfig) *SPIRAM {
	s := &SPIRAM{timing: timing, bankSize: bankSize}
	for i := range s.banks {
		s.banks[i] = emu.NewMemoryWindow(0, uint64(bankSize))
	}
	return s
}

// Size returns the total capacity in bytes.
func (s *SPIRAM) Size() uint32 {
	return s.bankSize * SPIRAMBanks
}

// Bank returns the memory of chip i.
func (s *SPIRAM) Bank(i int) *emu.Memory {
	return s.banks[i]
}

// Accesses returns the number of bus words served by chip i.
func (s *SPIRAM) Accesses(i int) uint64 {
	return s.accesses[i]
}

func (s *SPIRAM) locate(offset uint32) (int, uint32) {
	bank := int(offset / s.bankSize)
	if bank >= SPIRAMBanks {
		bank = SPIRAMBanks - 1
	}
	return bank, offset - uint32(bank)*s.bankSize
}

// ReadWord implements bus.Target.
func (s *SPIRAM) ReadWord(offset uint32, _ uint8) uint32 {
	bank, off := s.locate(offset)
	s.accesses[bank]++
	return s.banks[bank].Read32(off)
}

// WriteWord implements bus.Target.
func (s *SPIRAM) WriteWord(offset uint32, data uint32, mask uint8) {
	bank, off := s.locate(offset)
	s.accesses[bank]++
	s.banks[bank].WriteMasked(off, data, mask)
}

// Latency implements bus.Target.
func (s *SPIRAM) Latency(words int) uint64 {
	return s.timing.SerialRAMCycles(words)
}

// Peek implements bus.Debugger.
func (s *SPIRAM) Peek(offset uint32) uint32 {
	bank, off := s.locate(offset)
	return s.banks[bank].Read32(off)
}

// Poke implements bus.Debugger.
func (s *SPIRAM) Poke(offset uint32, data uint32, mask uint8) {
	bank, off := s.locate(offset)
	s.banks[bank].WriteMasked(off, data, mask)
}
