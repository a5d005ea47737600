// Package emu provides the architectural state shared by the functional
// reference emulator and the timing pipeline, and the functional emulator
// itself.
package emu

import "github.com/sarchlab/softcore/insts"

// RegFile is the integer register file of either ISA.
//
// X[0] reads as zero and discards writes on both ISAs. HILO holds the MIPS
// HI register in the upper and LO in the lower 32 bits.
type RegFile struct {
	X [32]uint32

	HILO uint64

	// PC is the program counter of the next instruction to execute.
	PC uint32
}

// ReadReg reads a register. Register 0, RegNone and anything else outside
// the file read as zero.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	switch {
	case reg == insts.RegHILO:
		return r.HILO
	case reg == 0 || reg >= 32:
		return 0
	}
	return uint64(r.X[reg])
}

// WriteReg writes a register. Writes to register 0 and RegNone are dropped.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	switch {
	case reg == insts.RegHILO:
		r.HILO = value
	case reg == 0 || reg >= 32:
	default:
		r.X[reg] = uint32(value)
	}
}

// Reset clears every register.
func (r *RegFile) Reset() {
	*r = RegFile{}
}
