// Package pipeline provides the five-stage in-order pipeline of the core.
package pipeline

import (
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
)

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// Valid indicates if this register contains valid data.
	Valid bool

	// PC is the program counter of the fetched instruction.
	PC uint32

	// InstructionWord is the raw 32-bit instruction.
	InstructionWord uint32

	// Fault is set when the fetch itself failed.
	Fault *faults.Fault
}

// Clear resets the IF/ID register to empty state.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	Valid bool
	PC    uint32
	Inst  *insts.Instruction

	// Register numbers, insts.RegNone when unused.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Control signals
	MemRead   bool
	MemWrite  bool
	RegWrite  bool
	MemToReg  bool
	IsControl bool
	IsSystem  bool

	Fault *faults.Fault
}

// Clear resets the ID/EX register to empty state.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	Valid bool
	PC    uint32
	Inst  *insts.Instruction

	// ALUResult is the computed result, or the effective address of a
	// load or store.
	ALUResult uint64

	// StoreValue is the value to store (for store instructions).
	StoreValue uint64

	Rd       uint8
	MemRead  bool
	MemWrite bool
	RegWrite bool
	MemToReg bool
	IsSystem bool

	Fault *faults.Fault
}

// Clear resets the EX/MEM register to empty state.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	Valid bool
	PC    uint32
	Inst  *insts.Instruction

	ALUResult uint64

	// MemData is the loaded value (for load instructions).
	MemData uint64

	Rd       uint8
	RegWrite bool
	MemToReg bool
}

// Clear resets the MEM/WB register to empty state.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}

// Result returns the value written back to Rd.
func (r *MEMWBRegister) Result() uint64 {
	if r.MemToReg {
		return r.MemData
	}
	return r.ALUResult
}
