package pipeline

import (
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/cache"
)

// InstructionMemory is what the Fetch stage reads through. *cache.Cache
// satisfies it.
type InstructionMemory interface {
	// Tick advances outstanding work. The pipeline calls it once per cycle
	// before any access.
	Tick()
	Read(addr uint32, mask uint8) cache.AccessResult
}

// DataMemory is what the Memory stage reads and writes through.
type DataMemory interface {
	InstructionMemory
	Write(addr uint32, data uint32, mask uint8) cache.AccessResult
}

// DecodeStage decodes instructions. Operands are read in Execute, after
// Writeback, so Decode does not touch the register file.
type DecodeStage struct {
	decoder insts.Decoder
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(decoder insts.Decoder) *DecodeStage {
	return &DecodeStage{decoder: decoder}
}

// Decode decodes the instruction in IF/ID into an ID/EX value.
func (s *DecodeStage) Decode(ifid *IFIDRegister) IDEXRegister {
	result := IDEXRegister{
		Valid: true,
		PC:    ifid.PC,
		Rd:    insts.RegNone,
		Rs1:   insts.RegNone,
		Rs2:   insts.RegNone,
	}

	if ifid.Fault != nil {
		result.Fault = ifid.Fault
		return result
	}

	inst := s.decoder.Decode(ifid.InstructionWord)
	result.Inst = inst
	if !inst.IsLegal() {
		result.Fault = faults.NewIllegalInstruction(ifid.PC, ifid.InstructionWord)
		return result
	}

	result.Rd = inst.Rd
	result.Rs1 = inst.Rs1
	result.Rs2 = inst.Rs2

	result.RegWrite = inst.WritesReg()
	result.MemRead = inst.Mem == insts.MemLoad
	result.MemWrite = inst.Mem == insts.MemStore
	result.MemToReg = result.MemRead
	result.IsControl = inst.IsControl()
	result.IsSystem = inst.Class == insts.ClassSystem

	return result
}

// Peek decodes a word without reading registers. Used by hazard detection.
func (s *DecodeStage) Peek(ifid *IFIDRegister) *insts.Instruction {
	if !ifid.Valid || ifid.Fault != nil {
		return nil
	}
	return s.decoder.Decode(ifid.InstructionWord)
}

// ExecuteStage performs ALU operations, resolves branches and computes
// effective addresses.
type ExecuteStage struct{}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{}
}

// ExecuteResult holds the output of the execute stage.
type ExecuteResult struct {
	EXMEM EXMEMRegister

	// Redirect is set for a taken branch or a jump.
	Redirect bool
	Target   uint32
}

// Execute runs the instruction in ID/EX with operands a (rs1) and rs2,
// which already include forwarded values.
func (s *ExecuteStage) Execute(idex *IDEXRegister, a, rs2 uint64) ExecuteResult {
	out := EXMEMRegister{
		Valid:    true,
		PC:       idex.PC,
		Inst:     idex.Inst,
		Rd:       idex.Rd,
		MemRead:  idex.MemRead,
		MemWrite: idex.MemWrite,
		RegWrite: idex.RegWrite,
		MemToReg: idex.MemToReg,
		IsSystem: idex.IsSystem,
		Fault:    idex.Fault,
	}
	if idex.Fault != nil {
		out.RegWrite = false
		out.MemRead = false
		out.MemWrite = false
		return ExecuteResult{EXMEM: out}
	}

	inst := idex.Inst
	result := ExecuteResult{}

	switch inst.Class {
	case insts.ClassALU, insts.ClassMulDiv:
		out.ALUResult = emu.ExecuteALU(inst, idex.PC, a, emu.SecondOperand(inst, rs2))

	case insts.ClassBranch:
		if emu.BranchTaken(inst, a, rs2) {
			result.Redirect = true
			result.Target = emu.BranchTarget(inst, idex.PC, a)
		}

	case insts.ClassJump:
		out.ALUResult = emu.ExecuteALU(inst, idex.PC, a, emu.SecondOperand(inst, rs2))
		result.Redirect = true
		result.Target = emu.BranchTarget(inst, idex.PC, a)

	case insts.ClassLoad, insts.ClassStore:
		addr := emu.EffectiveAddress(inst, a)
		out.ALUResult = uint64(addr)
		out.StoreValue = rs2
		if !emu.Aligned(addr, inst.Size) {
			out.Fault = faults.NewMisaligned(idex.PC, addr)
			out.RegWrite = false
			out.MemRead = false
			out.MemWrite = false
		}
	}

	result.EXMEM = out
	return result
}

// WritebackStage handles register file writeback.
type WritebackStage struct {
	regFile *emu.RegFile
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{
		regFile: regFile,
	}
}

// Writeback writes the result to the register file. It reports whether an
// instruction retired.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) bool {
	if !memwb.Valid {
		return false
	}
	if memwb.RegWrite {
		s.regFile.WriteReg(memwb.Rd, memwb.Result())
	}
	return true
}
