package emu

import "github.com/sarchlab/softcore/insts"

// BranchTaken evaluates the condition of a conditional branch. a and b are
// the Rs1 and Rs2 values. Jumps are always taken.
func BranchTaken(inst *insts.Instruction, a, b uint64) bool {
	x, y := uint32(a), uint32(b)

	switch inst.Op {
	case insts.OpBEQ:
		return x == y
	case insts.OpBNE:
		return x != y
	case insts.OpBLT:
		return int32(x) < int32(y)
	case insts.OpBGE:
		return int32(x) >= int32(y)
	case insts.OpBLTU:
		return x < y
	case insts.OpBGEU:
		return x >= y
	case insts.OpBLEZ:
		return int32(x) <= 0
	case insts.OpBGTZ:
		return int32(x) > 0
	case insts.OpBLTZ:
		return int32(x) < 0
	case insts.OpBGEZ:
		return int32(x) >= 0
	case insts.OpJAL, insts.OpJALR, insts.OpJ:
		return true
	}

	return false
}

// BranchTarget computes the destination of a taken branch or jump. a is the
// Rs1 value, used by register jumps.
func BranchTarget(inst *insts.Instruction, pc uint32, a uint64) uint32 {
	switch inst.Op {
	case insts.OpJALR:
		if inst.ISA == insts.RISCV {
			return (uint32(a) + uint32(inst.Imm)) &^ 1
		}
		return uint32(a)
	case insts.OpJ:
		return (pc+4)&0xF0000000 | uint32(inst.Imm)
	default:
		return pc + uint32(inst.Imm)
	}
}

// NextPC returns the address of the instruction that follows inst.
func NextPC(inst *insts.Instruction, pc uint32, a, b uint64) uint32 {
	if inst.IsControl() && BranchTaken(inst, a, b) {
		return BranchTarget(inst, pc, a)
	}
	return pc + 4
}
