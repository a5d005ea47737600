package insts

// MIPSDecoder decodes the MIPS32 integer subset the core implements.
//
// The core has no branch delay slots: a taken branch or jump transfers
// control directly and the link value is PC+4. ADD, ADDI and SUB behave like
// their unsigned forms and never trap on overflow.
type MIPSDecoder struct{}

// ISA returns MIPS.
func (d *MIPSDecoder) ISA() ISA { return MIPS }

// MIPS primary opcodes.
const (
	mipsSpecial  = 0x00
	mipsRegImm   = 0x01
	mipsJ        = 0x02
	mipsJAL      = 0x03
	mipsBEQ      = 0x04
	mipsBNE      = 0x05
	mipsBLEZ     = 0x06
	mipsBGTZ     = 0x07
	mipsADDI     = 0x08
	mipsADDIU    = 0x09
	mipsSLTI     = 0x0A
	mipsSLTIU    = 0x0B
	mipsANDI     = 0x0C
	mipsORI      = 0x0D
	mipsXORI     = 0x0E
	mipsLUI      = 0x0F
	mipsSpecial2 = 0x1C
	mipsLB       = 0x20
	mipsLH       = 0x21
	mipsLW       = 0x23
	mipsLBU      = 0x24
	mipsLHU      = 0x25
	mipsSB       = 0x28
	mipsSH       = 0x29
	mipsSW       = 0x2B
)

// MIPSLinkReg is $ra, written by JAL.
const MIPSLinkReg = 31

// Decode decodes a single MIPS instruction word.
func (d *MIPSDecoder) Decode(word uint32) *Instruction {
	inst := newInst(MIPS, word)

	opcode := word >> 26
	rs := uint8((word >> 21) & 0x1F)
	rt := uint8((word >> 16) & 0x1F)
	imm := int32(int16(word & 0xFFFF))
	uimm := int32(word & 0xFFFF)

	switch opcode {
	case mipsSpecial:
		d.decodeSpecial(word, inst)

	case mipsRegImm:
		switch rt {
		case 0:
			inst.Op = OpBLTZ
		case 1:
			inst.Op = OpBGEZ
		default:
			return inst
		}
		inst.Class = ClassBranch
		inst.Rs1 = rs
		inst.Imm = branchOffset(imm)

	case mipsJ, mipsJAL:
		inst.Op, inst.Class = OpJ, ClassJump
		inst.Imm = int32((word & 0x3FFFFFF) << 2)
		if opcode == mipsJAL {
			inst.Rd = MIPSLinkReg
		}

	case mipsBEQ, mipsBNE:
		inst.Op = OpBEQ
		if opcode == mipsBNE {
			inst.Op = OpBNE
		}
		inst.Class = ClassBranch
		inst.Rs1 = rs
		inst.Rs2 = rt
		inst.Imm = branchOffset(imm)

	case mipsBLEZ, mipsBGTZ:
		if rt != 0 {
			return inst
		}
		inst.Op = OpBLEZ
		if opcode == mipsBGTZ {
			inst.Op = OpBGTZ
		}
		inst.Class = ClassBranch
		inst.Rs1 = rs
		inst.Imm = branchOffset(imm)

	case mipsADDI, mipsADDIU:
		d.setImmALU(inst, OpADD, rt, rs, imm)
	case mipsSLTI:
		d.setImmALU(inst, OpSLT, rt, rs, imm)
	case mipsSLTIU:
		d.setImmALU(inst, OpSLTU, rt, rs, imm)
	case mipsANDI:
		d.setImmALU(inst, OpAND, rt, rs, uimm)
	case mipsORI:
		d.setImmALU(inst, OpOR, rt, rs, uimm)
	case mipsXORI:
		d.setImmALU(inst, OpXOR, rt, rs, uimm)
	case mipsLUI:
		inst.Op, inst.Class = OpLUI, ClassALU
		inst.Rd = rt
		inst.Imm = int32(uint32(uimm) << 16)
		inst.UseImm = true

	case mipsSpecial2:
		if word&0x3F == 0x02 {
			inst.Op, inst.Class = OpMUL, ClassMulDiv
			inst.Rd = uint8((word >> 11) & 0x1F)
			inst.Rs1 = rs
			inst.Rs2 = rt
		}

	case mipsLB:
		inst.setLoad(OpLB, 1, true)
	case mipsLH:
		inst.setLoad(OpLH, 2, true)
	case mipsLW:
		inst.setLoad(OpLW, 4, true)
	case mipsLBU:
		inst.setLoad(OpLBU, 1, false)
	case mipsLHU:
		inst.setLoad(OpLHU, 2, false)
	case mipsSB:
		inst.setStore(OpSB, 1)
	case mipsSH:
		inst.setStore(OpSH, 2)
	case mipsSW:
		inst.setStore(OpSW, 4)
	}

	switch inst.Mem {
	case MemLoad:
		inst.Rd = rt
		inst.Rs1 = rs
		inst.Imm = imm
	case MemStore:
		inst.Rs1 = rs
		inst.Rs2 = rt
		inst.Imm = imm
	}

	return inst
}

func (d *MIPSDecoder) setImmALU(inst *Instruction, op Op, rt, rs uint8, imm int32) {
	inst.Op, inst.Class = op, ClassALU
	inst.Rd = rt
	inst.Rs1 = rs
	inst.Imm = imm
	inst.UseImm = true
}

func (d *MIPSDecoder) decodeSpecial(word uint32, inst *Instruction) {
	rs := uint8((word >> 21) & 0x1F)
	rt := uint8((word >> 16) & 0x1F)
	rd := uint8((word >> 11) & 0x1F)
	shamt := int32((word >> 6) & 0x1F)
	funct := word & 0x3F

	threeReg := func(op Op, class Class) {
		inst.Op, inst.Class = op, class
		inst.Rd = rd
		inst.Rs1 = rs
		inst.Rs2 = rt
	}

	switch funct {
	case 0x00, 0x02, 0x03:
		inst.Op = shiftOps[funct&0x3]
		inst.Class = ClassALU
		inst.Rd = rd
		inst.Rs1 = rt
		inst.Imm = shamt
		inst.UseImm = true
	case 0x04, 0x06, 0x07:
		inst.Op = shiftOps[funct&0x3]
		inst.Class = ClassALU
		inst.Rd = rd
		inst.Rs1 = rt
		inst.Rs2 = rs
	case 0x08:
		inst.Op, inst.Class = OpJALR, ClassJump
		inst.Rs1 = rs
	case 0x09:
		inst.Op, inst.Class = OpJALR, ClassJump
		inst.Rd = rd
		inst.Rs1 = rs
	case 0x0C:
		inst.Op, inst.Class = OpECALL, ClassSystem
	case 0x0D:
		inst.Op, inst.Class = OpEBREAK, ClassSystem
	case 0x0F:
		inst.Op, inst.Class = OpFENCE, ClassNop
	case 0x10, 0x12:
		inst.Op = OpMFHI
		if funct == 0x12 {
			inst.Op = OpMFLO
		}
		inst.Class = ClassALU
		inst.Rd = rd
		inst.Rs1 = RegHILO
	case 0x11, 0x13:
		inst.Op = OpMTHI
		if funct == 0x13 {
			inst.Op = OpMTLO
		}
		inst.Class = ClassALU
		inst.Rd = RegHILO
		inst.Rs1 = rs
		inst.Rs2 = RegHILO
	case 0x18, 0x19, 0x1A, 0x1B:
		inst.Op = [4]Op{OpMULT, OpMULTU, OpDIVHILO, OpDIVUHILO}[funct&0x3]
		inst.Class = ClassMulDiv
		inst.Rd = RegHILO
		inst.Rs1 = rs
		inst.Rs2 = rt
	case 0x20, 0x21:
		threeReg(OpADD, ClassALU)
	case 0x22, 0x23:
		threeReg(OpSUB, ClassALU)
	case 0x24:
		threeReg(OpAND, ClassALU)
	case 0x25:
		threeReg(OpOR, ClassALU)
	case 0x26:
		threeReg(OpXOR, ClassALU)
	case 0x27:
		threeReg(OpNOR, ClassALU)
	case 0x2A:
		threeReg(OpSLT, ClassALU)
	case 0x2B:
		threeReg(OpSLTU, ClassALU)
	}
}

// shiftOps is indexed by the low two funct bits of the shift encodings.
var shiftOps = [4]Op{OpSLL, OpUnknown, OpSRL, OpSRA}

// branchOffset converts a MIPS word offset, which is relative to the
// following instruction, into a byte offset from the branch itself.
func branchOffset(imm int32) int32 {
	return imm<<2 + 4
}
