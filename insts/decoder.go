package insts

// Decoder turns instruction words into Instructions. Decode never returns
// nil: an undefined encoding yields an Instruction with Op == OpUnknown.
type Decoder interface {
	Decode(word uint32) *Instruction
	ISA() ISA
}

// NewDecoder returns the decoder for the given ISA.
func NewDecoder(isa ISA) Decoder {
	if isa == MIPS {
		return &MIPSDecoder{}
	}
	return &RISCVDecoder{}
}

// RISCVDecoder decodes RV32IM.
type RISCVDecoder struct{}

// ISA returns RISCV.
func (d *RISCVDecoder) ISA() ISA { return RISCV }

// RISC-V major opcodes.
const (
	rvLoad   = 0x03
	rvFence  = 0x0F
	rvOpImm  = 0x13
	rvAUIPC  = 0x17
	rvStore  = 0x23
	rvOp     = 0x33
	rvLUI    = 0x37
	rvBranch = 0x63
	rvJALR   = 0x67
	rvJAL    = 0x6F
	rvSystem = 0x73
)

// Decode decodes a single RV32IM instruction word.
func (d *RISCVDecoder) Decode(word uint32) *Instruction {
	inst := newInst(RISCV, word)

	opcode := word & 0x7F
	rd := uint8((word >> 7) & 0x1F)
	funct3 := (word >> 12) & 0x7
	rs1 := uint8((word >> 15) & 0x1F)
	rs2 := uint8((word >> 20) & 0x1F)
	funct7 := word >> 25

	switch opcode {
	case rvLUI:
		inst.Op, inst.Class = OpLUI, ClassALU
		inst.Rd = rd
		inst.Imm = int32(word & 0xFFFFF000)
		inst.UseImm = true

	case rvAUIPC:
		inst.Op, inst.Class = OpAUIPC, ClassALU
		inst.Rd = rd
		inst.Imm = int32(word & 0xFFFFF000)
		inst.UseImm = true

	case rvJAL:
		inst.Op, inst.Class = OpJAL, ClassJump
		inst.Rd = rd
		inst.Imm = immJ(word)

	case rvJALR:
		if funct3 != 0 {
			return inst
		}
		inst.Op, inst.Class = OpJALR, ClassJump
		inst.Rd = rd
		inst.Rs1 = rs1
		inst.Imm = immI(word)

	case rvBranch:
		ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}
		if ops[funct3] == OpUnknown {
			return inst
		}
		inst.Op, inst.Class = ops[funct3], ClassBranch
		inst.Rs1 = rs1
		inst.Rs2 = rs2
		inst.Imm = immB(word)

	case rvLoad:
		d.decodeLoad(funct3, inst)
		if inst.IsLegal() {
			inst.Rd = rd
			inst.Rs1 = rs1
			inst.Imm = immI(word)
		}

	case rvStore:
		d.decodeStore(funct3, inst)
		if inst.IsLegal() {
			inst.Rs1 = rs1
			inst.Rs2 = rs2
			inst.Imm = immS(word)
		}

	case rvOpImm:
		d.decodeOpImm(word, funct3, funct7, inst)
		if inst.IsLegal() {
			inst.Rd = rd
			inst.Rs1 = rs1
		}

	case rvOp:
		d.decodeOp(funct3, funct7, inst)
		if inst.IsLegal() {
			inst.Rd = rd
			inst.Rs1 = rs1
			inst.Rs2 = rs2
		}

	case rvFence:
		// FENCE and FENCE.I. The core has no store buffer and no I-cache
		// invalidation so both retire as no-ops.
		if funct3 == 0 || funct3 == 1 {
			inst.Op, inst.Class = OpFENCE, ClassNop
		}

	case rvSystem:
		switch word {
		case 0x00000073:
			inst.Op, inst.Class = OpECALL, ClassSystem
		case 0x00100073:
			inst.Op, inst.Class = OpEBREAK, ClassSystem
		}
	}

	return inst
}

func (d *RISCVDecoder) decodeLoad(funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0:
		inst.setLoad(OpLB, 1, true)
	case 1:
		inst.setLoad(OpLH, 2, true)
	case 2:
		inst.setLoad(OpLW, 4, true)
	case 4:
		inst.setLoad(OpLBU, 1, false)
	case 5:
		inst.setLoad(OpLHU, 2, false)
	}
}

func (d *RISCVDecoder) decodeStore(funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0:
		inst.setStore(OpSB, 1)
	case 1:
		inst.setStore(OpSH, 2)
	case 2:
		inst.setStore(OpSW, 4)
	}
}

func (d *RISCVDecoder) decodeOpImm(word, funct3, funct7 uint32, inst *Instruction) {
	inst.Class = ClassALU
	inst.UseImm = true
	inst.Imm = immI(word)

	switch funct3 {
	case 0:
		inst.Op = OpADD
	case 2:
		inst.Op = OpSLT
	case 3:
		inst.Op = OpSLTU
	case 4:
		inst.Op = OpXOR
	case 6:
		inst.Op = OpOR
	case 7:
		inst.Op = OpAND
	case 1:
		if funct7 == 0 {
			inst.Op = OpSLL
			inst.Imm = int32((word >> 20) & 0x1F)
		}
	case 5:
		inst.Imm = int32((word >> 20) & 0x1F)
		switch funct7 {
		case 0x00:
			inst.Op = OpSRL
		case 0x20:
			inst.Op = OpSRA
		}
	}

	if inst.Op == OpUnknown {
		inst.Class = ClassIllegal
		inst.UseImm = false
		inst.Imm = 0
	}
}

func (d *RISCVDecoder) decodeOp(funct3, funct7 uint32, inst *Instruction) {
	switch funct7 {
	case 0x00:
		inst.Op = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}[funct3]
		inst.Class = ClassALU
	case 0x20:
		switch funct3 {
		case 0:
			inst.Op, inst.Class = OpSUB, ClassALU
		case 5:
			inst.Op, inst.Class = OpSRA, ClassALU
		}
	case 0x01:
		inst.Op = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}[funct3]
		inst.Class = ClassMulDiv
	}
}

func immI(word uint32) int32 {
	return int32(word) >> 20
}

func immS(word uint32) int32 {
	return (int32(word)>>25)<<5 | int32((word>>7)&0x1F)
}

func immB(word uint32) int32 {
	// imm[12|10:5] in bits 31:25, imm[4:1|11] in bits 11:7
	raw := ((word >> 31) & 0x1 << 12) |
		((word >> 7) & 0x1 << 11) |
		((word >> 25) & 0x3F << 5) |
		((word >> 8) & 0xF << 1)
	return signExtend(raw, 13)
}

func immJ(word uint32) int32 {
	// imm[20|10:1|11|19:12]
	raw := ((word >> 31) & 0x1 << 20) |
		((word >> 12) & 0xFF << 12) |
		((word >> 20) & 0x1 << 11) |
		((word >> 21) & 0x3FF << 1)
	return signExtend(raw, 21)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
