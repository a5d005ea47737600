package insts

// RISC-V field encoders.

// EncodeR encodes an R-type instruction.
func EncodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// EncodeI encodes an I-type instruction.
func EncodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7F)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1F)<<7 | opcode
}

// EncodeB encodes a B-type instruction. imm is the byte offset.
func EncodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&0x1)<<31 | (u>>5&0x3F)<<25 | rs2<<20 | rs1<<15 |
		funct3<<12 | (u>>1&0xF)<<8 | (u>>11&0x1)<<7 | opcode
}

// EncodeU encodes a U-type instruction. imm holds the upper 20 bits in place.
func EncodeU(opcode, rd uint32, imm int32) uint32 {
	return uint32(imm)&0xFFFFF000 | rd<<7 | opcode
}

// EncodeJ encodes a J-type instruction. imm is the byte offset.
func EncodeJ(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&0x1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&0x1)<<20 |
		(u>>12&0xFF)<<12 | rd<<7 | opcode
}

// MIPS field encoders.

// EncodeMIPSR encodes a MIPS R-type instruction.
func EncodeMIPSR(rs, rt, rd, shamt, funct uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | shamt<<6 | funct
}

// EncodeMIPSI encodes a MIPS I-type instruction.
func EncodeMIPSI(opcode, rs, rt uint32, imm int32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | uint32(imm)&0xFFFF
}

// EncodeMIPSJ encodes a MIPS J-type instruction to an absolute target.
func EncodeMIPSJ(opcode, target uint32) uint32 {
	return opcode<<26 | (target>>2)&0x3FFFFFF
}
