package insts

import (
	"encoding/binary"
	"fmt"
)

// ABI names the registers a program needs by role so that one program
// description can be emitted for either ISA.
type ABI struct {
	Zero, RA, SP           uint8
	A0, A1, A2, A3         uint8
	T0, T1, T2, T3, T4, T5 uint8
	S0, S1                 uint8

	// Syscall holds the environment call number.
	Syscall uint8

	// Scratch is clobbered by multi-instruction pseudo operations.
	Scratch uint8
}

// ABIFor returns the register roles for an ISA.
func ABIFor(isa ISA) ABI {
	if isa == MIPS {
		return ABI{
			Zero: 0, RA: 31, SP: 29,
			A0: 4, A1: 5, A2: 6, A3: 7,
			T0: 8, T1: 9, T2: 10, T3: 11, T4: 12, T5: 13,
			S0: 16, S1: 17,
			Syscall: 2, Scratch: 1,
		}
	}
	return ABI{
		Zero: 0, RA: 1, SP: 2,
		A0: 10, A1: 11, A2: 12, A3: 13,
		T0: 5, T1: 6, T2: 7, T3: 28, T4: 29, T5: 30,
		S0: 8, S1: 9,
		Syscall: 17, Scratch: 31,
	}
}

// Exit syscall numbers.
const (
	RISCVSyscallExit    = 93
	MIPSSyscallExit     = 10
	MIPSSyscallExitCode = 17
)

type fixupKind uint8

const (
	fixBranch fixupKind = iota
	fixJump
	fixAddr
)

type fixup struct {
	index int
	kind  fixupKind
	label string
}

// Program assembles instructions for one ISA with forward and backward
// label references. Pseudo operations expand to the same number of words on
// both passes so label addresses never move.
type Program struct {
	isa    ISA
	base   uint32
	abi    ABI
	words  []uint32
	labels map[string]uint32
	fixups []fixup
}

// NewProgram creates an empty program that will be loaded at base.
func NewProgram(isa ISA, base uint32) *Program {
	return &Program{
		isa:    isa,
		base:   base,
		abi:    ABIFor(isa),
		labels: make(map[string]uint32),
	}
}

// ISA returns the target ISA.
func (p *Program) ISA() ISA { return p.isa }

// ABI returns the register roles of the target ISA.
func (p *Program) ABI() ABI { return p.abi }

// Base returns the load address.
func (p *Program) Base() uint32 { return p.base }

// PC returns the address of the next emitted word.
func (p *Program) PC() uint32 {
	return p.base + uint32(len(p.words))*4
}

// Label binds name to the current PC.
func (p *Program) Label(name string) {
	p.labels[name] = p.PC()
}

// Addr returns the address bound to a label. It is only meaningful after
// the label has been defined.
func (p *Program) Addr(name string) (uint32, bool) {
	a, ok := p.labels[name]
	return a, ok
}

// Emit appends a raw word.
func (p *Program) Emit(word uint32) {
	p.words = append(p.words, word)
}

// Words resolves label references and returns the program.
func (p *Program) Words() ([]uint32, error) {
	out := make([]uint32, len(p.words))
	copy(out, p.words)

	for _, f := range p.fixups {
		target, ok := p.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}

		pc := p.base + uint32(f.index)*4
		if err := p.patch(out, f, pc, target); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Bytes returns the resolved program as little-endian bytes.
func (p *Program) Bytes() ([]byte, error) {
	words, err := p.Words()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf, nil
}

func (p *Program) patch(out []uint32, f fixup, pc, target uint32) error {
	offset := int32(target - pc)

	switch f.kind {
	case fixBranch:
		if p.isa == MIPS {
			words := (offset - 4) >> 2
			if words < -32768 || words > 32767 {
				return fmt.Errorf("branch to %q out of range", f.label)
			}
			out[f.index] = out[f.index]&^0xFFFF | uint32(words)&0xFFFF
			return nil
		}
		if offset < -4096 || offset > 4094 {
			return fmt.Errorf("branch to %q out of range", f.label)
		}
		w := out[f.index]
		out[f.index] = EncodeB(w&0x7F, (w>>12)&0x7, (w>>15)&0x1F, (w>>20)&0x1F, offset)

	case fixJump:
		if p.isa == MIPS {
			if (pc+4)&0xF0000000 != target&0xF0000000 {
				return fmt.Errorf("jump to %q leaves the 256MiB region", f.label)
			}
			out[f.index] = EncodeMIPSJ(out[f.index]>>26, target)
			return nil
		}
		if offset < -(1<<20) || offset >= 1<<20 {
			return fmt.Errorf("jump to %q out of range", f.label)
		}
		w := out[f.index]
		out[f.index] = EncodeJ(w&0x7F, (w>>7)&0x1F, offset)

	case fixAddr:
		hi, lo := p.splitConst(target)
		out[f.index] |= hi
		out[f.index+1] |= lo
	}

	return nil
}

// splitConst returns the immediate field bits of the two-instruction
// constant sequence for v.
func (p *Program) splitConst(v uint32) (hiBits, loBits uint32) {
	if p.isa == MIPS {
		return v >> 16, v & 0xFFFF
	}
	hi := (v + 0x800) &^ 0xFFF
	lo := (v - hi) & 0xFFF
	return hi, lo << 20
}

// Arithmetic and logic.

func (p *Program) rrr(rvF3, rvF7, mipsFunct uint32, rd, rs1, rs2 uint8) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSR(uint32(rs1), uint32(rs2), uint32(rd), 0, mipsFunct))
		return
	}
	p.Emit(EncodeR(rvOp, uint32(rd), rvF3, uint32(rs1), uint32(rs2), rvF7))
}

// ADD emits rd = rs1 + rs2.
func (p *Program) ADD(rd, rs1, rs2 uint8) { p.rrr(0, 0, 0x21, rd, rs1, rs2) }

// SUB emits rd = rs1 - rs2.
func (p *Program) SUB(rd, rs1, rs2 uint8) { p.rrr(0, 0x20, 0x23, rd, rs1, rs2) }

// AND emits rd = rs1 & rs2.
func (p *Program) AND(rd, rs1, rs2 uint8) { p.rrr(7, 0, 0x24, rd, rs1, rs2) }

// OR emits rd = rs1 | rs2.
func (p *Program) OR(rd, rs1, rs2 uint8) { p.rrr(6, 0, 0x25, rd, rs1, rs2) }

// XOR emits rd = rs1 ^ rs2.
func (p *Program) XOR(rd, rs1, rs2 uint8) { p.rrr(4, 0, 0x26, rd, rs1, rs2) }

// SLT emits rd = rs1 < rs2 (signed).
func (p *Program) SLT(rd, rs1, rs2 uint8) { p.rrr(2, 0, 0x2A, rd, rs1, rs2) }

// SLTU emits rd = rs1 < rs2 (unsigned).
func (p *Program) SLTU(rd, rs1, rs2 uint8) { p.rrr(3, 0, 0x2B, rd, rs1, rs2) }

// MUL emits rd = low 32 bits of rs1 * rs2.
func (p *Program) MUL(rd, rs1, rs2 uint8) {
	if p.isa == MIPS {
		p.Emit(mipsSpecial2<<26 | EncodeMIPSR(uint32(rs1), uint32(rs2), uint32(rd), 0, 0x02))
		return
	}
	p.Emit(EncodeR(rvOp, uint32(rd), 0, uint32(rs1), uint32(rs2), 1))
}

// DIV emits rd = rs1 / rs2 (signed). On MIPS it expands to div + mflo.
func (p *Program) DIV(rd, rs1, rs2 uint8) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSR(uint32(rs1), uint32(rs2), 0, 0, 0x1A))
		p.Emit(EncodeMIPSR(0, 0, uint32(rd), 0, 0x12))
		return
	}
	p.Emit(EncodeR(rvOp, uint32(rd), 4, uint32(rs1), uint32(rs2), 1))
}

// REM emits rd = rs1 % rs2 (signed). On MIPS it expands to div + mfhi.
func (p *Program) REM(rd, rs1, rs2 uint8) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSR(uint32(rs1), uint32(rs2), 0, 0, 0x1A))
		p.Emit(EncodeMIPSR(0, 0, uint32(rd), 0, 0x10))
		return
	}
	p.Emit(EncodeR(rvOp, uint32(rd), 6, uint32(rs1), uint32(rs2), 1))
}

func (p *Program) rri(rvF3 uint32, mipsOp uint32, rd, rs1 uint8, imm int32) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSI(mipsOp, uint32(rs1), uint32(rd), imm))
		return
	}
	p.Emit(EncodeI(rvOpImm, uint32(rd), rvF3, uint32(rs1), imm))
}

// ADDI emits rd = rs1 + imm.
func (p *Program) ADDI(rd, rs1 uint8, imm int32) { p.rri(0, mipsADDIU, rd, rs1, imm) }

// ANDI emits rd = rs1 & imm. MIPS zero-extends imm.
func (p *Program) ANDI(rd, rs1 uint8, imm int32) { p.rri(7, mipsANDI, rd, rs1, imm) }

// ORI emits rd = rs1 | imm. MIPS zero-extends imm.
func (p *Program) ORI(rd, rs1 uint8, imm int32) { p.rri(6, mipsORI, rd, rs1, imm) }

// XORI emits rd = rs1 ^ imm. MIPS zero-extends imm.
func (p *Program) XORI(rd, rs1 uint8, imm int32) { p.rri(4, mipsXORI, rd, rs1, imm) }

// SLTI emits rd = rs1 < imm (signed).
func (p *Program) SLTI(rd, rs1 uint8, imm int32) { p.rri(2, mipsSLTI, rd, rs1, imm) }

func (p *Program) shift(rvF3, rvF7, mipsFunct uint32, rd, rs1 uint8, shamt uint32) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSR(0, uint32(rs1), uint32(rd), shamt&0x1F, mipsFunct))
		return
	}
	p.Emit(EncodeI(rvOpImm, uint32(rd), rvF3, uint32(rs1), int32(rvF7<<5|shamt&0x1F)))
}

// SLLI emits rd = rs1 << shamt.
func (p *Program) SLLI(rd, rs1 uint8, shamt uint32) { p.shift(1, 0, 0x00, rd, rs1, shamt) }

// SRLI emits rd = rs1 >> shamt (logical).
func (p *Program) SRLI(rd, rs1 uint8, shamt uint32) { p.shift(5, 0, 0x02, rd, rs1, shamt) }

// SRAI emits rd = rs1 >> shamt (arithmetic).
func (p *Program) SRAI(rd, rs1 uint8, shamt uint32) { p.shift(5, 0x20, 0x03, rd, rs1, shamt) }

// MV emits rd = rs.
func (p *Program) MV(rd, rs uint8) { p.ADD(rd, rs, p.abi.Zero) }

// NOP emits a no-op.
func (p *Program) NOP() {
	if p.isa == MIPS {
		p.Emit(0)
		return
	}
	p.ADDI(0, 0, 0)
}

// LI loads a 32-bit constant. It emits one word when the constant fits a
// single immediate and two otherwise.
func (p *Program) LI(rd uint8, v int32) {
	if p.isa == MIPS {
		switch {
		case v >= -32768 && v <= 32767:
			p.Emit(EncodeMIPSI(mipsADDIU, 0, uint32(rd), v))
		case v >= 0 && v <= 0xFFFF:
			p.Emit(EncodeMIPSI(mipsORI, 0, uint32(rd), v))
		default:
			u := uint32(v)
			p.Emit(EncodeMIPSI(mipsLUI, 0, uint32(rd), int32(u>>16)))
			if u&0xFFFF != 0 {
				p.Emit(EncodeMIPSI(mipsORI, uint32(rd), uint32(rd), int32(u&0xFFFF)))
			}
		}
		return
	}

	if v >= -2048 && v <= 2047 {
		p.ADDI(rd, 0, v)
		return
	}
	hi, lo := p.splitConst(uint32(v))
	p.Emit(EncodeU(rvLUI, uint32(rd), int32(hi)))
	if lo != 0 {
		p.Emit(EncodeI(rvOpImm, uint32(rd), 0, uint32(rd), 0) | lo)
	}
}

// LA loads the address of a label. It always emits two words.
func (p *Program) LA(rd uint8, label string) {
	p.fixups = append(p.fixups, fixup{index: len(p.words), kind: fixAddr, label: label})
	if p.isa == MIPS {
		p.Emit(EncodeMIPSI(mipsLUI, 0, uint32(rd), 0))
		p.Emit(EncodeMIPSI(mipsORI, uint32(rd), uint32(rd), 0))
		return
	}
	p.Emit(EncodeU(rvLUI, uint32(rd), 0))
	p.Emit(EncodeI(rvOpImm, uint32(rd), 0, uint32(rd), 0))
}

// Memory.

func (p *Program) load(rvF3, mipsOp uint32, rd, base uint8, off int32) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSI(mipsOp, uint32(base), uint32(rd), off))
		return
	}
	p.Emit(EncodeI(rvLoad, uint32(rd), rvF3, uint32(base), off))
}

func (p *Program) store(rvF3, mipsOp uint32, rs, base uint8, off int32) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSI(mipsOp, uint32(base), uint32(rs), off))
		return
	}
	p.Emit(EncodeS(rvStore, rvF3, uint32(base), uint32(rs), off))
}

// LW emits rd = mem32[base+off].
func (p *Program) LW(rd, base uint8, off int32) { p.load(2, mipsLW, rd, base, off) }

// LH emits rd = sext(mem16[base+off]).
func (p *Program) LH(rd, base uint8, off int32) { p.load(1, mipsLH, rd, base, off) }

// LHU emits rd = zext(mem16[base+off]).
func (p *Program) LHU(rd, base uint8, off int32) { p.load(5, mipsLHU, rd, base, off) }

// LB emits rd = sext(mem8[base+off]).
func (p *Program) LB(rd, base uint8, off int32) { p.load(0, mipsLB, rd, base, off) }

// LBU emits rd = zext(mem8[base+off]).
func (p *Program) LBU(rd, base uint8, off int32) { p.load(4, mipsLBU, rd, base, off) }

// SW emits mem32[base+off] = rs.
func (p *Program) SW(rs, base uint8, off int32) { p.store(2, mipsSW, rs, base, off) }

// SH emits mem16[base+off] = rs.
func (p *Program) SH(rs, base uint8, off int32) { p.store(1, mipsSH, rs, base, off) }

// SB emits mem8[base+off] = rs.
func (p *Program) SB(rs, base uint8, off int32) { p.store(0, mipsSB, rs, base, off) }

// Control flow.

func (p *Program) branch(rvF3 uint32, mipsOp uint32, rs1, rs2 uint8, label string) {
	p.fixups = append(p.fixups, fixup{index: len(p.words), kind: fixBranch, label: label})
	if p.isa == MIPS {
		p.Emit(EncodeMIPSI(mipsOp, uint32(rs1), uint32(rs2), 0))
		return
	}
	p.Emit(EncodeB(rvBranch, rvF3, uint32(rs1), uint32(rs2), 0))
}

// BEQ branches to label when rs1 == rs2.
func (p *Program) BEQ(rs1, rs2 uint8, label string) { p.branch(0, mipsBEQ, rs1, rs2, label) }

// BNE branches to label when rs1 != rs2.
func (p *Program) BNE(rs1, rs2 uint8, label string) { p.branch(1, mipsBNE, rs1, rs2, label) }

// BLT branches to label when rs1 < rs2 (signed). On MIPS it expands to
// slt + bne through the scratch register.
func (p *Program) BLT(rs1, rs2 uint8, label string) {
	if p.isa == MIPS {
		p.SLT(p.abi.Scratch, rs1, rs2)
		p.BNE(p.abi.Scratch, 0, label)
		return
	}
	p.branch(4, 0, rs1, rs2, label)
}

// BGE branches to label when rs1 >= rs2 (signed).
func (p *Program) BGE(rs1, rs2 uint8, label string) {
	if p.isa == MIPS {
		p.SLT(p.abi.Scratch, rs1, rs2)
		p.BEQ(p.abi.Scratch, 0, label)
		return
	}
	p.branch(5, 0, rs1, rs2, label)
}

// BLTU branches to label when rs1 < rs2 (unsigned).
func (p *Program) BLTU(rs1, rs2 uint8, label string) {
	if p.isa == MIPS {
		p.SLTU(p.abi.Scratch, rs1, rs2)
		p.BNE(p.abi.Scratch, 0, label)
		return
	}
	p.branch(6, 0, rs1, rs2, label)
}

// BGEU branches to label when rs1 >= rs2 (unsigned).
func (p *Program) BGEU(rs1, rs2 uint8, label string) {
	if p.isa == MIPS {
		p.SLTU(p.abi.Scratch, rs1, rs2)
		p.BEQ(p.abi.Scratch, 0, label)
		return
	}
	p.branch(7, 0, rs1, rs2, label)
}

// J jumps to label.
func (p *Program) J(label string) {
	p.fixups = append(p.fixups, fixup{index: len(p.words), kind: fixJump, label: label})
	if p.isa == MIPS {
		p.Emit(mipsJ << 26)
		return
	}
	p.Emit(EncodeJ(rvJAL, 0, 0))
}

// CALL jumps to label and links the return address in RA.
func (p *Program) CALL(label string) {
	p.fixups = append(p.fixups, fixup{index: len(p.words), kind: fixJump, label: label})
	if p.isa == MIPS {
		p.Emit(mipsJAL << 26)
		return
	}
	p.Emit(EncodeJ(rvJAL, uint32(p.abi.RA), 0))
}

// JR jumps to the address in rs.
func (p *Program) JR(rs uint8) {
	if p.isa == MIPS {
		p.Emit(EncodeMIPSR(uint32(rs), 0, 0, 0, 0x08))
		return
	}
	p.Emit(EncodeI(rvJALR, 0, 0, uint32(rs), 0))
}

// RET returns through RA.
func (p *Program) RET() { p.JR(p.abi.RA) }

// System.

// ECALL emits the environment call instruction.
func (p *Program) ECALL() {
	if p.isa == MIPS {
		p.Emit(0x0C)
		return
	}
	p.Emit(0x00000073)
}

// EBREAK emits the breakpoint instruction.
func (p *Program) EBREAK() {
	if p.isa == MIPS {
		p.Emit(0x0D)
		return
	}
	p.Emit(0x00100073)
}

// Exit terminates the program with the value in reg as exit code.
func (p *Program) Exit(reg uint8) {
	if reg != p.abi.A0 {
		p.MV(p.abi.A0, reg)
	}
	if p.isa == MIPS {
		p.LI(p.abi.Syscall, MIPSSyscallExitCode)
	} else {
		p.LI(p.abi.Syscall, RISCVSyscallExit)
	}
	p.ECALL()
}

// ExitImm terminates the program with a constant exit code.
func (p *Program) ExitImm(code int32) {
	p.LI(p.abi.A0, code)
	p.Exit(p.abi.A0)
}

// Data.

// Word emits a data word.
func (p *Program) Word(v uint32) { p.Emit(v) }

// Data emits raw bytes padded to a word boundary.
func (p *Program) Data(b []byte) {
	for i := 0; i < len(b); i += 4 {
		var chunk [4]byte
		copy(chunk[:], b[i:])
		p.Emit(binary.LittleEndian.Uint32(chunk[:]))
	}
}

// Space emits n zero bytes rounded up to whole words.
func (p *Program) Space(n int) {
	for i := 0; i < n; i += 4 {
		p.Emit(0)
	}
}
