// Package insts provides RV32IM and MIPS32 instruction definitions, decoding
// and encoding.
//
// Both instruction sets decode into the same Instruction record so that the
// rest of the simulator never looks at raw encodings. Register indices use
// the architectural numbering of the source ISA. The MIPS HI/LO pair is
// exposed as the pseudo-register RegHILO.
//
// Usage:
//
//	decoder := insts.NewDecoder(insts.RISCV)
//	inst := decoder.Decode(0x00A30293) // addi x5, x6, 10
//	fmt.Println(inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts

import (
	"fmt"
	"strings"
)

// ISA selects an instruction set.
type ISA uint8

// Supported instruction sets.
const (
	RISCV ISA = iota
	MIPS
)

func (i ISA) String() string {
	switch i {
	case RISCV:
		return "riscv"
	case MIPS:
		return "mips"
	default:
		return fmt.Sprintf("isa(%d)", uint8(i))
	}
}

// ParseISA converts a name such as "riscv" or "mips" to an ISA.
func ParseISA(name string) (ISA, error) {
	switch strings.ToLower(name) {
	case "riscv", "rv32", "rv32im":
		return RISCV, nil
	case "mips", "mips32":
		return MIPS, nil
	default:
		return 0, fmt.Errorf("unknown isa %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (i ISA) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ISA) UnmarshalText(text []byte) error {
	v, err := ParseISA(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Register sentinels.
const (
	// RegHILO is the MIPS HI/LO pair seen as one 64-bit register.
	RegHILO uint8 = 32
	// RegNone marks an unused operand. It reads as zero.
	RegNone uint8 = 0xFF
)

// Op identifies an operation.
type Op uint16

// Operations. MIPS and RISC-V share an Op when their semantics match.
const (
	OpUnknown Op = iota

	OpADD
	OpSUB
	OpAND
	OpOR
	OpXOR
	OpNOR
	OpSLL
	OpSRL
	OpSRA
	OpSLT
	OpSLTU
	OpLUI
	OpAUIPC

	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	// HI/LO operations.
	OpMULT
	OpMULTU
	OpDIVHILO
	OpDIVUHILO
	OpMFHI
	OpMFLO
	OpMTHI
	OpMTLO

	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpBLEZ
	OpBGTZ
	OpBLTZ
	OpBGEZ

	// OpJAL jumps to PC+Imm. OpJALR jumps to Rs1+Imm. OpJ jumps inside the
	// current 256 MiB region.
	OpJAL
	OpJALR
	OpJ

	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW

	OpECALL
	OpEBREAK
	OpFENCE

	numOps
)

var opNames = [numOps]string{
	OpUnknown: "unknown",
	OpADD:     "add", OpSUB: "sub", OpAND: "and", OpOR: "or", OpXOR: "xor",
	OpNOR: "nor", OpSLL: "sll", OpSRL: "srl", OpSRA: "sra", OpSLT: "slt",
	OpSLTU: "sltu", OpLUI: "lui", OpAUIPC: "auipc",
	OpMUL: "mul", OpMULH: "mulh", OpMULHSU: "mulhsu", OpMULHU: "mulhu",
	OpDIV: "div", OpDIVU: "divu", OpREM: "rem", OpREMU: "remu",
	OpMULT: "mult", OpMULTU: "multu", OpDIVHILO: "div.hilo",
	OpDIVUHILO: "divu.hilo", OpMFHI: "mfhi", OpMFLO: "mflo",
	OpMTHI: "mthi", OpMTLO: "mtlo",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge", OpBLTU: "bltu",
	OpBGEU: "bgeu", OpBLEZ: "blez", OpBGTZ: "bgtz", OpBLTZ: "bltz",
	OpBGEZ: "bgez",
	OpJAL:  "jal", OpJALR: "jalr", OpJ: "j",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLBU: "lbu", OpLHU: "lhu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw",
	OpECALL: "ecall", OpEBREAK: "ebreak", OpFENCE: "fence",
}

func (o Op) String() string {
	if o < numOps && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// Class groups operations by the pipeline resources they use.
type Class uint8

// Operation classes.
const (
	ClassIllegal Class = iota
	ClassALU
	ClassMulDiv
	ClassBranch
	ClassJump
	ClassLoad
	ClassStore
	ClassSystem
	ClassNop
)

// MemKind tells whether an instruction accesses data memory.
type MemKind uint8

// Memory access kinds.
const (
	MemNone MemKind = iota
	MemLoad
	MemStore
)

// Instruction is a decoded instruction. Instances are never modified after
// decode.
type Instruction struct {
	ISA   ISA
	Op    Op
	Class Class

	// Rd is the destination, Rs1 and Rs2 the sources. Unused operands are
	// RegNone.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Imm is the sign-extended immediate. For branches it is the byte offset
	// from the branch's own PC. For OpJ it holds the low 28 target bits.
	Imm int32

	// UseImm selects Imm instead of Rs2 as the second ALU operand.
	UseImm bool

	Mem    MemKind
	Size   uint8 // access size in bytes
	Signed bool  // sign-extend loaded data

	// Word is the raw encoding.
	Word uint32
}

// IsLegal reports whether the word decoded to a defined operation.
func (i *Instruction) IsLegal() bool {
	return i.Op != OpUnknown
}

// WritesReg reports whether the instruction commits a register result.
// Writes to register 0 are discarded and do not count.
func (i *Instruction) WritesReg() bool {
	return i.Rd != RegNone && i.Rd != 0
}

// IsControl reports whether the instruction may redirect the PC.
func (i *Instruction) IsControl() bool {
	return i.Class == ClassBranch || i.Class == ClassJump
}

// Reads reports whether reg is a source operand of the instruction.
func (i *Instruction) Reads(reg uint8) bool {
	if reg == 0 || reg == RegNone {
		return false
	}
	return i.Rs1 == reg || i.Rs2 == reg
}

func (i *Instruction) String() string {
	if !i.IsLegal() {
		return fmt.Sprintf(".word 0x%08x", i.Word)
	}

	switch i.Class {
	case ClassLoad:
		return fmt.Sprintf("%s %s, %d(%s)", i.Op, regName(i.Rd), i.Imm, regName(i.Rs1))
	case ClassStore:
		return fmt.Sprintf("%s %s, %d(%s)", i.Op, regName(i.Rs2), i.Imm, regName(i.Rs1))
	case ClassBranch:
		return fmt.Sprintf("%s %s, %s, %+d", i.Op, regName(i.Rs1), regName(i.Rs2), i.Imm)
	case ClassSystem, ClassNop:
		return i.Op.String()
	}

	operands := make([]string, 0, 3)
	for _, r := range []uint8{i.Rd, i.Rs1} {
		if r != RegNone {
			operands = append(operands, regName(r))
		}
	}
	if i.UseImm {
		operands = append(operands, fmt.Sprintf("%d", i.Imm))
	} else if i.Rs2 != RegNone {
		operands = append(operands, regName(i.Rs2))
	}

	return i.Op.String() + " " + strings.Join(operands, ", ")
}

func regName(r uint8) string {
	switch r {
	case RegHILO:
		return "hilo"
	case RegNone:
		return "-"
	default:
		return fmt.Sprintf("r%d", r)
	}
}

// newInst returns an instruction with every operand unused.
func newInst(isa ISA, word uint32) *Instruction {
	return &Instruction{
		ISA:  isa,
		Word: word,
		Rd:   RegNone,
		Rs1:  RegNone,
		Rs2:  RegNone,
	}
}

func (i *Instruction) setLoad(op Op, size uint8, signed bool) {
	i.Op = op
	i.Class = ClassLoad
	i.Mem = MemLoad
	i.Size = size
	i.Signed = signed
}

func (i *Instruction) setStore(op Op, size uint8) {
	i.Op = op
	i.Class = ClassStore
	i.Mem = MemStore
	i.Size = size
}
