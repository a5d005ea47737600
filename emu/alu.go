package emu

import (
	"math"

	"github.com/sarchlab/softcore/insts"
)

// SecondOperand selects the immediate or the Rs2 value as the second ALU
// operand.
func SecondOperand(inst *insts.Instruction, rs2Value uint64) uint64 {
	if inst.UseImm {
		return uint64(uint32(inst.Imm))
	}
	return rs2Value
}

// ExecuteALU computes the register result of an ALU, multiply/divide or
// jump instruction. a and b are the first and second operands as returned
// by ReadReg and SecondOperand. Results for 32-bit registers are
// zero-extended; HI/LO results use all 64 bits.
func ExecuteALU(inst *insts.Instruction, pc uint32, a, b uint64) uint64 {
	x, y := uint32(a), uint32(b)

	switch inst.Op {
	case insts.OpADD:
		return uint64(x + y)
	case insts.OpSUB:
		return uint64(x - y)
	case insts.OpAND:
		return uint64(x & y)
	case insts.OpOR:
		return uint64(x | y)
	case insts.OpXOR:
		return uint64(x ^ y)
	case insts.OpNOR:
		return uint64(^(x | y))
	case insts.OpSLL:
		return uint64(x << (y & 0x1F))
	case insts.OpSRL:
		return uint64(x >> (y & 0x1F))
	case insts.OpSRA:
		return uint64(uint32(int32(x) >> (y & 0x1F)))
	case insts.OpSLT:
		return boolToReg(int32(x) < int32(y))
	case insts.OpSLTU:
		return boolToReg(x < y)
	case insts.OpLUI:
		return uint64(y)
	case insts.OpAUIPC:
		return uint64(pc + y)

	case insts.OpMUL:
		return uint64(x * y)
	case insts.OpMULH:
		return uint64(uint32(uint64(int64(int32(x))*int64(int32(y))) >> 32))
	case insts.OpMULHSU:
		return uint64(uint32(uint64(int64(int32(x))*int64(y)) >> 32))
	case insts.OpMULHU:
		return (uint64(x) * uint64(y)) >> 32
	case insts.OpDIV:
		q, _ := divSigned(x, y)
		return uint64(q)
	case insts.OpDIVU:
		q, _ := divUnsigned(x, y)
		return uint64(q)
	case insts.OpREM:
		_, r := divSigned(x, y)
		return uint64(r)
	case insts.OpREMU:
		_, r := divUnsigned(x, y)
		return uint64(r)

	case insts.OpMULT:
		return uint64(int64(int32(x)) * int64(int32(y)))
	case insts.OpMULTU:
		return uint64(x) * uint64(y)
	case insts.OpDIVHILO:
		q, r := divSigned(x, y)
		return uint64(r)<<32 | uint64(q)
	case insts.OpDIVUHILO:
		q, r := divUnsigned(x, y)
		return uint64(r)<<32 | uint64(q)
	case insts.OpMFHI:
		return a >> 32
	case insts.OpMFLO:
		return a & 0xFFFFFFFF
	case insts.OpMTHI:
		return uint64(x)<<32 | b&0xFFFFFFFF
	case insts.OpMTLO:
		return b&^0xFFFFFFFF | uint64(x)

	case insts.OpJAL, insts.OpJALR, insts.OpJ:
		return uint64(pc + 4)
	}

	return 0
}

// divSigned divides with RISC-V semantics: division by zero yields a
// quotient of all ones and the dividend as remainder; overflow yields the
// dividend and a zero remainder.
func divSigned(x, y uint32) (q, r uint32) {
	n, d := int32(x), int32(y)
	switch {
	case d == 0:
		return math.MaxUint32, x
	case n == math.MinInt32 && d == -1:
		return x, 0
	}
	return uint32(n / d), uint32(n % d)
}

func divUnsigned(x, y uint32) (q, r uint32) {
	if y == 0 {
		return math.MaxUint32, x
	}
	return x / y, x % y
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// IsDivide reports whether an operation uses the divider.
func IsDivide(op insts.Op) bool {
	switch op {
	case insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU,
		insts.OpDIVHILO, insts.OpDIVUHILO:
		return true
	}
	return false
}
