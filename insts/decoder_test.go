package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/insts"
)

var _ = Describe("RISCVDecoder", func() {
	var decoder insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder(insts.RISCV)
	})

	It("should report its ISA", func() {
		Expect(decoder.ISA()).To(Equal(insts.RISCV))
	})

	// addi x5, x6, 10
	It("should decode ADDI", func() {
		inst := decoder.Decode(0x00A30293)

		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect(inst.Class).To(Equal(insts.ClassALU))
		Expect(inst.Rd).To(Equal(uint8(5)))
		Expect(inst.Rs1).To(Equal(uint8(6)))
		Expect(inst.Rs2).To(Equal(insts.RegNone))
		Expect(inst.UseImm).To(BeTrue())
		Expect(inst.Imm).To(Equal(int32(10)))
	})

	// add x1, x2, x3 / sub x1, x2, x3
	It("should decode ADD and SUB", func() {
		add := decoder.Decode(0x003100B3)
		Expect(add.Op).To(Equal(insts.OpADD))
		Expect(add.UseImm).To(BeFalse())
		Expect([]uint8{add.Rd, add.Rs1, add.Rs2}).To(Equal([]uint8{1, 2, 3}))

		sub := decoder.Decode(0x403100B3)
		Expect(sub.Op).To(Equal(insts.OpSUB))
	})

	// mul x3, x1, x2
	It("should decode the M extension", func() {
		inst := decoder.Decode(0x022081B3)
		Expect(inst.Op).To(Equal(insts.OpMUL))
		Expect(inst.Class).To(Equal(insts.ClassMulDiv))
	})

	// lw x5, -4(x2)
	It("should decode loads with negative offsets", func() {
		inst := decoder.Decode(0xFFC12283)

		Expect(inst.Op).To(Equal(insts.OpLW))
		Expect(inst.Mem).To(Equal(insts.MemLoad))
		Expect(inst.Size).To(Equal(uint8(4)))
		Expect(inst.Signed).To(BeTrue())
		Expect(inst.Rd).To(Equal(uint8(5)))
		Expect(inst.Rs1).To(Equal(uint8(2)))
		Expect(inst.Imm).To(Equal(int32(-4)))
	})

	// sw x5, 8(x2)
	It("should decode stores", func() {
		inst := decoder.Decode(0x00512423)

		Expect(inst.Op).To(Equal(insts.OpSW))
		Expect(inst.Mem).To(Equal(insts.MemStore))
		Expect(inst.Rd).To(Equal(insts.RegNone))
		Expect(inst.Rs1).To(Equal(uint8(2)))
		Expect(inst.Rs2).To(Equal(uint8(5)))
		Expect(inst.Imm).To(Equal(int32(8)))
		Expect(inst.WritesReg()).To(BeFalse())
	})

	It("should decode branch and jump offsets", func() {
		beq := decoder.Decode(insts.EncodeB(0x63, 0, 1, 2, -8))
		Expect(beq.Op).To(Equal(insts.OpBEQ))
		Expect(beq.Imm).To(Equal(int32(-8)))

		bgeu := decoder.Decode(insts.EncodeB(0x63, 7, 1, 2, 4094))
		Expect(bgeu.Op).To(Equal(insts.OpBGEU))
		Expect(bgeu.Imm).To(Equal(int32(4094)))

		jal := decoder.Decode(insts.EncodeJ(0x6F, 1, -2048))
		Expect(jal.Op).To(Equal(insts.OpJAL))
		Expect(jal.Rd).To(Equal(uint8(1)))
		Expect(jal.Imm).To(Equal(int32(-2048)))
	})

	It("should decode shift immediates", func() {
		srai := decoder.Decode(insts.EncodeI(0x13, 3, 5, 4, 0x400|7))
		Expect(srai.Op).To(Equal(insts.OpSRA))
		Expect(srai.Imm).To(Equal(int32(7)))

		srli := decoder.Decode(insts.EncodeI(0x13, 3, 5, 4, 7))
		Expect(srli.Op).To(Equal(insts.OpSRL))
	})

	It("should decode system instructions", func() {
		Expect(decoder.Decode(0x00000073).Op).To(Equal(insts.OpECALL))
		Expect(decoder.Decode(0x00100073).Op).To(Equal(insts.OpEBREAK))
		Expect(decoder.Decode(0x0000000F).Class).To(Equal(insts.ClassNop))
	})

	It("should flag undefined encodings", func() {
		for _, word := range []uint32{0xFFFFFFFF, 0x00000000, 0x34011073, 0x00003067} {
			inst := decoder.Decode(word)
			Expect(inst.IsLegal()).To(BeFalse(), "word %08x", word)
			Expect(inst.Word).To(Equal(word))
		}
	})
})

var _ = Describe("MIPSDecoder", func() {
	var decoder insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder(insts.MIPS)
	})

	// addiu $t0, $zero, 5
	It("should decode ADDIU", func() {
		inst := decoder.Decode(0x24080005)

		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect(inst.Rd).To(Equal(uint8(8)))
		Expect(inst.Rs1).To(Equal(uint8(0)))
		Expect(inst.Imm).To(Equal(int32(5)))
		Expect(inst.UseImm).To(BeTrue())
	})

	// addu $t2, $t0, $t1
	It("should decode ADDU", func() {
		inst := decoder.Decode(0x01095021)
		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect([]uint8{inst.Rd, inst.Rs1, inst.Rs2}).To(Equal([]uint8{10, 8, 9}))
	})

	// lw $t0, 4($sp) / sw $t0, -8($sp)
	It("should decode loads and stores", func() {
		lw := decoder.Decode(0x8FA80004)
		Expect(lw.Op).To(Equal(insts.OpLW))
		Expect(lw.Rd).To(Equal(uint8(8)))
		Expect(lw.Rs1).To(Equal(uint8(29)))
		Expect(lw.Imm).To(Equal(int32(4)))

		sw := decoder.Decode(0xAFA8FFF8)
		Expect(sw.Op).To(Equal(insts.OpSW))
		Expect(sw.Rs1).To(Equal(uint8(29)))
		Expect(sw.Rs2).To(Equal(uint8(8)))
		Expect(sw.Imm).To(Equal(int32(-8)))
	})

	// beq $t0, $t1, +3 words
	It("should convert branch offsets to bytes from the branch", func() {
		inst := decoder.Decode(0x11090003)
		Expect(inst.Op).To(Equal(insts.OpBEQ))
		Expect(inst.Imm).To(Equal(int32(16)))
	})

	It("should route HI/LO through the pseudo-register", func() {
		mult := decoder.Decode(0x01090018)
		Expect(mult.Op).To(Equal(insts.OpMULT))
		Expect(mult.Rd).To(Equal(insts.RegHILO))

		mflo := decoder.Decode(0x00005012)
		Expect(mflo.Op).To(Equal(insts.OpMFLO))
		Expect(mflo.Rd).To(Equal(uint8(10)))
		Expect(mflo.Rs1).To(Equal(insts.RegHILO))
	})

	// jal 0x00400100
	It("should decode JAL with the link register", func() {
		inst := decoder.Decode(0x0C100040)
		Expect(inst.Op).To(Equal(insts.OpJ))
		Expect(inst.Imm).To(Equal(int32(0x400100)))
		Expect(inst.Rd).To(Equal(uint8(31)))
	})

	It("should decode NOP as a discarded shift", func() {
		inst := decoder.Decode(0)
		Expect(inst.Op).To(Equal(insts.OpSLL))
		Expect(inst.WritesReg()).To(BeFalse())
	})

	It("should decode SYSCALL and BREAK", func() {
		Expect(decoder.Decode(0x0000000C).Op).To(Equal(insts.OpECALL))
		Expect(decoder.Decode(0x0000000D).Op).To(Equal(insts.OpEBREAK))
	})

	It("should flag undefined encodings", func() {
		Expect(decoder.Decode(0xFC000000).IsLegal()).To(BeFalse())
		Expect(decoder.Decode(0x0000003F).IsLegal()).To(BeFalse())
	})
})
