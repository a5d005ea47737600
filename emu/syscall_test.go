package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/insts"
)

var _ = Describe("DefaultSyscallHandler", func() {
	var (
		regFile *emu.RegFile
		ecall   = &insts.Instruction{Op: insts.OpECALL, Class: insts.ClassSystem}
		ebreak  = &insts.Instruction{Op: insts.OpEBREAK, Class: insts.ClassSystem}
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
	})

	Context("RISC-V", func() {
		It("should exit with a0", func() {
			regFile.WriteReg(17, 93)
			regFile.WriteReg(10, uint64(uint32(0xFFFFFFFF)))

			result := emu.NewDefaultSyscallHandler(insts.RISCV, regFile).Handle(ecall)
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(-1)))
		})

		It("should return -ENOSYS for unknown calls", func() {
			regFile.WriteReg(17, 1234)

			result := emu.NewDefaultSyscallHandler(insts.RISCV, regFile).Handle(ecall)
			Expect(result.Exited).To(BeFalse())
			Expect(result.Unsupported).To(BeTrue())
			Expect(int32(regFile.ReadReg(10))).To(Equal(int32(-emu.ENOSYS)))
		})

		It("should halt on ebreak", func() {
			regFile.WriteReg(10, 3)
			result := emu.NewDefaultSyscallHandler(insts.RISCV, regFile).Handle(ebreak)
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(3)))
		})
	})

	Context("MIPS", func() {
		It("should exit with status 0 for call 10", func() {
			regFile.WriteReg(2, 10)
			regFile.WriteReg(4, 9)

			result := emu.NewDefaultSyscallHandler(insts.MIPS, regFile).Handle(ecall)
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(BeZero())
		})

		It("should exit with $a0 for call 17", func() {
			regFile.WriteReg(2, 17)
			regFile.WriteReg(4, 9)

			result := emu.NewDefaultSyscallHandler(insts.MIPS, regFile).Handle(ecall)
			Expect(result.ExitCode).To(Equal(int64(9)))
		})
	})
})

var _ = Describe("RegFile", func() {
	It("should discard writes to register 0", func() {
		r := &emu.RegFile{}
		r.WriteReg(0, 5)
		Expect(r.ReadReg(0)).To(BeZero())
	})

	It("should hold 64-bit HI/LO", func() {
		r := &emu.RegFile{}
		r.WriteReg(insts.RegHILO, 0x1_2345_6789)
		Expect(r.ReadReg(insts.RegHILO)).To(Equal(uint64(0x1_2345_6789)))
	})

	It("should truncate general registers to 32 bits", func() {
		r := &emu.RegFile{}
		r.WriteReg(3, 0x1_0000_0005)
		Expect(r.ReadReg(3)).To(Equal(uint64(5)))
		Expect(r.ReadReg(insts.RegNone)).To(BeZero())
	})
})
