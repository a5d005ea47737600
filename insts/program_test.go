package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/insts"
)

// evalConst interprets the constant-loading words LI and LA emit.
func evalConst(isa insts.ISA, words []uint32) uint32 {
	decoder := insts.NewDecoder(isa)
	var v uint32
	for _, w := range words {
		inst := decoder.Decode(w)
		switch inst.Op {
		case insts.OpLUI:
			v = uint32(inst.Imm)
		case insts.OpADD:
			if inst.Rs1 == 0 {
				v = uint32(inst.Imm)
			} else {
				v += uint32(inst.Imm)
			}
		case insts.OpOR:
			if inst.Rs1 == 0 {
				v = uint32(inst.Imm)
			} else {
				v |= uint32(inst.Imm)
			}
		default:
			Fail("unexpected op " + inst.Op.String())
		}
	}
	return v
}

var _ = Describe("Program", func() {
	for _, isa := range []insts.ISA{insts.RISCV, insts.MIPS} {
		isa := isa

		Context(isa.String(), func() {
			var (
				prog    *insts.Program
				decoder insts.Decoder
			)

			BeforeEach(func() {
				prog = insts.NewProgram(isa, 0x0010_0000)
				decoder = insts.NewDecoder(isa)
			})

			It("should resolve forward and backward branches", func() {
				abi := prog.ABI()
				prog.Label("top")
				prog.ADDI(abi.T0, abi.T0, 1)
				prog.BNE(abi.T0, abi.T1, "top")
				prog.BEQ(abi.T0, abi.T1, "end")
				prog.NOP()
				prog.Label("end")
				prog.EBREAK()

				words, err := prog.Words()
				Expect(err).NotTo(HaveOccurred())
				Expect(words).To(HaveLen(5))

				bne := decoder.Decode(words[1])
				Expect(bne.Op).To(Equal(insts.OpBNE))
				Expect(bne.Imm).To(Equal(int32(-4)))

				beq := decoder.Decode(words[2])
				Expect(beq.Op).To(Equal(insts.OpBEQ))
				Expect(beq.Imm).To(Equal(int32(8)))
			})

			It("should resolve jumps and calls", func() {
				prog.CALL("fn")
				prog.J("done")
				prog.Label("fn")
				prog.RET()
				prog.Label("done")
				prog.EBREAK()

				words, err := prog.Words()
				Expect(err).NotTo(HaveOccurred())

				call := decoder.Decode(words[0])
				Expect(call.IsControl()).To(BeTrue())
				Expect(call.Rd).To(Equal(prog.ABI().RA))

				ret := decoder.Decode(words[2])
				Expect(ret.Op).To(Equal(insts.OpJALR))
				Expect(ret.Rs1).To(Equal(prog.ABI().RA))
			})

			It("should load constants of every width", func() {
				for _, v := range []int32{0, 7, -1, 2047, -2048, 0x7FFF, 0xFFFF, 0x12345, -0x12345, 0x7FFFF800, -0x80000000} {
					p := insts.NewProgram(isa, 0)
					p.LI(p.ABI().T0, v)
					words, err := p.Words()
					Expect(err).NotTo(HaveOccurred())
					Expect(len(words)).To(BeNumerically("<=", 2))
					Expect(evalConst(isa, words)).To(Equal(uint32(v)), "constant %d", v)
				}
			})

			It("should load label addresses in two words", func() {
				prog.LA(prog.ABI().A0, "data")
				prog.EBREAK()
				prog.Label("data")
				prog.Word(0xDEADBEEF)

				words, err := prog.Words()
				Expect(err).NotTo(HaveOccurred())
				addr, ok := prog.Addr("data")
				Expect(ok).To(BeTrue())
				Expect(evalConst(isa, words[:2])).To(Equal(addr))
			})

			It("should report undefined labels", func() {
				prog.J("nowhere")
				_, err := prog.Words()
				Expect(err).To(MatchError(ContainSubstring("nowhere")))
			})

			It("should emit little-endian bytes", func() {
				prog.Word(0x11223344)
				b, err := prog.Bytes()
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))
			})

			It("should pad data to whole words", func() {
				prog.Data([]byte{1, 2, 3, 4, 5})
				Expect(prog.PC()).To(Equal(uint32(0x0010_0008)))
			})
		})
	}
})
