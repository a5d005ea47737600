package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/latency"
)

var _ = Describe("Latency", func() {
	var (
		table   *latency.Table
		decoder insts.Decoder
	)

	BeforeEach(func() {
		table = latency.NewTable()
		decoder = insts.NewDecoder(insts.RISCV)
	})

	Describe("Default Timing Values", func() {
		It("should have single-cycle ALU and branch latency", func() {
			config := table.Config()
			Expect(config.ALULatency).To(Equal(uint64(1)))
			Expect(config.BranchLatency).To(Equal(uint64(1)))
		})

		It("should have a multi-cycle multiplier and divider", func() {
			config := table.Config()
			Expect(config.MultiplyLatency).To(Equal(uint64(3)))
			Expect(config.DivideLatency).To(Equal(uint64(16)))
		})

		It("should validate", func() {
			Expect(table.Config().Validate()).To(Succeed())
		})
	})

	Describe("Instruction Latencies", func() {
		It("should return the ALU latency for ADD", func() {
			// add x1, x2, x3
			inst := decoder.Decode(insts.EncodeR(0x33, 1, 0, 2, 3, 0))
			Expect(table.GetLatency(inst)).To(Equal(uint64(1)))
		})

		It("should return the multiply latency for MUL", func() {
			inst := decoder.Decode(insts.EncodeR(0x33, 1, 0, 2, 3, 1))
			Expect(table.GetLatency(inst)).To(Equal(uint64(3)))
		})

		It("should return the divide latency for DIV and REMU", func() {
			div := decoder.Decode(insts.EncodeR(0x33, 1, 4, 2, 3, 1))
			remu := decoder.Decode(insts.EncodeR(0x33, 1, 7, 2, 3, 1))
			Expect(table.GetLatency(div)).To(Equal(uint64(16)))
			Expect(table.GetLatency(remu)).To(Equal(uint64(16)))
		})

		It("should return the divide latency for MIPS DIV into HI/LO", func() {
			mips := insts.NewDecoder(insts.MIPS)
			inst := mips.Decode(insts.EncodeMIPSR(4, 5, 0, 0, 0x1A))
			Expect(table.GetLatency(inst)).To(Equal(uint64(16)))
		})

		It("should return 1 for nil", func() {
			Expect(table.GetLatency(nil)).To(Equal(uint64(1)))
		})

		It("should use a custom config", func() {
			config := latency.DefaultTimingConfig()
			config.MultiplyLatency = 5
			custom := latency.NewTableWithConfig(config)
			inst := decoder.Decode(insts.EncodeR(0x33, 1, 0, 2, 3, 1))
			Expect(custom.GetLatency(inst)).To(Equal(uint64(5)))
		})
	})

	Describe("Instruction Classification", func() {
		It("should classify loads and stores", func() {
			lw := decoder.Decode(insts.EncodeI(0x03, 1, 2, 2, 0))
			sw := decoder.Decode(insts.EncodeS(0x23, 2, 2, 1, 0))

			Expect(table.IsMemoryOp(lw)).To(BeTrue())
			Expect(table.IsLoadOp(lw)).To(BeTrue())
			Expect(table.IsStoreOp(lw)).To(BeFalse())
			Expect(table.IsStoreOp(sw)).To(BeTrue())
		})

		It("should classify branches and jumps", func() {
			beq := decoder.Decode(insts.EncodeB(0x63, 0, 1, 2, 8))
			jal := decoder.Decode(insts.EncodeJ(0x6F, 1, 16))
			add := decoder.Decode(insts.EncodeR(0x33, 1, 0, 2, 3, 0))

			Expect(table.IsBranchOp(beq)).To(BeTrue())
			Expect(table.IsBranchOp(jal)).To(BeTrue())
			Expect(table.IsBranchOp(add)).To(BeFalse())
		})
	})

	Describe("Bus Target Service Times", func() {
		It("should charge the first word and then per word", func() {
			config := latency.DefaultTimingConfig()
			Expect(config.RAMCycles(1)).To(Equal(uint64(4)))
			Expect(config.RAMCycles(4)).To(Equal(uint64(7)))
			Expect(config.RAMCycles(0)).To(Equal(uint64(4)))
		})

		It("should charge the serial RAM command phase", func() {
			config := latency.DefaultTimingConfig()
			Expect(config.SerialRAMCycles(1)).To(Equal(uint64(12)))
			Expect(config.SerialRAMCycles(4)).To(Equal(uint64(24)))
		})
	})

	Describe("Config Files", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "latency")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("should round trip through JSON", func() {
			config := latency.DefaultTimingConfig()
			config.DivideLatency = 33
			path := filepath.Join(dir, "timing.json")

			Expect(config.SaveConfig(path)).To(Succeed())
			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should round trip through YAML", func() {
			config := latency.DefaultTimingConfig()
			config.MemoryLatency = 9
			path := filepath.Join(dir, "timing.yaml")

			Expect(config.SaveConfig(path)).To(Succeed())
			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should keep defaults for missing YAML fields", func() {
			path := filepath.Join(dir, "partial.yml")
			Expect(os.WriteFile(path, []byte("alu_latency: 2\n"), 0644)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.ALULatency).To(Equal(uint64(2)))
			Expect(loaded.DivideLatency).To(Equal(uint64(16)))
		})

		It("should report a missing file", func() {
			_, err := latency.LoadConfig(filepath.Join(dir, "missing.json"))
			Expect(err).To(MatchError(ContainSubstring("failed to read")))
		})

		It("should report malformed JSON", func() {
			path := filepath.Join(dir, "bad.json")
			Expect(os.WriteFile(path, []byte("{"), 0644)).To(Succeed())
			_, err := latency.LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("failed to parse")))
		})
	})

	Describe("Validate and Clone", func() {
		It("should reject a zero divide latency", func() {
			config := latency.DefaultTimingConfig()
			config.DivideLatency = 0
			Expect(config.Validate()).To(MatchError("divide_latency must be > 0"))
		})

		It("should clone independently", func() {
			config := latency.DefaultTimingConfig()
			clone := config.Clone()
			clone.ALULatency = 7
			Expect(config.ALULatency).To(Equal(uint64(1)))
		})
	})
})
