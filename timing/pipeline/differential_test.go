package pipeline_test

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/cache"
	"github.com/sarchlab/softcore/timing/latency"
	"github.com/sarchlab/softcore/timing/pipeline"
)

const ramSize = 0x20000

// cachedMachine runs a pipeline behind small caches on a shared bus so that
// misses, evictions and writebacks happen often.
type cachedMachine struct {
	addrMap *bus.AddressMap
	arbiter *bus.Arbiter
	icache  *cache.Cache
	dcache  *cache.Cache
	regFile *emu.RegFile
	pipe    *pipeline.Pipeline
	retired []uint32
	grants  int
}

func newCachedMachine(prog *insts.Program) *cachedMachine {
	m := &cachedMachine{regFile: &emu.RegFile{}}

	m.addrMap = bus.NewAddressMap()
	ram := bus.NewRAM(ramSize, latency.DefaultTimingConfig())
	Expect(m.addrMap.Add(&bus.Window{Name: "ram", Base: codeBase, Size: ramSize,
		Target: ram, Cacheable: true, Burst: true})).To(Succeed())

	m.arbiter = bus.NewArbiter(m.addrMap)
	m.icache = cache.New(cache.Config{Size: 128, Associativity: 2, BlockSize: 16},
		m.arbiter.NewPort("icache", bus.PriorityInstruction), m.addrMap, cache.WithReadOnly())
	m.dcache = cache.New(cache.Config{Size: 64, Associativity: 2, BlockSize: 16},
		m.arbiter.NewPort("dcache", bus.PriorityData), m.addrMap)

	image, err := prog.Bytes()
	Expect(err).NotTo(HaveOccurred())
	Expect(m.addrMap.LoadBytes(prog.Base(), image)).To(Succeed())

	m.pipe = pipeline.NewPipeline(m.regFile, m.icache, m.dcache,
		pipeline.WithISA(prog.ISA()),
		pipeline.WithRetireHook(func(ev pipeline.RetireEvent) {
			m.retired = append(m.retired, ev.PC)
		}))
	m.pipe.SetPC(prog.Base())
	return m
}

func (m *cachedMachine) run() int64 {
	for cycle := 0; cycle < 2_000_000 && !m.pipe.Halted(); cycle++ {
		m.pipe.Tick()
		m.arbiter.Tick()
		if m.arbiter.GrantedThisCycle() {
			m.grants++
		}
	}
	Expect(m.pipe.Halted()).To(BeTrue(), "program did not finish")
	Expect(m.pipe.Fault()).To(BeNil())
	return m.pipe.ExitCode()
}

// reference runs the same program on the functional emulator and records
// the PC of every executed instruction.
type reference struct {
	emu     *emu.Emulator
	retired []uint32
}

func runReference(prog *insts.Program) *reference {
	words, err := prog.Words()
	Expect(err).NotTo(HaveOccurred())

	r := &reference{emu: emu.NewEmulator(emu.WithISA(prog.ISA()))}
	r.emu.Memory().LoadWords(prog.Base(), words)
	r.emu.SetPC(prog.Base())
	for i := 0; i < 1_000_000 && !r.emu.Halted(); i++ {
		res := r.emu.Step()
		if res.Fault == nil {
			r.retired = append(r.retired, res.PC)
		}
	}
	Expect(r.emu.Halted()).To(BeTrue())
	Expect(r.emu.Fault()).To(BeNil())
	return r
}

var sortValues = []int32{2, -4, 1, -3, 0, -2, -5, 3, 5, 4, -1, -6}

func bubbleSort(p *insts.Program) {
	a := p.ABI()
	p.LA(a.S0, "data")
	p.LI(a.S1, int32(len(sortValues)))
	p.Label("outer")
	p.ADDI(a.S1, a.S1, -1)
	p.BEQ(a.S1, a.Zero, "done")
	p.MV(a.T0, a.S0)
	p.MV(a.T1, a.S1)
	p.Label("inner")
	p.LW(a.T2, a.T0, 0)
	p.LW(a.T3, a.T0, 4)
	p.BGE(a.T3, a.T2, "noswap")
	p.SW(a.T3, a.T0, 0)
	p.SW(a.T2, a.T0, 4)
	p.Label("noswap")
	p.ADDI(a.T0, a.T0, 4)
	p.ADDI(a.T1, a.T1, -1)
	p.BNE(a.T1, a.Zero, "inner")
	p.J("outer")
	p.Label("done")
	p.LW(a.A0, a.S0, 0)
	p.Exit(a.A0)
	p.Label("data")
	for _, v := range sortValues {
		p.Word(uint32(v))
	}
}

func stridedWalk(p *insts.Program) {
	a := p.ABI()
	p.LI(a.S0, dataBase)
	p.LI(a.T0, 0)
	p.LI(a.T1, 32)
	p.Label("fill")
	p.SW(a.T0, a.S0, 0)
	p.ADDI(a.S0, a.S0, 48)
	p.ADDI(a.T0, a.T0, 3)
	p.ADDI(a.T1, a.T1, -1)
	p.BNE(a.T1, a.Zero, "fill")

	p.LI(a.S0, dataBase)
	p.LI(a.T1, 32)
	p.LI(a.A0, 0)
	p.Label("sum")
	p.LW(a.T2, a.S0, 0)
	p.ADD(a.A0, a.A0, a.T2)
	p.ADDI(a.S0, a.S0, 48)
	p.ADDI(a.T1, a.T1, -1)
	p.BNE(a.T1, a.Zero, "sum")
	p.Exit(a.A0)
}

func mixedArithmetic(p *insts.Program) {
	a := p.ABI()
	p.LI(a.T0, 1)
	p.LI(a.T1, 20)
	p.LI(a.S0, 0x12345)
	p.Label("loop")
	p.MUL(a.T2, a.T0, a.S0)
	p.DIV(a.T3, a.T2, a.T1)
	p.REM(a.T4, a.T2, a.T1)
	p.XOR(a.S0, a.S0, a.T3)
	p.SLLI(a.T5, a.T4, 3)
	p.SRAI(a.T5, a.T5, 1)
	p.SLT(a.T2, a.T5, a.T3)
	p.ADD(a.S0, a.S0, a.T2)
	p.ADDI(a.T0, a.T0, 1)
	p.BNE(a.T0, a.T1, "loop")
	p.ANDI(a.A0, a.S0, 0xFF)
	p.Exit(a.A0)
}

func subWordAccess(p *insts.Program) {
	a := p.ABI()
	p.LI(a.S0, dataBase)
	p.LI(a.T0, -3)
	p.SB(a.T0, a.S0, 1)
	p.SH(a.T0, a.S0, 6)
	p.LI(a.T1, 0x7F)
	p.SB(a.T1, a.S0, 3)
	p.LB(a.T2, a.S0, 1)
	p.LBU(a.T3, a.S0, 1)
	p.LH(a.T4, a.S0, 6)
	p.LW(a.T5, a.S0, 0)
	p.ADD(a.A0, a.T2, a.T3)
	p.ADD(a.A0, a.A0, a.T4)
	p.ADD(a.A0, a.A0, a.T5)
	p.Exit(a.A0)
}

var _ = Describe("Pipeline against the reference emulator", func() {
	programs := map[string]func(*insts.Program){
		"bubble sort":      bubbleSort,
		"strided walk":     stridedWalk,
		"mixed arithmetic": mixedArithmetic,
		"sub-word access":  subWordAccess,
	}

	for _, isa := range []insts.ISA{insts.RISCV, insts.MIPS} {
		for name, build := range programs {
			isa, name, build := isa, name, build

			It(isa.String()+" "+name+" should match", func() {
				prog := insts.NewProgram(isa, codeBase)
				build(prog)

				ref := runReference(prog)
				m := newCachedMachine(prog)
				code := m.run()

				Expect(code).To(Equal(ref.emu.ExitCode()))
				Expect(cmp.Diff(ref.emu.RegFile().X, m.regFile.X)).To(BeEmpty())
				Expect(m.regFile.HILO).To(Equal(ref.emu.RegFile().HILO))
				Expect(cmp.Diff(ref.retired, m.retired)).To(BeEmpty())

				Expect(m.dcache.Flush()).To(Succeed())
				image, err := prog.Bytes()
				Expect(err).NotTo(HaveOccurred())
				for _, region := range []struct {
					base uint32
					size int
				}{
					{codeBase, len(image)},
					{dataBase, 2048},
				} {
					got, err := m.addrMap.ReadBytes(region.base, region.size)
					Expect(err).NotTo(HaveOccurred())
					want := ref.emu.Memory().ReadBytes(region.base, region.size)
					Expect(cmp.Diff(want, got)).To(BeEmpty())
				}

				stats := m.pipe.Stats()
				Expect(stats.Instructions).To(Equal(ref.emu.InstructionCount()))
				Expect(stats.CPI()).To(BeNumerically(">", 1))
				Expect(m.icache.Stats().Misses).To(BeNumerically(">", 0))
			})
		}
	}

	It("should sort the array", func() {
		prog := insts.NewProgram(insts.RISCV, codeBase)
		bubbleSort(prog)
		m := newCachedMachine(prog)

		Expect(m.run()).To(Equal(int64(-6)))
		Expect(m.dcache.Flush()).To(Succeed())

		addr, ok := prog.Addr("data")
		Expect(ok).To(BeTrue())
		want := []int32{-6, -5, -4, -3, -2, -1, 0, 1, 2, 3, 4, 5}
		for i, v := range want {
			got, err := m.addrMap.Peek(addr + uint32(4*i))
			Expect(err).NotTo(HaveOccurred())
			Expect(int32(got)).To(Equal(v))
		}
	})

	It("should stall Memory on data cache misses", func() {
		prog := insts.NewProgram(insts.RISCV, codeBase)
		stridedWalk(prog)
		m := newCachedMachine(prog)
		m.run()

		stats := m.pipe.Stats()
		Expect(stats.MemStalls).To(BeNumerically(">", 0))
		Expect(stats.FetchStalls).To(BeNumerically(">", 0))
		Expect(m.dcache.Stats().Writebacks).To(BeNumerically(">", 0))
		Expect(uint64(m.grants)).To(Equal(m.arbiter.Stats().Grants))
	})
})
