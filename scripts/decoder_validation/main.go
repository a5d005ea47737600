// Validate the decoders against the assembler and measure decode cost.
package main

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/sarchlab/softcore/insts"
)

// assemble emits one of every instruction the assembler knows.
func assemble(isa insts.ISA) ([]uint32, error) {
	p := insts.NewProgram(isa, 0x100000)
	a := p.ABI()

	p.Label("top")
	p.ADD(a.T0, a.T1, a.T2)
	p.SUB(a.T0, a.T1, a.T2)
	p.AND(a.T0, a.T1, a.T2)
	p.OR(a.T0, a.T1, a.T2)
	p.XOR(a.T0, a.T1, a.T2)
	p.SLT(a.T0, a.T1, a.T2)
	p.SLTU(a.T0, a.T1, a.T2)
	p.MUL(a.T0, a.T1, a.T2)
	p.DIV(a.T0, a.T1, a.T2)
	p.REM(a.T0, a.T1, a.T2)
	p.ADDI(a.T0, a.T1, -42)
	p.ANDI(a.T0, a.T1, 0xFF)
	p.ORI(a.T0, a.T1, 0x10)
	p.XORI(a.T0, a.T1, 1)
	p.SLTI(a.T0, a.T1, 7)
	p.SLLI(a.T0, a.T1, 3)
	p.SRLI(a.T0, a.T1, 4)
	p.SRAI(a.T0, a.T1, 5)
	p.LI(a.A0, 0x12345678)
	p.LA(a.A1, "top")
	p.LW(a.T0, a.SP, 8)
	p.LH(a.T0, a.SP, -2)
	p.LHU(a.T0, a.SP, 2)
	p.LB(a.T0, a.SP, -1)
	p.LBU(a.T0, a.SP, 1)
	p.SW(a.T0, a.SP, 4)
	p.SH(a.T0, a.SP, 2)
	p.SB(a.T0, a.SP, 1)
	p.BEQ(a.T0, a.T1, "top")
	p.BNE(a.T0, a.T1, "top")
	p.BLT(a.T0, a.T1, "top")
	p.BGE(a.T0, a.T1, "top")
	p.BLTU(a.T0, a.T1, "top")
	p.BGEU(a.T0, a.T1, "top")
	p.J("top")
	p.CALL("top")
	p.RET()
	p.NOP()
	p.EBREAK()
	p.ExitImm(0)

	return p.Words()
}

func main() {
	failed := false
	for _, isa := range []insts.ISA{insts.RISCV, insts.MIPS} {
		if !validate(isa) {
			failed = true
		}
		fmt.Println()
	}

	if failed {
		os.Exit(1)
	}
}

func validate(isa insts.ISA) bool {
	words, err := assemble(isa)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", isa, err)
		return false
	}

	decoder := insts.NewDecoder(isa)
	ops := map[string]int{}
	ok := true
	for i, w := range words {
		inst := decoder.Decode(w)
		if !inst.IsLegal() || inst.Word != w {
			fmt.Printf("  %s: word %d (%08x) decoded as %s\n", isa, i, w, inst)
			ok = false
			continue
		}
		ops[inst.Op.String()]++
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Decoder Validation Results (%s):\n", isa)
	fmt.Printf("========================================\n")
	fmt.Printf("Words assembled: %d\n", len(words))
	fmt.Printf("Distinct operations: %d\n", len(names))
	for _, name := range names {
		fmt.Printf("  %-8s %d\n", name, ops[name])
	}

	// Warm up
	for i := 0; i < 1000; i++ {
		decoder.Decode(words[i%len(words)])
	}

	runtime.GC()
	var m1, m2 runtime.MemStats
	runtime.ReadMemStats(&m1)

	start := time.Now()
	iterations := 100000
	for i := 0; i < iterations; i++ {
		for _, w := range words {
			decoder.Decode(w)
		}
	}

	elapsed := time.Since(start)
	runtime.ReadMemStats(&m2)

	totalDecodes := iterations * len(words)
	allocations := m2.Mallocs - m1.Mallocs
	allocatedBytes := m2.TotalAlloc - m1.TotalAlloc

	fmt.Printf("Total decode operations: %d\n", totalDecodes)
	fmt.Printf("Time elapsed: %v\n", elapsed)
	fmt.Printf("Decodes per second: %.0f\n", float64(totalDecodes)/elapsed.Seconds())
	fmt.Printf("Allocations per decode: %.3f\n", float64(allocations)/float64(totalDecodes))
	fmt.Printf("Bytes per decode: %.1f\n", float64(allocatedBytes)/float64(totalDecodes))

	if ok {
		fmt.Printf("\nPASS: every assembled word decodes to a legal instruction\n")
	} else {
		fmt.Printf("\nFAIL: undecodable words found\n")
	}
	return ok
}
