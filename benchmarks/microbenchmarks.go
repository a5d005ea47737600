package benchmarks

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/core"
	"github.com/sarchlab/softcore/timing/periph"
)

// HALArray is the array the board's HAL demo sorts.
var HALArray = []int32{2, -4, 1, -3, 0, -2, -5, 3, 5, 4, -1}

// HelloMessage is what the UART demo prints.
const HelloMessage = "Hello, world!\r\n"

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific pipeline, cache or bus characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticChain(),
		independentALU(),
		loadUseChain(),
		branchLoop(),
		callReturn(),
		mulDiv(),
		stridedWalk(),
		bubbleSort(4),
		bubbleSort(2),
		bubbleSort(1),
		uartHello(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation: a loop, a
// memory-bound kernel and a peripheral program.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		branchLoop(),
		bubbleSort(4),
		uartHello(),
	}
}

// 1. Arithmetic Chain - every instruction depends on the previous one
func arithmeticChain() Benchmark {
	const n = 40
	return Benchmark{
		Name:        "arithmetic_chain",
		Description: "40 dependent ADDIs - measures forwarding",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LI(a.A0, 0)
			for i := 0; i < n; i++ {
				p.ADDI(a.A0, a.A0, 3)
			}
			p.Exit(a.A0)
		},
		ExpectedExit: 3 * n,
	}
}

// 2. Independent ALU - five interleaved chains with no back-to-back
// dependency
func independentALU() Benchmark {
	const rounds = 8
	return Benchmark{
		Name:        "independent_alu",
		Description: "5 independent ADDI streams - measures ALU throughput",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			regs := []uint8{a.T0, a.T1, a.T2, a.T3, a.T4}
			for _, r := range regs {
				p.LI(r, 0)
			}
			for i := 0; i < rounds; i++ {
				for j, r := range regs {
					p.ADDI(r, r, int32(j+1))
				}
			}
			p.ADD(a.A0, a.T0, a.T1)
			p.ADD(a.A0, a.A0, a.T2)
			p.ADD(a.A0, a.A0, a.T3)
			p.ADD(a.A0, a.A0, a.T4)
			p.Exit(a.A0)
		},
		ExpectedExit: rounds * (1 + 2 + 3 + 4 + 5),
	}
}

// 3. Load-Use Chain - pointer chasing through a 16-node ring
func loadUseChain() Benchmark {
	const (
		nodes = 16
		step  = 5
		hops  = 64
	)

	var want int64
	idx := 0
	for i := 0; i < hops; i++ {
		idx = (idx + step) % nodes
		want += int64(4 * idx)
	}

	return Benchmark{
		Name:        "load_use_chain",
		Description: "64 dependent loads each used by the next instruction - measures load-use bubbles",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LA(a.S0, "ring")
			p.LI(a.T0, 0)
			p.LI(a.T1, hops)
			p.LI(a.A0, 0)
			p.Label("chase")
			p.ADD(a.T2, a.S0, a.T0)
			p.LW(a.T0, a.T2, 0)
			p.ADD(a.A0, a.A0, a.T0)
			p.ADDI(a.T1, a.T1, -1)
			p.BNE(a.T1, a.Zero, "chase")
			p.Exit(a.A0)

			p.Label("ring")
			for i := 0; i < nodes; i++ {
				p.Word(uint32(4 * ((i + step) % nodes)))
			}
		},
		ExpectedExit: want,
	}
}

// 4. Branch Loop - a counted loop with a data-dependent branch inside
func branchLoop() Benchmark {
	const n = 100

	var want int64
	for i := int64(1); i < n; i += 2 {
		want += i
	}

	return Benchmark{
		Name:        "branch_loop",
		Description: "100 iterations with an alternating inner branch - measures taken-branch penalty",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LI(a.T0, 0)
			p.LI(a.T1, n)
			p.LI(a.A0, 0)
			p.Label("loop")
			p.ANDI(a.T2, a.T0, 1)
			p.BEQ(a.T2, a.Zero, "even")
			p.ADD(a.A0, a.A0, a.T0)
			p.Label("even")
			p.ADDI(a.T0, a.T0, 1)
			p.BNE(a.T0, a.T1, "loop")
			p.Exit(a.A0)
		},
		ExpectedExit: want,
	}
}

// 5. Call/Return - repeated leaf calls
func callReturn() Benchmark {
	const calls = 10
	return Benchmark{
		Name:        "call_return",
		Description: "10 calls to a leaf function - measures jump and return overhead",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LI(a.S0, 0)
			p.LI(a.S1, calls)
			p.Label("loop")
			p.CALL("leaf")
			p.ADDI(a.S1, a.S1, -1)
			p.BNE(a.S1, a.Zero, "loop")
			p.Exit(a.S0)

			p.Label("leaf")
			p.ADDI(a.S0, a.S0, 7)
			p.RET()
		},
		ExpectedExit: 7 * calls,
	}
}

// 6. Multiply/Divide - long-latency execute operations
func mulDiv() Benchmark {
	const n = 20

	var want int64
	for i := int64(1); i <= n; i++ {
		want += i * i / 3
	}

	return Benchmark{
		Name:        "mul_div",
		Description: "sum of i*i/3 for i in 1..20 - measures multi-cycle execute stalls",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LI(a.T0, 1)
			p.LI(a.T1, n+1)
			p.LI(a.T4, 3)
			p.LI(a.A0, 0)
			p.Label("loop")
			p.MUL(a.T2, a.T0, a.T0)
			p.DIV(a.T3, a.T2, a.T4)
			p.ADD(a.A0, a.A0, a.T3)
			p.ADDI(a.T0, a.T0, 1)
			p.BNE(a.T0, a.T1, "loop")
			p.Exit(a.A0)
		},
		ExpectedExit: want,
	}
}

// 7. Strided Walk - one word per 48 bytes, so every access touches a new
// line and the data cache keeps evicting
func stridedWalk() Benchmark {
	const (
		n      = 64
		stride = 48
	)

	var want int64
	for i := int64(0); i < n; i++ {
		want += 3 * i
	}

	return Benchmark{
		Name:        "strided_walk",
		Description: "fill and sum 64 words 48 bytes apart - measures miss and writeback cost",
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			p.LA(a.S0, "buffer")
			p.LI(a.T0, 0)
			p.LI(a.T1, n)
			p.Label("fill")
			p.SW(a.T0, a.S0, 0)
			p.ADDI(a.S0, a.S0, stride)
			p.ADDI(a.T0, a.T0, 3)
			p.ADDI(a.T1, a.T1, -1)
			p.BNE(a.T1, a.Zero, "fill")

			p.LA(a.S0, "buffer")
			p.LI(a.T1, n)
			p.LI(a.A0, 0)
			p.Label("sum")
			p.LW(a.T2, a.S0, 0)
			p.ADD(a.A0, a.A0, a.T2)
			p.ADDI(a.S0, a.S0, stride)
			p.ADDI(a.T1, a.T1, -1)
			p.BNE(a.T1, a.Zero, "sum")
			p.Exit(a.A0)

			p.Label("buffer")
			p.Space(n * stride)
		},
		ExpectedExit: want,
	}
}

// encodeArray lays values out as little-endian elements of size bytes.
func encodeArray(values []int32, size int) []byte {
	out := make([]byte, len(values)*size)
	for i, v := range values {
		switch size {
		case 4:
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		case 2:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		default:
			out[i] = byte(v)
		}
	}
	return out
}

// sortChecksum is sum(i * v[i]) over the sorted values, which is only
// reached when the array ends up in ascending order.
func sortChecksum(values []int32) int64 {
	sorted := append([]int32(nil), values...)
	for i := range sorted {
		for j := 0; j < len(sorted)-1-i; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	var sum int64
	for i, v := range sorted {
		sum += int64(i) * int64(v)
	}
	return sum
}

// 8. Bubble Sort - the HAL demo, with early exit when a pass swaps nothing
func bubbleSort(size int) Benchmark {
	n := len(HALArray)
	step := int32(size)

	return Benchmark{
		Name:        fmt.Sprintf("bubble_sort_int%d", size*8),
		Description: fmt.Sprintf("bubble sort of the HAL array as %d-bit elements", size*8),
		Build: func(p *insts.Program, _ *core.Config) {
			a := p.ABI()
			load, store := p.LW, p.SW
			switch size {
			case 2:
				load, store = p.LH, p.SH
			case 1:
				load, store = p.LB, p.SB
			}

			p.LA(a.S0, "array")
			p.LI(a.S1, int32(n-1))
			p.Label("outer")
			p.BEQ(a.S1, a.Zero, "sorted")
			p.LI(a.A1, 0)
			p.MV(a.T0, a.S0)
			p.MV(a.T1, a.S1)
			p.Label("inner")
			load(a.T2, a.T0, 0)
			load(a.T3, a.T0, step)
			p.BGE(a.T3, a.T2, "noswap")
			store(a.T3, a.T0, 0)
			store(a.T2, a.T0, step)
			p.LI(a.A1, 1)
			p.Label("noswap")
			p.ADDI(a.T0, a.T0, step)
			p.ADDI(a.T1, a.T1, -1)
			p.BNE(a.T1, a.Zero, "inner")
			p.ADDI(a.S1, a.S1, -1)
			p.BNE(a.A1, a.Zero, "outer")

			p.Label("sorted")
			p.LI(a.A0, 0)
			p.LI(a.T0, 0)
			p.MV(a.T1, a.S0)
			p.LI(a.T4, int32(n))
			p.Label("sum")
			load(a.T2, a.T1, 0)
			p.MUL(a.T3, a.T2, a.T0)
			p.ADD(a.A0, a.A0, a.T3)
			p.ADDI(a.T1, a.T1, step)
			p.ADDI(a.T0, a.T0, 1)
			p.BNE(a.T0, a.T4, "sum")
			p.Exit(a.A0)

			p.Label("array")
			p.Data(encodeArray(HALArray, size))
		},
		ExpectedExit: sortChecksum(HALArray),
	}
}

// 9. UART Hello - prints through the UART, waiting while the TX queue is
// full
func uartHello() Benchmark {
	return Benchmark{
		Name:        "uart_hello",
		Description: "print a greeting through the UART - measures uncached peripheral access",
		Build: func(p *insts.Program, platform *core.Config) {
			a := p.ABI()
			p.LI(a.S0, int32(platform.MemoryMap.UART.Base))
			p.LI(a.T0, 1)
			p.SB(a.T0, a.S0, periph.UARTTxEnable)
			p.LA(a.S1, "msg")
			p.Label("next")
			p.LBU(a.T1, a.S1, 0)
			p.BEQ(a.T1, a.Zero, "done")
			p.Label("wait")
			p.LHU(a.T2, a.S0, periph.UARTTxCount)
			p.SLTI(a.T3, a.T2, periph.UARTQueueSize)
			p.BEQ(a.T3, a.Zero, "wait")
			p.SB(a.T1, a.S0, periph.UARTTxData)
			p.ADDI(a.S1, a.S1, 1)
			p.J("next")
			p.Label("done")
			p.ExitImm(0)

			p.Label("msg")
			p.Data([]byte(HelloMessage + "\x00"))
		},
		ExpectedExit:   0,
		ExpectedOutput: HelloMessage,
		Peripherals:    true,
	}
}
