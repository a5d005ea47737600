// Package main provides a profiling wrapper for softcore to identify
// simulator performance bottlenecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/softcore/benchmarks"
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/loader"
	"github.com/sarchlab/softcore/timing/core"
)

var (
	emulate    = flag.Bool("emulate", false, "Profile the functional emulator instead of the timing platform")
	benchName  = flag.String("bench", "", "Profile a built-in microbenchmark instead of a program file")
	isaName    = flag.String("isa", "riscv", "Instruction set for -bench")
	repeat     = flag.Int("repeat", 1, "Number of runs")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	maxCycles  = flag.Uint64("max-cycles", 100_000_000, "max cycles (instructions with -emulate) per run (0 = unlimited)")
)

// chunk is the number of cycles run between deadline checks.
const chunk = 10_000

func main() {
	flag.Parse()

	if flag.NArg() < 1 && *benchName == "" {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "       profile [options] -bench <name>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	prog, platform, err := program()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded: %s program, entry point 0x%X\n", prog.ISA, prog.Entry)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	deadline := time.Now().Add(*duration)
	start := time.Now()

	var exitCode int64
	var instrCount, cycleCount uint64
	for i := 0; i < *repeat; i++ {
		var retired, cycles uint64
		if *emulate {
			exitCode, retired, err = runEmulationProfile(prog, platform)
		} else {
			exitCode, retired, cycles, err = runTimingProfile(prog, platform, deadline)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		instrCount += retired
		cycleCount += cycles
	}

	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Exit code: %d\n", exitCode)
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
	if cycleCount > 0 {
		fmt.Printf("Simulated cycles/second: %.0f\n", float64(cycleCount)/elapsed.Seconds())
	}
}

func program() (*loader.Program, *core.Config, error) {
	if *benchName == "" {
		prog, err := loader.Load(flag.Arg(0))
		if err != nil {
			return nil, nil, err
		}
		return prog, core.DefaultConfig(prog.ISA), nil
	}

	isa, err := insts.ParseISA(*isaName)
	if err != nil {
		return nil, nil, err
	}
	platform := core.DefaultConfig(isa)

	for _, b := range benchmarks.GetMicrobenchmarks() {
		if b.Name == *benchName {
			prog, err := b.Assemble(platform)
			return prog, platform, err
		}
	}
	return nil, nil, fmt.Errorf("unknown benchmark %q", *benchName)
}

// runEmulationProfile runs the program in functional emulation mode with profiling.
func runEmulationProfile(prog *loader.Program, platform *core.Config) (int64, uint64, error) {
	memory := emu.NewMemory()
	for _, seg := range prog.Segments {
		memory.WriteBytes(seg.Addr, seg.Data)
	}

	emulator := emu.NewEmulator(
		emu.WithISA(prog.ISA),
		emu.WithMemory(memory),
		emu.WithStackPointer(platform.StackPointer),
		emu.WithMaxInstructions(*maxCycles),
	)
	emulator.SetPC(prog.Entry)

	exitCode, err := emulator.Run()
	return exitCode, emulator.InstructionCount(), err
}

// runTimingProfile runs the program on the timing platform until it halts,
// the cycle limit is hit or the deadline passes.
func runTimingProfile(
	prog *loader.Program,
	platform *core.Config,
	deadline time.Time,
) (int64, uint64, uint64, error) {
	c, err := core.MakeBuilder().
		WithConfig(platform).
		WithUARTOutput(os.Stdout).
		Build("profile")
	if err != nil {
		return 0, 0, 0, err
	}
	if err := c.LoadProgram(prog); err != nil {
		return 0, 0, 0, err
	}

	for c.RunCycles(chunk) {
		if *maxCycles > 0 && c.Cycle() >= *maxCycles {
			return 0, c.Pipeline().Stats().Instructions, c.Cycle(),
				fmt.Errorf("cycle limit %d reached", *maxCycles)
		}
		if time.Now().After(deadline) {
			fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
			return 0, c.Pipeline().Stats().Instructions, c.Cycle(), nil
		}
	}

	if f := c.Pipeline().Fault(); f != nil {
		return 0, c.Pipeline().Stats().Instructions, c.Cycle(), f
	}
	return c.ExitCode(), c.Pipeline().Stats().Instructions, c.Cycle(), nil
}
