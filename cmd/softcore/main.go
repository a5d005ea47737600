// Package main provides the entry point for softcore, a cycle-level
// simulator of a five-stage RISC-V or MIPS soft core and its platform.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/loader"
	"github.com/sarchlab/softcore/timing/core"
)

var (
	configPath = flag.String("config", "", "Path to platform configuration (YAML or JSON)")
	isaName    = flag.String("isa", "", "Instruction set of a raw image, or override of the config (riscv, mips)")
	raw        = flag.Bool("raw", false, "Treat the program as a raw binary image")
	rawBase    = flag.Uint("base", 0, "Load address of a raw image (default: the reset PC)")
	maxCycles  = flag.Uint64("max-cycles", 100_000_000, "Stop after this many cycles (0: no limit)")
	emulate    = flag.Bool("emulate", false, "Run on the functional emulator without timing")
	verbosity  = flag.Int("v", 0, "Log verbosity (1: evictions and bus faults, 2: every retired instruction)")
	report     = flag.Bool("report", true, "Print the timing report on exit")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: softcore [options] <program>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: *verbosity})

	config, err := platformConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading platform config: %v\n", err)
		os.Exit(1)
	}

	programPath := flag.Arg(0)
	prog, err := loadProgram(programPath, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}
	config.ISA = prog.ISA

	logger.V(1).Info("loaded", "program", programPath, "isa", prog.ISA,
		"entry", fmt.Sprintf("%#x", prog.Entry), "segments", len(prog.Segments))

	c, err := core.MakeBuilder().
		WithConfig(config).
		WithLogger(logger).
		WithUARTOutput(os.Stdout).
		Build("core")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building platform: %v\n", err)
		os.Exit(1)
	}

	var exitCode int64
	if *emulate {
		exitCode = runEmulation(c, prog, logger)
	} else {
		exitCode = runTiming(c, prog)
	}
	os.Exit(int(exitCode))
}

func platformConfig() (*core.Config, error) {
	config := core.DefaultConfig(insts.RISCV)
	if *configPath != "" {
		var err error
		config, err = core.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *isaName != "" {
		isa, err := insts.ParseISA(*isaName)
		if err != nil {
			return nil, err
		}
		config.ISA = isa
	}
	return config, nil
}

func loadProgram(path string, config *core.Config) (*loader.Program, error) {
	if !*raw {
		return loader.Load(path)
	}

	base := config.ResetPC
	if *rawBase != 0 {
		base = uint32(*rawBase)
	}
	return loader.LoadRaw(path, config.ISA, base)
}

// runTiming runs the program on the cycle-level platform.
func runTiming(c *core.Core, prog *loader.Program) int64 {
	if err := c.LoadProgram(prog); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	exitCode, err := c.Run(*maxCycles)
	if *report {
		fmt.Fprintln(os.Stderr)
		c.Report().WriteReport(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// runEmulation runs the program on the functional emulator. Only the memory
// windows of the platform are reachable; peripheral accesses fault.
func runEmulation(c *core.Core, prog *loader.Program, logger logr.Logger) int64 {
	memory := emu.NewMemory()
	for _, seg := range prog.Segments {
		memory.WriteBytes(seg.Addr, seg.Data)
	}

	emulator := emu.NewEmulator(
		emu.WithISA(prog.ISA),
		emu.WithMemory(memory),
		emu.WithStackPointer(c.Config().StackPointer),
		emu.WithMaxInstructions(*maxCycles),
		emu.WithAddressCheck(func(addr uint32) faults.BusCode {
			if !c.AddressMap().Cacheable(addr) {
				return faults.BusOutOfRange
			}
			return faults.BusOK
		}),
	)
	emulator.SetPC(prog.Entry)

	exitCode, err := emulator.Run()
	logger.V(1).Info("emulation finished", "instructions", emulator.InstructionCount())

	if *report {
		fmt.Fprintf(os.Stderr, "\nExit code: %d\n", exitCode)
		fmt.Fprintf(os.Stderr, "Instructions executed: %d\n", emulator.InstructionCount())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}
