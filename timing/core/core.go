// Package core assembles a complete platform around the pipeline: the
// instruction and data caches, the shared bus with its arbiter, the RAM and
// the memory-mapped peripherals. It provides a high-level interface for
// loading and running programs.
package core

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/loader"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/cache"
	"github.com/sarchlab/softcore/timing/periph"
	"github.com/sarchlab/softcore/timing/pipeline"
)

// Core is one platform instance. Every Tick evaluates the pipeline, then
// the peripherals, then the bus, in that order.
type Core struct {
	name   string
	config *Config
	logger logr.Logger

	regFile  *emu.RegFile
	pipeline *pipeline.Pipeline
	icache   *cache.Cache
	dcache   *cache.Cache

	addrMap *bus.AddressMap
	arbiter *bus.Arbiter
	ram     *bus.RAM
	spiRAM  *periph.SPIRAM
	uart    *periph.UART
	display *periph.Display
	depp    *periph.DEPP
	bridge  *periph.UARTBridge

	faultLog     *faults.Log
	faultHandler pipeline.FaultHandler

	cycle uint64
}

// Name returns the name the core was built with.
func (c *Core) Name() string { return c.name }

// Config returns the platform config.
func (c *Core) Config() *Config { return c.config }

// RegFile returns the architectural register file.
func (c *Core) RegFile() *emu.RegFile { return c.regFile }

// Pipeline returns the pipeline.
func (c *Core) Pipeline() *pipeline.Pipeline { return c.pipeline }

// ICache returns the instruction cache.
func (c *Core) ICache() *cache.Cache { return c.icache }

// DCache returns the data cache.
func (c *Core) DCache() *cache.Cache { return c.dcache }

// AddressMap returns the address map of the shared bus.
func (c *Core) AddressMap() *bus.AddressMap { return c.addrMap }

// Arbiter returns the bus arbiter.
func (c *Core) Arbiter() *bus.Arbiter { return c.arbiter }

// RAM returns the backing memory.
func (c *Core) RAM() *bus.RAM { return c.ram }

// SerialRAM returns the serial RAM controller.
func (c *Core) SerialRAM() *periph.SPIRAM { return c.spiRAM }

// UART returns the UART.
func (c *Core) UART() *periph.UART { return c.uart }

// Display returns the seven-segment display.
func (c *Core) Display() *periph.Display { return c.display }

// DEPP returns the DEPP slave.
func (c *Core) DEPP() *periph.DEPP { return c.depp }

// Bridge returns the UART bus bridge.
func (c *Core) Bridge() *periph.UARTBridge { return c.bridge }

// FaultLog returns the log of every fault the pipeline raised.
func (c *Core) FaultLog() *faults.Log { return c.faultLog }

// Cycle returns the number of cycles ticked since the last reset.
func (c *Core) Cycle() uint64 { return c.cycle }

func (c *Core) handleFault(f *faults.Fault) (uint32, bool) {
	e := c.faultLog.Record(f, c.cycle)
	c.logger.Info("fault", "fault", f.Error(), "cycle", c.cycle, "count", e.Count)

	if c.faultHandler != nil {
		return c.faultHandler(f)
	}
	return 0, false
}

// Reset puts the core back into its power-on state: pipeline and caches
// empty, registers zero, fetch at the reset PC and the stack pointer at its
// configured value. Dirty data cache lines are written back, so memory
// contents are kept.
func (c *Core) Reset() {
	if err := c.dcache.Flush(); err != nil {
		c.logger.Error(err, "data cache writeback failed on reset")
	}

	c.pipeline.Reset()
	c.icache.Reset()
	c.dcache.Reset()
	c.regFile.Reset()
	c.faultLog.Clear()
	c.cycle = 0

	c.regFile.WriteReg(insts.ABIFor(c.config.ISA).SP, uint64(c.config.StackPointer))
	c.pipeline.SetPC(c.config.ResetPC)
}

// LoadProgram copies the segments of prog into memory through the debug
// path, zeroing the part of each segment not backed by file data, and
// points fetch at the entry.
func (c *Core) LoadProgram(prog *loader.Program) error {
	if prog.ISA != c.config.ISA {
		return fmt.Errorf("program is %s but core %s runs %s", prog.ISA, c.name, c.config.ISA)
	}

	for _, seg := range prog.Segments {
		if err := c.addrMap.LoadBytes(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("failed to load segment at %08x: %w", seg.Addr, err)
		}

		fileSize := uint32(len(seg.Data))
		if seg.MemSize > fileSize {
			bss := make([]byte, seg.MemSize-fileSize)
			if err := c.addrMap.LoadBytes(seg.Addr+fileSize, bss); err != nil {
				return fmt.Errorf("failed to clear segment at %08x: %w", seg.Addr+fileSize, err)
			}
		}
	}

	c.pipeline.SetPC(prog.Entry)
	c.logger.V(1).Info("program loaded", "entry", prog.Entry, "segments", len(prog.Segments))

	return nil
}

// Tick advances the platform by one cycle.
func (c *Core) Tick() {
	c.cycle++

	c.pipeline.Tick()
	c.uart.Tick()
	c.bridge.Tick()
	c.depp.Tick()
	c.arbiter.Tick()
}

// Halted returns true once the program exited or faulted.
func (c *Core) Halted() bool {
	return c.pipeline.Halted()
}

// ExitCode returns the exit code if the program exited.
func (c *Core) ExitCode() int64 {
	return c.pipeline.ExitCode()
}

// Quiet reports whether the peripherals and the bus have nothing left to
// do.
func (c *Core) Quiet() bool {
	return c.uart.TxPending() == 0 &&
		c.bridge.Idle() &&
		!c.depp.Busy() &&
		!c.arbiter.Busy()
}

// Run ticks until the program exits or faults and then lets the
// peripherals drain. A maxCycles of 0 means no limit.
func (c *Core) Run(maxCycles uint64) (int64, error) {
	limited := func() bool { return maxCycles > 0 && c.cycle >= maxCycles }

	for !c.pipeline.Halted() {
		if limited() {
			return 0, fmt.Errorf("cycle limit %d reached at PC %08x", maxCycles, c.pipeline.PC())
		}
		c.Tick()
	}

	// A disabled transmitter never drains, so the wait is bounded by the
	// time a full queue needs.
	drain := c.uart.FrameCycles()*(periph.UARTQueueSize+1) + 64
	for ; drain > 0 && !c.Quiet() && !limited(); drain-- {
		c.Tick()
	}

	if f := c.pipeline.Fault(); f != nil {
		return 0, f
	}
	return c.pipeline.ExitCode(), nil
}

// RunCycles ticks the platform for the given number of cycles. It returns
// true if the program is still running.
func (c *Core) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles; i++ {
		c.Tick()
	}
	return !c.pipeline.Halted()
}

// PeekWord returns the word at addr as the program would see it, taking a
// dirty data cache line over the backing memory.
func (c *Core) PeekWord(addr uint32) (uint32, error) {
	if v, ok := c.dcache.Peek(addr); ok {
		return v, nil
	}
	return c.addrMap.Peek(addr)
}

// ReadMemory writes back the dirty data cache lines and reads n bytes from
// the address map.
func (c *Core) ReadMemory(addr uint32, n int) ([]byte, error) {
	if err := c.dcache.WriteBackDirty(); err != nil {
		return nil, err
	}
	return c.addrMap.ReadBytes(addr, n)
}

// Report is a snapshot of the statistics of every component.
type Report struct {
	Name     string
	ISA      insts.ISA
	Cycles   uint64
	ExitCode int64
	Fault    *faults.Fault
	Pipeline pipeline.Statistics
	ICache   cache.Statistics
	DCache   cache.Statistics
	Bus      bus.Stats
	UARTSent uint64
	Faults   []faults.Entry
}

// Report collects the statistics of the core.
func (c *Core) Report() Report {
	return Report{
		Name:     c.name,
		ISA:      c.config.ISA,
		Cycles:   c.cycle,
		ExitCode: c.pipeline.ExitCode(),
		Fault:    c.pipeline.Fault(),
		Pipeline: c.pipeline.Stats(),
		ICache:   c.icache.Stats(),
		DCache:   c.dcache.Stats(),
		Bus:      c.arbiter.Stats(),
		UARTSent: c.uart.Sent(),
		Faults:   c.faultLog.Entries(),
	}
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

// WriteReport prints the report in a human-readable form.
func (r Report) WriteReport(w io.Writer) {
	s := r.Pipeline

	fmt.Fprintf(w, "Core: %s (%s)\n", r.Name, r.ISA)
	if r.Fault != nil {
		fmt.Fprintf(w, "Fault: %s\n", r.Fault.Error())
	} else {
		fmt.Fprintf(w, "Exit code: %d\n", r.ExitCode)
	}
	fmt.Fprintf(w, "Total Instructions: %d\n", s.Instructions)
	fmt.Fprintf(w, "Total Cycles: %d (pipeline %d)\n", r.Cycles, s.Cycles)
	fmt.Fprintf(w, "CPI: %.2f\n", s.CPI())
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Stalls:\n")
	fmt.Fprintf(w, "  Fetch:    %6d cycles (%5.1f%%)\n", s.FetchStalls, percent(s.FetchStalls, s.Cycles))
	fmt.Fprintf(w, "  Load-use: %6d cycles (%5.1f%%)\n", s.LoadUseStalls, percent(s.LoadUseStalls, s.Cycles))
	fmt.Fprintf(w, "  Execute:  %6d cycles (%5.1f%%)\n", s.ExecStalls, percent(s.ExecStalls, s.Cycles))
	fmt.Fprintf(w, "  Memory:   %6d cycles (%5.1f%%)\n", s.MemStalls, percent(s.MemStalls, s.Cycles))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Pipeline Events:\n")
	fmt.Fprintf(w, "  Flushes:  %d\n", s.Flushes)
	fmt.Fprintf(w, "  Forwards: %d\n", s.Forwards)
	fmt.Fprintf(w, "  Syscalls: %d\n", s.Syscalls)
	fmt.Fprintf(w, "  Branches: %d (%.1f%% predicted)\n",
		s.BranchPredictions, percent(s.BranchCorrect, s.BranchPredictions))
	fmt.Fprintf(w, "\n")

	for _, cs := range []struct {
		name  string
		stats cache.Statistics
	}{{"I-cache", r.ICache}, {"D-cache", r.DCache}} {
		fmt.Fprintf(w, "%s: %d reads, %d writes, %.1f%% hits, %d evictions, %d writebacks, %d uncached\n",
			cs.name, cs.stats.Reads, cs.stats.Writes, 100*cs.stats.HitRate(),
			cs.stats.Evictions, cs.stats.Writebacks, cs.stats.Uncached)
	}

	fmt.Fprintf(w, "Bus: %d grants, %.1f%% busy, %d faults\n",
		r.Bus.Grants, 100*r.Bus.Utilization(), r.Bus.Faults)
	names := make([]string, 0, len(r.Bus.GrantsByRequester))
	for name := range r.Bus.GrantsByRequester {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name+":", r.Bus.GrantsByRequester[name])
	}

	if r.UARTSent > 0 {
		fmt.Fprintf(w, "UART: %d bytes sent\n", r.UARTSent)
	}

	if len(r.Faults) > 0 {
		fmt.Fprintf(w, "\nFaults:\n")
		for _, e := range r.Faults {
			fmt.Fprintf(w, "  %s\n", e.String())
		}
	}
}
