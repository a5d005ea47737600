// Package benchmarks provides the microbenchmark harness that runs small
// programs on complete platforms and reports their timing.
package benchmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/loader"
	"github.com/sarchlab/softcore/timing/core"
)

// Version is reported in the JSON output.
const Version = "0.1.0"

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	ISA insts.ISA `json:"isa"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count of the platform, including
	// the cycles the peripherals needed to drain after the exit.
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is pipeline cycles per instruction
	CPI float64 `json:"cpi"`

	StallCycles   uint64 `json:"stall_cycles"`
	LoadUseStalls uint64 `json:"load_use_stalls"`
	ExecStalls    uint64 `json:"exec_stalls"`
	MemStalls     uint64 `json:"mem_stalls"`
	FetchStalls   uint64 `json:"fetch_stalls"`

	// Forwards is the number of instructions that took an operand from a
	// pipeline register
	Forwards uint64 `json:"forwards"`

	PipelineFlushes uint64 `json:"pipeline_flushes"`

	ICacheHits   uint64 `json:"icache_hits"`
	ICacheMisses uint64 `json:"icache_misses"`

	DCacheHits       uint64 `json:"dcache_hits"`
	DCacheMisses     uint64 `json:"dcache_misses"`
	DCacheWritebacks uint64 `json:"dcache_writebacks"`

	BusGrants      uint64  `json:"bus_grants"`
	BusUtilization float64 `json:"bus_utilization"`

	// Branch predictor stats
	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// UARTOutput is everything the program printed.
	UARTOutput string `json:"uart_output,omitempty"`

	// ReferenceDiff describes how the final state differs from the
	// functional emulator. Empty when it matches or was not checked.
	ReferenceDiff string `json:"reference_diff,omitempty"`

	// Valid is true when the exit code, the output and the reference check
	// all came out as expected.
	Valid bool `json:"valid"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Build emits the program. It is called once per ISA with a program
	// based at the platform's reset PC.
	Build func(p *insts.Program, platform *core.Config)

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64

	// ExpectedOutput is the expected UART output.
	ExpectedOutput string

	// Peripherals marks programs that touch memory-mapped devices. The
	// functional emulator has none, so they are not checked against it.
	Peripherals bool
}

// Assemble builds the benchmark for a platform.
func (b Benchmark) Assemble(platform *core.Config) (*loader.Program, error) {
	p := insts.NewProgram(platform.ISA, platform.ResetPC)
	b.Build(p, platform)

	prog, err := loader.FromAssembly(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name, err)
	}
	return prog, nil
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// ISAs lists the instruction sets every benchmark runs on.
	ISAs []insts.ISA

	// Platform is the platform template. Its ISA is replaced for each run;
	// nil means the default platform.
	Platform *core.Config

	// MaxCycles bounds each run. 0 means no limit.
	MaxCycles uint64

	// Parallelism is the number of platforms simulated at once. 0 means
	// one per CPU.
	Parallelism int

	// CheckReference runs every program that does not use peripherals on
	// the functional emulator as well and compares the final state.
	CheckReference bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	Logger logr.Logger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		ISAs:           []insts.ISA{insts.RISCV, insts.MIPS},
		MaxCycles:      10_000_000,
		CheckReference: true,
		Output:         os.Stdout,
		Logger:         logr.Discard(),
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	if len(config.ISAs) == 0 {
		config.ISAs = []insts.ISA{insts.RISCV}
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// Platform returns the platform config a benchmark runs on for isa.
func (h *Harness) Platform(isa insts.ISA) *core.Config {
	if h.config.Platform == nil {
		return core.DefaultConfig(isa)
	}
	platform := *h.config.Platform
	platform.ISA = isa
	return &platform
}

// RunAll executes every benchmark on every configured ISA, each on its own
// platform, and returns the results in benchmark order. The first failing
// run cancels the ones not yet started.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	type job struct {
		bench Benchmark
		isa   insts.ISA
	}

	var jobs []job
	for _, b := range h.benchmarks {
		for _, isa := range h.config.ISAs {
			jobs = append(jobs, job{b, isa})
		}
	}

	results := make([]BenchmarkResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)

	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			r, err := h.runBenchmark(j.bench, j.isa)
			results[i] = r
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark, isa insts.ISA) (BenchmarkResult, error) {
	result := BenchmarkResult{
		Name:        bench.Name,
		ISA:         isa,
		Description: bench.Description,
	}

	platform := h.Platform(isa)
	prog, err := bench.Assemble(platform)
	if err != nil {
		return result, err
	}

	var uart bytes.Buffer
	c, err := core.MakeBuilder().
		WithConfig(platform).
		WithLogger(h.config.Logger).
		WithUARTOutput(&uart).
		Build(bench.Name + "." + isa.String())
	if err != nil {
		return result, err
	}
	if err := c.LoadProgram(prog); err != nil {
		return result, err
	}

	start := time.Now()
	exitCode, err := c.Run(h.config.MaxCycles)
	result.WallTime = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("%s on %s: %w", bench.Name, isa, err)
	}

	r := c.Report()
	stats := r.Pipeline
	result.SimulatedCycles = r.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.StallCycles = stats.Stalls
	result.LoadUseStalls = stats.LoadUseStalls
	result.ExecStalls = stats.ExecStalls
	result.MemStalls = stats.MemStalls
	result.FetchStalls = stats.FetchStalls
	result.Forwards = stats.Forwards
	result.PipelineFlushes = stats.Flushes
	result.ICacheHits = r.ICache.Hits
	result.ICacheMisses = r.ICache.Misses
	result.DCacheHits = r.DCache.Hits
	result.DCacheMisses = r.DCache.Misses
	result.DCacheWritebacks = r.DCache.Writebacks
	result.BusGrants = r.Bus.Grants
	result.BusUtilization = r.Bus.Utilization()
	result.BranchPredictions = stats.BranchPredictions
	result.BranchMispredictions = stats.BranchMispredictions
	if stats.BranchPredictions > 0 {
		result.BranchAccuracyPercent = 100 * float64(stats.BranchCorrect) / float64(stats.BranchPredictions)
	}
	result.ExitCode = exitCode
	result.UARTOutput = uart.String()

	if h.config.CheckReference && !bench.Peripherals {
		diff, err := compareReference(c, prog)
		if err != nil {
			return result, fmt.Errorf("%s on %s: reference: %w", bench.Name, isa, err)
		}
		result.ReferenceDiff = diff
	}

	result.Valid = result.ExitCode == bench.ExpectedExit &&
		result.UARTOutput == bench.ExpectedOutput &&
		result.ReferenceDiff == ""

	return result, nil
}

// compareReference runs prog on the functional emulator and diffs its final
// architectural state against the core's.
func compareReference(c *core.Core, prog *loader.Program) (string, error) {
	platform := c.Config()
	mem := emu.NewMemory()
	for _, seg := range prog.Segments {
		mem.WriteBytes(seg.Addr, seg.Data)
	}

	e := emu.NewEmulator(
		emu.WithISA(prog.ISA),
		emu.WithMemory(mem),
		emu.WithStackPointer(platform.StackPointer),
		emu.WithMaxInstructions(2*c.Pipeline().Stats().Instructions+64),
	)
	e.SetPC(prog.Entry)

	exitCode, err := e.Run()
	if err != nil {
		return "", err
	}

	var diff string
	if exitCode != c.ExitCode() {
		diff += fmt.Sprintf("exit code: emulator %d, core %d\n", exitCode, c.ExitCode())
	}
	if d := cmp.Diff(e.RegFile().X, c.RegFile().X); d != "" {
		diff += "registers (-emulator +core):\n" + d
	}
	if e.RegFile().HILO != c.RegFile().HILO {
		diff += fmt.Sprintf("HI/LO: emulator %#x, core %#x\n", e.RegFile().HILO, c.RegFile().HILO)
	}
	if n := c.Pipeline().Stats().Instructions; e.InstructionCount() != n {
		diff += fmt.Sprintf("instructions: emulator %d, core %d\n", e.InstructionCount(), n)
	}

	for _, seg := range prog.Segments {
		got, err := c.ReadMemory(seg.Addr, int(seg.MemSize))
		if err != nil {
			return "", err
		}
		want := mem.ReadBytes(seg.Addr, int(seg.MemSize))
		if d := cmp.Diff(want, got); d != "" {
			diff += fmt.Sprintf("memory at %08x (-emulator +core):\n%s", seg.Addr, d)
		}
	}

	return diff, nil
}

// PrintResults outputs benchmark results as an aligned table.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== softcore Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	w := tabwriter.NewWriter(h.config.Output, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "benchmark\tisa\tcycles\tinsts\tCPI\tload-use\texec\tmem\tfetch\tflushes\tI$ hit\tD$ hit\tbus\texit\tok\t")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.3f\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%.1f%%\t%d\t%s\t\n",
			r.Name, r.ISA, r.SimulatedCycles, r.InstructionsRetired, r.CPI,
			r.LoadUseStalls, r.ExecStalls, r.MemStalls, r.FetchStalls, r.PipelineFlushes,
			hitRate(r.ICacheHits, r.ICacheMisses), hitRate(r.DCacheHits, r.DCacheMisses),
			100*r.BusUtilization, r.ExitCode, check(r.Valid))
	}
	_ = w.Flush()

	if !h.config.Verbose {
		return
	}
	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "\n%s (%s): %s\n", r.Name, r.ISA, r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		if r.UARTOutput != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  UART: %q\n", r.UARTOutput)
		}
		if r.ReferenceDiff != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Reference mismatch:\n%s", r.ReferenceDiff)
		}
	}
}

func hitRate(hits, misses uint64) string {
	if hits+misses == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(hits)/float64(hits+misses))
}

func check(ok bool) string {
	if ok {
		return "yes"
	}
	return "NO"
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,isa,cycles,instructions,cpi,stalls,load_use_stalls,exec_stalls,mem_stalls,fetch_stalls,flushes,icache_hits,icache_misses,dcache_hits,dcache_misses,dcache_writebacks,bus_grants,exit_code,valid")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.ISA,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.LoadUseStalls,
			r.ExecStalls,
			r.MemStalls,
			r.FetchStalls,
			r.PipelineFlushes,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.DCacheWritebacks,
			r.BusGrants,
			r.ExitCode,
			r.Valid,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// ISAs lists the instruction sets that were run.
	ISAs []insts.ISA `json:"isas"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of runs
	TotalBenchmarks int `json:"total_benchmarks"`

	// Failed is the number of runs that were not valid
	Failed int `json:"failed"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalInstructions += r.InstructionsRetired
		summary.TotalWallTime += r.WallTime
		if !r.Valid {
			summary.Failed++
		}
	}
	if summary.TotalInstructions > 0 {
		summary.AverageCPI = float64(summary.TotalCycles) / float64(summary.TotalInstructions)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			ISAs:      h.config.ISAs,
		},
		Results: results,
		Summary: summary,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
