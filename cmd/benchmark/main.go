// Command benchmark runs the softcore microbenchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results in JSON format
//	-isa        Comma-separated instruction sets (default: riscv,mips)
//	-config     Platform configuration (YAML or JSON)
//	-core       Run only the short core set
//	-emit       Write every benchmark as an ELF file into this directory
//	-parallel   Number of platforms simulated at once
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr/funcr"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/softcore/benchmarks"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/core"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	isaList := flag.String("isa", "riscv,mips", "Comma-separated instruction sets")
	configPath := flag.String("config", "", "Platform configuration (YAML or JSON)")
	coreOnly := flag.Bool("core", false, "Run only the short core set")
	emitDir := flag.String("emit", "", "Write every benchmark as an ELF file into this directory and exit")
	parallel := flag.Int("parallel", 0, "Number of platforms simulated at once (0: one per CPU)")
	maxCycles := flag.Uint64("max-cycles", 10_000_000, "Cycle limit per run")
	noReference := flag.Bool("no-reference", false, "Skip the functional emulator cross-check")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.Output = os.Stdout
	config.Parallelism = *parallel
	config.MaxCycles = *maxCycles
	config.CheckReference = !*noReference
	config.Verbose = *verbose
	if *verbose {
		config.Logger = funcr.New(func(prefix, args string) {
			fmt.Fprintln(os.Stderr, prefix, args)
		}, funcr.Options{Verbosity: 0})
	}

	isas, err := parseISAs(*isaList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	config.ISAs = isas

	if *configPath != "" {
		platform, err := core.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading platform config: %v\n", err)
			os.Exit(1)
		}
		config.Platform = platform
	}

	set := benchmarks.GetMicrobenchmarks()
	if *coreOnly {
		set = benchmarks.GetCoreBenchmarks()
	}

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(set)

	if *emitDir != "" {
		if err := emit(harness, set, isas, *emitDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("softcore Microbenchmark Harness")
		fmt.Println("===============================")
		fmt.Printf("ISAs: %s\n", *isaList)
		fmt.Printf("Benchmarks: %d\n", len(set))
		fmt.Println("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := harness.RunAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	for _, r := range results {
		if !r.Valid {
			os.Exit(2)
		}
	}
}

func parseISAs(list string) ([]insts.ISA, error) {
	var isas []insts.ISA
	for _, name := range strings.Split(list, ",") {
		isa, err := insts.ParseISA(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		isas = append(isas, isa)
	}
	return isas, nil
}

// emit writes <name>.<isa>.elf for every benchmark.
func emit(h *benchmarks.Harness, set []benchmarks.Benchmark, isas []insts.ISA, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var g errgroup.Group
	for _, b := range set {
		for _, isa := range isas {
			g.Go(func() error {
				prog, err := b.Assemble(h.Platform(isa))
				if err != nil {
					return err
				}

				path := filepath.Join(dir, fmt.Sprintf("%s.%s.elf", b.Name, isa))
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := prog.WriteELF(f); err != nil {
					_ = f.Close()
					return fmt.Errorf("%s: %w", path, err)
				}
				return f.Close()
			})
		}
	}
	return g.Wait()
}
