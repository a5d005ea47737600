// Package main provides the entry point for softcore.
// softcore is a cycle-level simulator of a five-stage RISC-V or MIPS soft
// core together with its caches, bus and peripherals.
//
// For the full CLI, use: go run ./cmd/softcore
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("softcore - five-stage RISC-V / MIPS soft core simulator")
	fmt.Println("")
	fmt.Println("Usage: softcore [options] <program>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to platform configuration (YAML or JSON)")
	fmt.Println("  -isa         Instruction set of a raw image (riscv, mips)")
	fmt.Println("  -raw         Treat the program as a raw binary image")
	fmt.Println("  -emulate     Run on the functional emulator")
	fmt.Println("  -max-cycles  Cycle limit")
	fmt.Println("  -v           Log verbosity")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/softcore' for the full CLI and")
	fmt.Println("'go run ./cmd/benchmark' for the microbenchmarks.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/softcore' instead.")
	}
}
