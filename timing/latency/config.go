package latency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// TimingConfig holds the execute latencies of each instruction class and the
// service times of the bus targets.
type TimingConfig struct {
	// ALULatency is the execute latency of integer ALU operations.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency" yaml:"alu_latency"`

	// BranchLatency is the execute latency of branches and jumps. The
	// two-cycle redirect penalty of a taken branch comes on top.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency" yaml:"branch_latency"`

	// LoadLatency and StoreLatency cover address generation only. The data
	// cache adds its own time in the Memory stage.
	LoadLatency  uint64 `json:"load_latency" yaml:"load_latency"`
	StoreLatency uint64 `json:"store_latency" yaml:"store_latency"`

	// MultiplyLatency is the latency of MUL/MULH*/MULT*. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency" yaml:"multiply_latency"`

	// DivideLatency is the latency of DIV/REM and the MIPS HI/LO divides.
	// Default: 16 cycles (one quotient bit per two cycles).
	DivideLatency uint64 `json:"divide_latency" yaml:"divide_latency"`

	// SyscallLatency is the execute latency of ECALL/EBREAK.
	SyscallLatency uint64 `json:"syscall_latency" yaml:"syscall_latency"`

	// MemoryLatency is the number of cycles the RAM takes for the first
	// word of a transaction; MemoryWordCycles is added for every further
	// word of a burst.
	MemoryLatency    uint64 `json:"memory_latency" yaml:"memory_latency"`
	MemoryWordCycles uint64 `json:"memory_word_cycles" yaml:"memory_word_cycles"`

	// SerialRAMCommandCycles is the SPI command and address phase of a
	// serial RAM transaction; SerialRAMWordCycles is spent per data word.
	SerialRAMCommandCycles uint64 `json:"serial_ram_command_cycles" yaml:"serial_ram_command_cycles"`
	SerialRAMWordCycles    uint64 `json:"serial_ram_word_cycles" yaml:"serial_ram_word_cycles"`

	// PeripheralLatency is the register access time of UART, display and
	// DEPP windows.
	PeripheralLatency uint64 `json:"peripheral_latency" yaml:"peripheral_latency"`
}

// DefaultTimingConfig returns a TimingConfig with the default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:             1,
		BranchLatency:          1,
		LoadLatency:            1,
		StoreLatency:           1,
		MultiplyLatency:        3,
		DivideLatency:          16,
		SyscallLatency:         1,
		MemoryLatency:          4,
		MemoryWordCycles:       1,
		SerialRAMCommandCycles: 8,
		SerialRAMWordCycles:    4,
		PeripheralLatency:      2,
	}
}

// RAMCycles is the number of cycles a RAM transaction of the given length
// holds the bus.
func (c *TimingConfig) RAMCycles(words int) uint64 {
	if words < 1 {
		words = 1
	}
	return c.MemoryLatency + uint64(words-1)*c.MemoryWordCycles
}

// SerialRAMCycles is the number of cycles a serial RAM transaction of the
// given length holds the bus.
func (c *TimingConfig) SerialRAMCycles(words int) uint64 {
	if words < 1 {
		words = 1
	}
	return c.SerialRAMCommandCycles + uint64(words)*c.SerialRAMWordCycles
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a TimingConfig from a YAML (.yaml, .yml) or JSON file.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a file, as YAML when the extension
// asks for it and JSON otherwise.
func (c *TimingConfig) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that every latency that bounds a stall is positive.
func (c *TimingConfig) Validate() error {
	checks := []struct {
		name  string
		value uint64
	}{
		{"alu_latency", c.ALULatency},
		{"branch_latency", c.BranchLatency},
		{"load_latency", c.LoadLatency},
		{"store_latency", c.StoreLatency},
		{"multiply_latency", c.MultiplyLatency},
		{"divide_latency", c.DivideLatency},
		{"syscall_latency", c.SyscallLatency},
		{"memory_latency", c.MemoryLatency},
		{"serial_ram_command_cycles", c.SerialRAMCommandCycles},
		{"peripheral_latency", c.PeripheralLatency},
	}
	for _, check := range checks {
		if check.value == 0 {
			return fmt.Errorf("%s must be > 0", check.name)
		}
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
