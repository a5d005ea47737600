package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/cache"
	"github.com/sarchlab/softcore/timing/latency"
	"github.com/sarchlab/softcore/timing/periph"
)

// Window names used in the address map.
const (
	WindowUART      = "uart"
	WindowDisplay   = "display"
	WindowDEPP      = "depp"
	WindowRAM       = "ram"
	WindowSerialRAM = "spiram"
)

// WindowConfig places one memory-mapped window.
type WindowConfig struct {
	Base uint32 `json:"base" yaml:"base"`
	Size uint32 `json:"size" yaml:"size"`
}

// MemoryMap holds the placement of every window of the platform.
type MemoryMap struct {
	UART      WindowConfig `json:"uart" yaml:"uart"`
	Display   WindowConfig `json:"display" yaml:"display"`
	DEPP      WindowConfig `json:"depp" yaml:"depp"`
	RAM       WindowConfig `json:"ram" yaml:"ram"`
	SerialRAM WindowConfig `json:"serial_ram" yaml:"serial_ram"`
}

// Config describes a complete platform: the ISA of the core, where it
// starts, the memory map, the cache geometry and the timing parameters.
type Config struct {
	ISA insts.ISA `json:"isa" yaml:"isa"`

	// ResetPC is where fetch starts when no program sets an entry point.
	ResetPC uint32 `json:"reset_pc" yaml:"reset_pc"`

	// StackPointer is the initial value of sp/$sp. It defaults to the top
	// of RAM.
	StackPointer uint32 `json:"stack_pointer" yaml:"stack_pointer"`

	MemoryMap MemoryMap            `json:"memory_map" yaml:"memory_map"`
	ICache    cache.Config         `json:"icache" yaml:"icache"`
	DCache    cache.Config         `json:"dcache" yaml:"dcache"`
	Timing    latency.TimingConfig `json:"timing" yaml:"timing"`
}

// DefaultConfig returns the default platform for an ISA.
func DefaultConfig(isa insts.ISA) *Config {
	mm := MemoryMap{
		UART:      WindowConfig{Base: 0x1000, Size: 0x10},
		Display:   WindowConfig{Base: 0x1100, Size: 0x10},
		DEPP:      WindowConfig{Base: 0x1200, Size: 0x10},
		RAM:       WindowConfig{Base: 0x100000, Size: 256 * 1024},
		SerialRAM: WindowConfig{Base: 0x1000000, Size: periph.SPIRAMBanks * 128 * 1024},
	}

	return &Config{
		ISA:          isa,
		ResetPC:      mm.RAM.Base,
		StackPointer: mm.RAM.Base + mm.RAM.Size,
		MemoryMap:    mm,
		ICache:       cache.DefaultICacheConfig(),
		DCache:       cache.DefaultDCacheConfig(),
		Timing:       *latency.DefaultTimingConfig(),
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a platform config from a YAML (.yaml, .yml) or JSON
// file. Fields missing from the file keep the RISC-V defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform config file: %w", err)
	}

	config := DefaultConfig(insts.RISCV)
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse platform config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the config as YAML or JSON depending on the extension.
func (c *Config) SaveConfig(path string) error {
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
		return fmt.Errorf("failed to serialize platform config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write platform config file: %w", err)
	}
	return nil
}

// Validate checks the parts of the config that can be checked without
// building the platform. Overlapping windows are reported by Build.
func (c *Config) Validate() error {
	if c.ISA != insts.RISCV && c.ISA != insts.MIPS {
		return fmt.Errorf("unknown ISA %d", c.ISA)
	}

	windows := []struct {
		name string
		w    WindowConfig
	}{
		{WindowUART, c.MemoryMap.UART},
		{WindowDisplay, c.MemoryMap.Display},
		{WindowDEPP, c.MemoryMap.DEPP},
		{WindowRAM, c.MemoryMap.RAM},
		{WindowSerialRAM, c.MemoryMap.SerialRAM},
	}
	for _, w := range windows {
		if w.w.Size == 0 || w.w.Size%4 != 0 {
			return fmt.Errorf("window %s: size %#x must be a positive multiple of 4", w.name, w.w.Size)
		}
		if w.w.Base%4 != 0 {
			return fmt.Errorf("window %s: base %#x is not word aligned", w.name, w.w.Base)
		}
		if uint64(w.w.Base)+uint64(w.w.Size) > 1<<32 {
			return fmt.Errorf("window %s: extends past the 32-bit address space", w.name)
		}
	}

	if c.MemoryMap.SerialRAM.Size%(periph.SPIRAMBanks*4) != 0 {
		return fmt.Errorf("window %s: size %#x does not split into %d word-aligned banks",
			WindowSerialRAM, c.MemoryMap.SerialRAM.Size, periph.SPIRAMBanks)
	}

	if c.ResetPC%4 != 0 {
		return fmt.Errorf("reset PC %#x is not word aligned", c.ResetPC)
	}

	if err := c.ICache.Validate(); err != nil {
		return fmt.Errorf("icache: %w", err)
	}
	if err := c.DCache.Validate(); err != nil {
		return fmt.Errorf("dcache: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}

	line := uint32(max(c.ICache.BlockSize, c.DCache.BlockSize))
	for _, w := range windows {
		if w.name != WindowRAM && w.name != WindowSerialRAM {
			continue
		}
		if w.w.Base%line != 0 || w.w.Size%line != 0 {
			return fmt.Errorf("window %s: base %#x and size %#x must be multiples of the %d-byte cache line",
				w.name, w.w.Base, w.w.Size, line)
		}
	}

	return nil
}
