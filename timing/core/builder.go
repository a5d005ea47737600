package core

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/cache"
	"github.com/sarchlab/softcore/timing/latency"
	"github.com/sarchlab/softcore/timing/periph"
	"github.com/sarchlab/softcore/timing/pipeline"
)

// A Builder can build a Core.
type Builder struct {
	config       *Config
	logger       logr.Logger
	uartOutput   io.Writer
	faultHandler pipeline.FaultHandler
}

// MakeBuilder returns a Builder with the default RISC-V platform.
func MakeBuilder() Builder {
	return Builder{
		config: DefaultConfig(insts.RISCV),
		logger: logr.Discard(),
	}
}

// WithConfig sets the platform config.
func (b Builder) WithConfig(config *Config) Builder {
	b.config = config
	return b
}

// WithLogger sets the logger handed to every component.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = logger
	return b
}

// WithUARTOutput sets where transmitted UART bytes go.
func (b Builder) WithUARTOutput(w io.Writer) Builder {
	b.uartOutput = w
	return b
}

// WithFaultHandler sets a handler that may resume execution after a fault.
// Faults are recorded in the fault log either way.
func (b Builder) WithFaultHandler(handler pipeline.FaultHandler) Builder {
	b.faultHandler = handler
	return b
}

// Build creates a Core.
func (b Builder) Build(name string) (*Core, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config := *b.config
	timing := config.Timing.Clone()
	logger := b.logger.WithName(name)

	c := &Core{
		name:         name,
		config:       &config,
		logger:       logger,
		regFile:      &emu.RegFile{},
		faultLog:     faults.NewLog(),
		faultHandler: b.faultHandler,
	}

	c.ram = bus.NewRAM(config.MemoryMap.RAM.Size, timing)
	c.spiRAM = periph.NewSPIRAM(config.MemoryMap.SerialRAM.Size/periph.SPIRAMBanks, timing)
	c.uart = periph.NewUART(timing, b.uartOutput, logger.WithName("uart"))
	c.display = periph.NewDisplay(timing)

	c.addrMap = bus.NewAddressMap()
	c.arbiter = bus.NewArbiter(c.addrMap, bus.WithLogger(logger.WithName("bus")))
	c.depp = periph.NewDEPP(c.arbiter.NewPort("depp", bus.PriorityPeripheral), timing,
		logger.WithName("depp"))
	c.bridge = periph.NewUARTBridge(c.arbiter.NewPort("uart-bridge", bus.PriorityPeripheral),
		logger.WithName("uart-bridge"))

	if err := b.buildAddressMap(c); err != nil {
		return nil, err
	}

	c.icache = cache.New(config.ICache,
		c.arbiter.NewPort("icache", bus.PriorityInstruction), c.addrMap,
		cache.WithReadOnly(), cache.WithLogger(logger.WithName("icache")))
	c.dcache = cache.New(config.DCache,
		c.arbiter.NewPort("dcache", bus.PriorityData), c.addrMap,
		cache.WithLogger(logger.WithName("dcache")))

	c.pipeline = pipeline.NewPipeline(c.regFile, c.icache, c.dcache,
		pipeline.WithISA(config.ISA),
		pipeline.WithLatencyTable(latency.NewTableWithConfig(timing)),
		pipeline.WithLogger(logger.WithName("pipeline")),
		pipeline.WithFaultHandler(c.handleFault))

	c.Reset()

	return c, nil
}

func (b Builder) buildAddressMap(c *Core) error {
	mm := c.config.MemoryMap
	windows := []*bus.Window{
		{Name: WindowUART, Base: mm.UART.Base, Size: mm.UART.Size, Target: c.uart},
		{Name: WindowDisplay, Base: mm.Display.Base, Size: mm.Display.Size, Target: c.display},
		{Name: WindowDEPP, Base: mm.DEPP.Base, Size: mm.DEPP.Size, Target: c.depp},
		{Name: WindowRAM, Base: mm.RAM.Base, Size: mm.RAM.Size, Target: c.ram,
			Cacheable: true, Burst: true},
		{Name: WindowSerialRAM, Base: mm.SerialRAM.Base, Size: mm.SerialRAM.Size, Target: c.spiRAM,
			Cacheable: true, Burst: true},
	}

	for _, w := range windows {
		if err := c.addrMap.Add(w); err != nil {
			return fmt.Errorf("failed to build address map: %w", err)
		}
	}
	return nil
}
