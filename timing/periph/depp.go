package periph

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/latency"
)

// DEPP host register addresses.
const (
	DEPPAddress    = 0
	DEPPWriteData  = 4
	DEPPReadData   = 8
	DEPPWriteMask  = 12
	DEPPMode       = 13
	DEPPFault      = 14
	DEPPActivation = 15

	DEPPModeFastRead  = 1 << 0
	DEPPModeFastWrite = 1 << 1
)

// DEPP status window offsets, seen by the CPU.
const (
	DEPPStatusCount = 0x0
	DEPPStatusFault = 0x4
)

// DEPP is the parallel-port slave. The host programs an address, a write
// mask and data through byte registers and starts bus transactions either
// explicitly through the activation register or, in the fast modes,
// implicitly by touching the data registers. Fast transfers step the
// address by one word when they complete.
type DEPP struct {
	port   *bus.Port
	timing *latency.TimingConfig
	logger logr.Logger

	addr      uint32
	writeData uint32
	readData  uint32
	mask      uint8
	mode      uint8
	fault     faults.BusCode

	pending  *bus.Transaction
	fast     bool
	fresh    bool
	startReq *bus.Transaction

	count uint32
}

// NewDEPP creates a DEPP slave issuing transactions through port.
func NewDEPP(port *bus.Port, timing *latency.TimingConfig, logger logr.Logger) *DEPP {
	return &DEPP{port: port, timing: timing, logger: logger, mask: bus.FullMask}
}

// Busy reports whether a transaction is in flight. The host must wait.
func (d *DEPP) Busy() bool {
	return d.pending != nil || d.startReq != nil
}

// HostWrite writes a host register. It returns false, and has no effect,
// while a transaction is in flight.
func (d *DEPP) HostWrite(reg uint8, v byte) bool {
	if d.Busy() {
		return false
	}

	switch {
	case reg < DEPPWriteData:
		shift := 8 * uint32(reg-DEPPAddress)
		d.addr = d.addr&^(0xFF<<shift) | uint32(v)<<shift
		d.fresh = false
	case reg < DEPPReadData:
		i := int(reg - DEPPWriteData)
		shift := 8 * uint32(i)
		d.writeData = d.writeData&^(0xFF<<shift) | uint32(v)<<shift
		if d.mode&DEPPModeFastWrite != 0 && i == lastLane(d.mask) {
			d.start(bus.Write, true)
		}
	case reg == DEPPWriteMask:
		d.mask = v & bus.FullMask
	case reg == DEPPMode:
		d.mode = v & (DEPPModeFastRead | DEPPModeFastWrite)
	case reg == DEPPActivation:
		if v == 1 {
			d.start(bus.Read, false)
		} else {
			d.start(bus.Write, false)
		}
	}
	return true
}

// HostRead reads a host register. The second result is false while the
// host must wait. In fast-read mode, reading the first read-data byte
// starts a read unless a completed one has not been consumed yet.
func (d *DEPP) HostRead(reg uint8) (byte, bool) {
	if d.Busy() {
		return 0, false
	}

	switch {
	case reg < DEPPWriteData:
		return byte(d.addr >> (8 * uint32(reg-DEPPAddress))), true
	case reg < DEPPReadData:
		return byte(d.writeData >> (8 * uint32(reg-DEPPWriteData))), true
	case reg < DEPPWriteMask:
		if reg == DEPPReadData && d.mode&DEPPModeFastRead != 0 {
			if !d.fresh {
				d.start(bus.Read, true)
				return 0, false
			}
			d.fresh = false
		}
		return byte(d.readData >> (8 * uint32(reg-DEPPReadData))), true
	case reg == DEPPWriteMask:
		return d.mask, true
	case reg == DEPPMode:
		return d.mode, true
	case reg == DEPPFault:
		return byte(d.fault), true
	}
	return 0, true
}

func (d *DEPP) start(kind bus.Kind, fast bool) {
	addr := d.addr
	if kind == bus.Read {
		d.startReq = bus.NewRead(addr, 1, bus.FullMask)
	} else {
		d.startReq = bus.NewWrite(addr, []uint32{d.writeData}, d.mask)
	}
	d.fast = fast
}

// Tick issues a requested transaction and retires a completed one.
func (d *DEPP) Tick() {
	if d.pending != nil && d.pending.Done {
		d.finish()
	}

	if d.pending == nil && d.startReq != nil {
		if d.port.Submit(d.startReq) {
			d.pending = d.startReq
			d.startReq = nil
		}
	}
}

func (d *DEPP) finish() {
	t := d.pending
	d.pending = nil
	d.count++
	d.fault = t.Fault

	if t.Faulted() {
		d.logger.V(1).Info("depp bus error", "addr", t.Addr, "code", t.Fault.String())
		return
	}

	if t.Kind == bus.Read {
		d.readData = t.Data[0]
		d.fresh = true
	}
	if d.fast {
		d.addr += 4
	}
}

// Address returns the current address register.
func (d *DEPP) Address() uint32 {
	return d.addr
}

// ReadWord implements bus.Target for the CPU status window.
func (d *DEPP) ReadWord(offset uint32, _ uint8) uint32 {
	switch offset {
	case DEPPStatusCount:
		return d.count
	case DEPPStatusFault:
		return uint32(d.fault)
	}
	return 0
}

// WriteWord implements bus.Target. The status window is read-only.
func (d *DEPP) WriteWord(uint32, uint32, uint8) {}

// Latency implements bus.Target.
func (d *DEPP) Latency(int) uint64 {
	return d.timing.PeripheralLatency
}

// lastLane returns the highest byte lane enabled by mask.
func lastLane(mask uint8) int {
	for i := 3; i > 0; i-- {
		if lane(mask, i) {
			return i
		}
	}
	return 0
}
