package periph

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
)

// Bridge commands and status codes.
const (
	BridgeReadWord  = 0x01
	BridgeWriteWord = 0x02

	BridgeOK             = 0x0
	BridgeUnknownCommand = 0x1
	BridgeBusError       = 0x2
)

type bridgeState uint8

const (
	bridgeIdle bridgeState = iota
	bridgeAddress
	bridgeData
	bridgeWaiting
)

// UARTBridge lets a host drive the bus over a serial link. The host sends a
// command byte, which is acknowledged with a status byte, followed by a
// little-endian address (and data word for writes). A read answers with the
// data word and a status byte; a write answers with a status byte. A bus
// error carries the fault code in the high nibble of the status.
type UARTBridge struct {
	port   *bus.Port
	logger logr.Logger

	in, out []byte

	state   bridgeState
	command byte
	buf     []byte
	pending *bus.Transaction
}

// NewUARTBridge creates a bridge issuing transactions through port.
func NewUARTBridge(port *bus.Port, logger logr.Logger) *UARTBridge {
	return &UARTBridge{port: port, logger: logger}
}

// Send queues bytes from the host.
func (b *UARTBridge) Send(data ...byte) {
	b.in = append(b.in, data...)
}

// Receive drains the bytes sent back to the host.
func (b *UARTBridge) Receive() []byte {
	out := b.out
	b.out = nil
	return out
}

// Idle reports whether the bridge has no command in progress and no input.
func (b *UARTBridge) Idle() bool {
	return b.state == bridgeIdle && len(b.in) == 0
}

// Tick consumes at most one host byte or finishes a bus transaction.
func (b *UARTBridge) Tick() {
	if b.state == bridgeWaiting {
		b.poll()
		return
	}

	if len(b.in) == 0 {
		return
	}
	c := b.in[0]
	b.in = b.in[1:]

	switch b.state {
	case bridgeIdle:
		b.startCommand(c)
	case bridgeAddress, bridgeData:
		b.buf = append(b.buf, c)
		b.maybeIssue()
	}
}

func (b *UARTBridge) startCommand(c byte) {
	switch c {
	case BridgeReadWord, BridgeWriteWord:
		b.command = c
		b.buf = b.buf[:0]
		b.state = bridgeAddress
		b.out = append(b.out, BridgeOK)
	default:
		b.out = append(b.out, BridgeUnknownCommand)
	}
}

func (b *UARTBridge) maybeIssue() {
	need := 4
	if b.command == BridgeWriteWord {
		need = 8
		b.state = bridgeData
	}
	if len(b.buf) < need {
		return
	}

	addr := le32(b.buf[0:4])
	if b.command == BridgeReadWord {
		b.pending = bus.NewRead(addr, 1, bus.FullMask)
	} else {
		b.pending = bus.NewWrite(addr, []uint32{le32(b.buf[4:8])}, bus.FullMask)
	}
	b.port.Submit(b.pending)
	b.state = bridgeWaiting
}

func (b *UARTBridge) poll() {
	t := b.pending
	if !t.Done {
		return
	}

	if b.command == BridgeReadWord {
		var data uint32
		if !t.Faulted() {
			data = t.Data[0]
		}
		d := laneBytes(data)
		b.out = append(b.out, d[:]...)
	}
	b.out = append(b.out, bridgeStatus(t.Fault))

	if t.Faulted() {
		b.logger.V(1).Info("bridge bus error", "addr", t.Addr, "code", t.Fault.String())
	}

	b.pending = nil
	b.state = bridgeIdle
}

func bridgeStatus(code faults.BusCode) byte {
	if code == faults.BusOK {
		return BridgeOK
	}
	return byte(code)<<4 | BridgeBusError
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
