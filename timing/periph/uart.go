package periph

import (
	"io"

	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/timing/latency"
)

// UART register offsets.
const (
	UARTTxData    = 0x0
	UARTTxEnable  = 0x1
	UARTRxData    = 0x2
	UARTRxEnable  = 0x3
	UARTTxCount   = 0x4
	UARTRxCount   = 0x6
	UARTDivisor   = 0x8
	UARTQueueSize = 16
)

// UARTBitsPerFrame is the number of bit times one byte takes on the line:
// a start bit, eight data bits and a stop bit.
const UARTBitsPerFrame = 10

// UART is the CPU-side serial port. Bytes written to the TX queue leave one
// frame time apart while TX is enabled; bytes injected by the host queue up
// in RX while RX is enabled.
type UART struct {
	timing *latency.TimingConfig
	out    io.Writer
	logger logr.Logger

	tx, rx             []byte
	txEnable, rxEnable bool
	divisor            uint32
	txTimer            uint64

	sent, dropped uint64
}

// NewUART creates a UART that transmits to out. A nil writer discards
// output.
func NewUART(timing *latency.TimingConfig, out io.Writer, logger logr.Logger) *UART {
	if out == nil {
		out = io.Discard
	}
	return &UART{timing: timing, out: out, logger: logger, divisor: 1}
}

// ReadWord implements bus.Target. Reading lane 2 of word 0 pops the RX
// queue.
func (u *UART) ReadWord(offset uint32, mask uint8) uint32 {
	switch offset {
	case 0:
		var w uint32
		if u.txEnable {
			w |= 1 << 8
		}
		if lane(mask, 2) && len(u.rx) > 0 {
			w |= uint32(u.rx[0]) << 16
			u.rx = u.rx[1:]
		}
		if u.rxEnable {
			w |= 1 << 24
		}
		return w
	case UARTTxCount:
		return uint32(len(u.tx)) | uint32(len(u.rx))<<16
	case UARTDivisor:
		return u.divisor
	}
	return 0
}

// WriteWord implements bus.Target. Writing lane 0 of word 0 pushes a byte
// to the TX queue; a full queue drops it.
func (u *UART) WriteWord(offset uint32, data uint32, mask uint8) {
	b := laneBytes(data)
	switch offset {
	case 0:
		if lane(mask, 1) {
			u.txEnable = b[1]&1 != 0
		}
		if lane(mask, 3) {
			u.rxEnable = b[3]&1 != 0
		}
		if lane(mask, 0) {
			if len(u.tx) < UARTQueueSize {
				u.tx = append(u.tx, b[0])
			} else {
				u.dropped++
			}
		}
	case UARTDivisor:
		u.divisor = merge(u.divisor, data, mask)
	}
}

// Latency implements bus.Target.
func (u *UART) Latency(int) uint64 {
	return u.timing.PeripheralLatency
}

// FrameCycles is the number of cycles one byte takes to transmit.
func (u *UART) FrameCycles() uint64 {
	if u.divisor == 0 {
		return 1
	}
	return UARTBitsPerFrame * uint64(u.divisor)
}

// Tick advances the transmitter.
func (u *UART) Tick() {
	if !u.txEnable || len(u.tx) == 0 {
		u.txTimer = 0
		return
	}

	u.txTimer++
	if u.txTimer < u.FrameCycles() {
		return
	}

	u.txTimer = 0
	b := u.tx[0]
	u.tx = u.tx[1:]
	if _, err := u.out.Write([]byte{b}); err != nil {
		u.dropped++
		u.logger.V(1).Info("tx write failed", "byte", b, "err", err.Error())
		return
	}
	u.sent++
}

// Inject delivers a byte from the host. It returns false if RX is disabled
// or the queue is full.
func (u *UART) Inject(b byte) bool {
	if !u.rxEnable || len(u.rx) >= UARTQueueSize {
		return false
	}
	u.rx = append(u.rx, b)
	return true
}

// TxPending returns the number of bytes waiting to be sent.
func (u *UART) TxPending() int {
	return len(u.tx)
}

// Sent returns the number of bytes transmitted so far.
func (u *UART) Sent() uint64 {
	return u.sent
}

// Dropped returns the number of bytes written to a full TX queue or
// rejected by the output writer.
func (u *UART) Dropped() uint64 {
	return u.dropped
}
