package periph

import (
	"strings"

	"github.com/sarchlab/softcore/timing/latency"
)

// DisplayDigits is the number of seven-segment digits.
const DisplayDigits = 8

// DisplayControl is the offset of the control word: decimal points in bits
// 0-7 and digit enables in bits 8-15.
const DisplayControl = 0x8

// Display is the seven-segment display driver. Each digit register holds a
// hexadecimal value.
type Display struct {
	timing  *latency.TimingConfig
	digits  [DisplayDigits]byte
	control uint32
}

// NewDisplay creates a display with all digits blank.
func NewDisplay(timing *latency.TimingConfig) *Display {
	return &Display{timing: timing}
}

// ReadWord implements bus.Target.
func (d *Display) ReadWord(offset uint32, _ uint8) uint32 {
	switch offset {
	case 0, 4:
		var w uint32
		for i := 0; i < 4; i++ {
			w |= uint32(d.digits[int(offset)+i]) << (8 * i)
		}
		return w
	case DisplayControl:
		return d.control
	}
	return 0
}

// WriteWord implements bus.Target.
func (d *Display) WriteWord(offset uint32, data uint32, mask uint8) {
	switch offset {
	case 0, 4:
		b := laneBytes(data)
		for i := 0; i < 4; i++ {
			if lane(mask, i) {
				d.digits[int(offset)+i] = b[i]
			}
		}
	case DisplayControl:
		d.control = merge(d.control, data, mask) & 0xFFFF
	}
}

// Latency implements bus.Target.
func (d *Display) Latency(int) uint64 {
	return d.timing.PeripheralLatency
}

// Peek implements bus.Debugger.
func (d *Display) Peek(offset uint32) uint32 {
	return d.ReadWord(offset, 0xF)
}

// Poke implements bus.Debugger.
func (d *Display) Poke(offset uint32, data uint32, mask uint8) {
	d.WriteWord(offset, data, mask)
}

// Digit returns the raw value of digit i, counted from the right.
func (d *Display) Digit(i int) byte {
	return d.digits[i]
}

// DecimalPoints returns the decimal point mask.
func (d *Display) DecimalPoints() uint8 {
	return uint8(d.control)
}

// Enabled returns the digit enable mask.
func (d *Display) Enabled() uint8 {
	return uint8(d.control >> 8)
}

// String renders the display, leftmost digit first. Disabled digits show
// as blanks.
func (d *Display) String() string {
	const hex = "0123456789ABCDEF"

	var sb strings.Builder
	for i := DisplayDigits - 1; i >= 0; i-- {
		if d.Enabled()&(1<<i) == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(hex[d.digits[i]&0xF])
		}
		if d.DecimalPoints()&(1<<i) != 0 {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
