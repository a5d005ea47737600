// Package periph models the memory-mapped peripherals of the platform: the
// UART, the seven-segment display, the triple-bank serial RAM and the two
// host-driven bus masters (the UART bridge and the DEPP slave).
package periph

import "github.com/sarchlab/softcore/emu"

// Ticker is a peripheral with its own per-cycle behavior.
type Ticker interface {
	Tick()
}

// laneBytes splits a word into its byte lanes.
func laneBytes(word uint32) [4]byte {
	return [4]byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func lane(mask uint8, i int) bool {
	return mask&(1<<i) != 0
}

func merge(old, data uint32, mask uint8) uint32 {
	return emu.MergeLanes(old, data, mask)
}
