package emu

import "github.com/sarchlab/softcore/insts"

// EffectiveAddress computes base + offset for a load or store.
func EffectiveAddress(inst *insts.Instruction, base uint64) uint32 {
	return uint32(base) + uint32(inst.Imm)
}

// Aligned reports whether addr is naturally aligned for size bytes.
func Aligned(addr uint32, size uint8) bool {
	if size == 0 {
		return true
	}
	return addr&uint32(size-1) == 0
}

// WordAddr returns the address of the word that contains addr.
func WordAddr(addr uint32) uint32 {
	return addr &^ 3
}

// ExtractLoad picks the accessed lanes out of the containing word and
// extends them to 32 bits.
func ExtractLoad(word, addr uint32, size uint8, signed bool) uint32 {
	shift := (addr & 3) * 8
	v := word >> shift

	switch size {
	case 1:
		if signed {
			return uint32(int32(int8(v)))
		}
		return v & 0xFF
	case 2:
		if signed {
			return uint32(int32(int16(v)))
		}
		return v & 0xFFFF
	default:
		return word
	}
}

// StoreLanes places value into the lanes of its containing word and returns
// the byte mask selecting them.
func StoreLanes(addr uint32, size uint8, value uint32) (word uint32, mask uint8) {
	shift := addr & 3

	switch size {
	case 1:
		return (value & 0xFF) << (shift * 8), 1 << shift
	case 2:
		return (value & 0xFFFF) << (shift * 8), 0x3 << shift
	default:
		return value, 0xF
	}
}

// MergeLanes replaces the masked lanes of old with those of data.
func MergeLanes(old, data uint32, mask uint8) uint32 {
	var m uint32
	for i := 0; i < 4; i++ {
		if mask&(1<<i) != 0 {
			m |= 0xFF << (8 * i)
		}
	}
	return old&^m | data&m
}
