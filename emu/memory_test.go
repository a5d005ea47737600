package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/emu"
)

var _ = Describe("Memory", func() {
	It("should read back little-endian words and halves", func() {
		m := emu.NewMemory()
		m.Write32(0x2000, 0x11223344)

		Expect(m.Read8(0x2000)).To(Equal(uint8(0x44)))
		Expect(m.Read16(0x2002)).To(Equal(uint16(0x1122)))
		Expect(m.Read32(0x2000)).To(Equal(uint32(0x11223344)))
	})

	It("should only write the masked lanes", func() {
		m := emu.NewMemory()
		m.Write32(0x40, 0xAAAAAAAA)
		m.WriteMasked(0x40, 0x11223344, 0x6)

		Expect(m.Read32(0x40)).To(Equal(uint32(0xAA2233AA)))
	})

	It("should reach the top of the address space", func() {
		m := emu.NewMemory()
		m.Write32(0xFFFFFFFC, 0xCAFEF00D)
		Expect(m.Read32(0xFFFFFFFC)).To(Equal(uint32(0xCAFEF00D)))
	})

	It("should translate addresses inside a window", func() {
		m := emu.NewMemoryWindow(0x0100_0000, 0x1000)
		m.Write32(0x0100_0010, 7)
		Expect(m.Read32(0x0100_0010)).To(Equal(uint32(7)))
	})
})
