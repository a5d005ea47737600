package bus_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/latency"
)

var _ = Describe("Arbiter", func() {
	var (
		m       *bus.AddressMap
		ram     *bus.RAM
		reg     *regTarget
		arbiter *bus.Arbiter
		data    *bus.Port
		inst    *bus.Port
	)

	BeforeEach(func() {
		m = bus.NewAddressMap()
		ram = bus.NewRAM(0x1000, latency.DefaultTimingConfig())
		reg = newRegTarget()
		Expect(m.Add(&bus.Window{Name: "ram", Base: 0x10000, Size: 0x1000,
			Target: ram, Cacheable: true, Burst: true})).To(Succeed())
		Expect(m.Add(&bus.Window{Name: "regs", Base: 0x1000, Size: 0x10,
			Target: reg})).To(Succeed())

		arbiter = bus.NewArbiter(m)
		data = arbiter.NewPort("dcache", bus.PriorityData)
		inst = arbiter.NewPort("icache", bus.PriorityInstruction)
	})

	It("should complete a read after the target latency", func() {
		ram.Memory().Write32(0x10, 0xCAFEF00D)
		t := bus.NewRead(0x10010, 1, bus.FullMask)
		Expect(data.Submit(t)).To(BeTrue())

		arbiter.Tick()
		Expect(arbiter.GrantedThisCycle()).To(BeTrue())
		Expect(arbiter.Busy()).To(BeTrue())

		for i := 0; i < 3; i++ {
			arbiter.Tick()
			Expect(t.Done).To(BeFalse())
		}
		arbiter.Tick()

		Expect(t.Done).To(BeTrue())
		Expect(t.Fault).To(Equal(faults.BusOK))
		Expect(t.Data).To(Equal([]uint32{0xCAFEF00D}))
		Expect(data.Busy()).To(BeFalse())
	})

	It("should apply writes only at completion", func() {
		t := bus.NewWrite(0x10000, []uint32{0x11223344}, 0x3)
		data.Submit(t)

		arbiter.Tick()
		Expect(ram.Memory().Read32(0)).To(BeZero())

		for !t.Done {
			arbiter.Tick()
		}
		Expect(ram.Memory().Read32(0)).To(Equal(uint32(0x3344)))
	})

	It("should charge bursts per word", func() {
		t := bus.NewRead(0x10000, 4, bus.FullMask)
		inst.Submit(t)

		ticks := 0
		for !t.Done {
			arbiter.Tick()
			ticks++
		}
		// grant cycle + 4 first word + 3 more words
		Expect(ticks).To(Equal(8))
		Expect(t.Data).To(HaveLen(4))
	})

	It("should refuse a second transaction on a busy port", func() {
		Expect(data.Submit(bus.NewRead(0x10000, 1, 0xF))).To(BeTrue())
		Expect(data.Submit(bus.NewRead(0x10004, 1, 0xF))).To(BeFalse())
	})

	It("should grant the data port before the instruction port", func() {
		d := bus.NewRead(0x10000, 1, 0xF)
		i := bus.NewRead(0x10004, 1, 0xF)
		inst.Submit(i)
		data.Submit(d)

		arbiter.Tick()
		Expect(arbiter.LastGrant().Transaction).To(BeIdenticalTo(d))

		for !d.Done {
			arbiter.Tick()
		}
		Expect(arbiter.LastGrant().Transaction).To(BeIdenticalTo(i))
	})

	It("should serve peripherals round-robin", func() {
		p1 := arbiter.NewPort("uart", bus.PriorityPeripheral)
		p2 := arbiter.NewPort("depp", bus.PriorityPeripheral)

		var order []string
		for n := 0; n < 6; n++ {
			if !p1.Busy() {
				p1.Submit(bus.NewRead(0x1000, 1, 0xF))
			}
			if !p2.Busy() {
				p2.Submit(bus.NewRead(0x1004, 1, 0xF))
			}
			arbiter.Tick()
			if arbiter.GrantedThisCycle() {
				order = append(order, arbiter.LastGrant().Transaction.Requester)
			}
		}

		Expect(order).To(Equal([]string{"uart", "depp", "uart", "depp", "uart", "depp"}))
	})

	It("should fault unmapped accesses without side effects", func() {
		t := bus.NewWrite(0x20000, []uint32{1}, 0xF)
		data.Submit(t)
		arbiter.Tick()

		Expect(t.Done).To(BeTrue())
		Expect(t.Faulted()).To(BeTrue())
		Expect(t.Fault).To(Equal(faults.BusOutOfRange))
		Expect(arbiter.Busy()).To(BeFalse())
		Expect(arbiter.Stats().Faults).To(Equal(uint64(1)))
	})

	It("should fault a burst to a register window", func() {
		t := bus.NewRead(0x1000, 2, 0xF)
		data.Submit(t)
		arbiter.Tick()

		Expect(t.Fault).To(Equal(faults.BusIllegalBurst))
		Expect(reg.reads).To(BeZero())
	})

	It("should never grant more than once per cycle", func() {
		p := arbiter.NewPort("uart", bus.PriorityPeripheral)
		ports := []*bus.Port{data, inst, p}

		for cycle := 0; cycle < 200; cycle++ {
			for i, port := range ports {
				if !port.Busy() {
					port.Submit(bus.NewRead(0x10000+uint32(i)*4, 1, 0xF))
				}
			}
			before := arbiter.Stats().Grants
			arbiter.Tick()
			Expect(arbiter.Stats().Grants - before).To(BeNumerically("<=", 1))
		}

		stats := arbiter.Stats()
		Expect(stats.BusyCycles).To(BeNumerically(">", 0))
		Expect(stats.Utilization()).To(BeNumerically(">", 0.5))
		Expect(stats.GrantsByRequester).To(HaveKey("dcache"))
	})
})
