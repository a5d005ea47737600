package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/cache"
	"github.com/sarchlab/softcore/timing/latency"
)

const ramBase = 0x100000

// counter is an uncached register target that counts accesses.
type counter struct {
	value  uint32
	reads  int
	writes int
}

func (c *counter) ReadWord(uint32, uint8) uint32 {
	c.reads++
	return c.value
}

func (c *counter) WriteWord(_ uint32, data uint32, _ uint8) {
	c.writes++
	c.value = data
}

func (c *counter) Latency(int) uint64 { return 2 }

var _ = Describe("Cache", func() {
	var (
		ram     *bus.RAM
		reg     *counter
		arbiter *bus.Arbiter
		grants  []*bus.Transaction
		c       *cache.Cache
	)

	// step runs one cycle: the cache owner acts, then the bus.
	step := func(access func() cache.AccessResult) cache.AccessResult {
		c.Tick()
		r := access()
		arbiter.Tick()
		if arbiter.GrantedThisCycle() {
			grants = append(grants, arbiter.LastGrant().Transaction)
		}
		return r
	}

	run := func(access func() cache.AccessResult) (cache.AccessResult, int) {
		for cycles := 1; cycles < 1000; cycles++ {
			if r := step(access); r.Done {
				return r, cycles
			}
		}
		Fail("access never completed")
		return cache.AccessResult{}, 0
	}

	read := func(addr uint32) cache.AccessResult {
		r, _ := run(func() cache.AccessResult { return c.Read(addr, bus.FullMask) })
		return r
	}

	write := func(addr, data uint32, mask uint8) cache.AccessResult {
		r, _ := run(func() cache.AccessResult { return c.Write(addr, data, mask) })
		return r
	}

	BeforeEach(func() {
		m := bus.NewAddressMap()
		ram = bus.NewRAM(0x10000, latency.DefaultTimingConfig())
		reg = &counter{}
		Expect(m.Add(&bus.Window{Name: "ram", Base: ramBase, Size: 0x10000,
			Target: ram, Cacheable: true, Burst: true})).To(Succeed())
		Expect(m.Add(&bus.Window{Name: "reg", Base: 0x1000, Size: 0x10,
			Target: reg})).To(Succeed())
		// Shorter than a line: every fill from it faults.
		Expect(m.Add(&bus.Window{Name: "short", Base: 0x200000, Size: 0x8,
			Target: bus.NewRAM(0x8, latency.DefaultTimingConfig()), Cacheable: true, Burst: true})).To(Succeed())

		arbiter = bus.NewArbiter(m)
		grants = nil

		// 2 sets, 2 ways, 16B lines. Lines 0x20 apart share a set.
		config := cache.Config{Size: 64, Associativity: 2, BlockSize: 16}
		c = cache.New(config, arbiter.NewPort("dcache", bus.PriorityData), m)
	})

	Describe("Read operations", func() {
		It("should miss on a cold cache and fill the whole line", func() {
			ram.Memory().LoadWords(0x10, []uint32{1, 2, 3, 4})

			r, cycles := run(func() cache.AccessResult { return c.Read(ramBase+0x14, 0xF) })
			Expect(r.Hit).To(BeFalse())
			Expect(r.Data).To(Equal(uint32(2)))
			Expect(cycles).To(BeNumerically(">", 1))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Fills).To(Equal(uint64(1)))
			Expect(stats.Hits).To(BeZero())
			Expect(grants).To(HaveLen(1))
			Expect(grants[0].Words).To(Equal(4))
		})

		It("should hit in the same cycle once the line is present", func() {
			ram.Memory().LoadWords(0x10, []uint32{1, 2, 3, 4})
			read(ramBase + 0x10)

			r, cycles := run(func() cache.AccessResult { return c.Read(ramBase+0x1C, 0xF) })
			Expect(cycles).To(Equal(1))
			Expect(r.Hit).To(BeTrue())
			Expect(r.Data).To(Equal(uint32(4)))
			Expect(c.Stats().Hits).To(Equal(uint64(1)))
		})
	})

	Describe("Write operations", func() {
		It("should return the latest write after a miss, a store and a load", func() {
			ram.Memory().Write32(0x40, 0x11111111)
			a := uint32(ramBase + 0x40)

			Expect(read(a).Data).To(Equal(uint32(0x11111111)))
			Expect(write(a, 0xCAFE0000, 0xC).Hit).To(BeTrue())

			r := read(a)
			Expect(r.Hit).To(BeTrue())
			Expect(r.Data).To(Equal(uint32(0xCAFE1111)))
			Expect(c.IsDirty(a)).To(BeTrue())
			Expect(ram.Memory().Read32(0x40)).To(Equal(uint32(0x11111111)))
		})

		It("should write-allocate on a miss", func() {
			r := write(ramBase+0x8, 0xAB, 0x1)
			Expect(r.Hit).To(BeFalse())
			Expect(c.Contains(ramBase + 0x8)).To(BeTrue())
			Expect(c.IsDirty(ramBase + 0x8)).To(BeTrue())

			v, ok := c.Peek(ramBase + 0x8)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0xAB)))
		})

		It("should panic when written as a read-only cache", func() {
			m := arbiter.AddressMap()
			ic := cache.New(cache.DefaultICacheConfig(),
				arbiter.NewPort("icache", bus.PriorityInstruction), m, cache.WithReadOnly())
			Expect(func() { ic.Write(ramBase, 1, 0xF) }).To(PanicWith("cache: write to read-only cache"))
		})
	})

	Describe("Eviction", func() {
		a, b, d := uint32(ramBase), uint32(ramBase+0x20), uint32(ramBase+0x40)

		It("should evict the least recently used line", func() {
			read(a)
			read(b)
			read(a)
			read(d)

			Expect(c.Contains(a)).To(BeTrue())
			Expect(c.Contains(b)).To(BeFalse())
			Expect(c.Contains(d)).To(BeTrue())
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should write back a dirty victim before issuing the fill", func() {
			write(a, 0x5A5A5A5A, 0xF)
			read(b)
			grants = nil

			read(d)

			Expect(ram.Memory().Read32(0)).To(Equal(uint32(0x5A5A5A5A)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
			Expect(grants).To(HaveLen(2))
			Expect(grants[0].Kind).To(Equal(bus.Write))
			Expect(grants[0].Addr).To(Equal(a))
			Expect(grants[1].Kind).To(Equal(bus.Read))
			Expect(grants[1].Addr).To(Equal(d))
		})

		It("should reuse invalidated lines first", func() {
			read(a)
			read(b)
			c.Invalidate(a)
			read(d)

			Expect(c.Contains(b)).To(BeTrue())
			Expect(c.Contains(d)).To(BeTrue())
			Expect(c.Stats().Evictions).To(BeZero())
		})
	})

	Describe("Concurrency with outstanding misses", func() {
		It("should serve hits while a miss is outstanding", func() {
			ram.Memory().Write32(0, 7)
			read(ramBase)

			r := step(func() cache.AccessResult { return c.Read(ramBase+0x10, 0xF) })
			Expect(r.Done).To(BeFalse())
			Expect(c.Busy()).To(BeTrue())

			r = step(func() cache.AccessResult { return c.Read(ramBase, 0xF) })
			Expect(r.Done).To(BeTrue())
			Expect(r.Hit).To(BeTrue())
			Expect(r.Data).To(Equal(uint32(7)))
		})

		It("should finish an abandoned fill before starting the next", func() {
			step(func() cache.AccessResult { return c.Read(ramBase, 0xF) })

			r, _ := run(func() cache.AccessResult { return c.Read(ramBase+0x10, 0xF) })
			Expect(r.Done).To(BeTrue())
			Expect(c.Contains(ramBase)).To(BeTrue())
			Expect(c.Contains(ramBase + 0x10)).To(BeTrue())
			Expect(grants).To(HaveLen(2))
			Expect(grants[0].Addr).To(Equal(uint32(ramBase)))
		})

		It("should refetch a line whose faulted fill was abandoned", func() {
			step(func() cache.AccessResult { return c.Read(0x200000, 0xF) })
			read(ramBase)
			Expect(c.Stats().Misses).To(Equal(uint64(2)))

			r := read(0x200004)
			Expect(r.Fault).To(Equal(faults.BusOutOfRange))
			Expect(c.Stats().Misses).To(Equal(uint64(3)))
		})
	})

	Describe("Uncached access", func() {
		It("should go to the bus every time", func() {
			reg.value = 42
			Expect(read(0x1004).Data).To(Equal(uint32(42)))
			Expect(read(0x1004).Data).To(Equal(uint32(42)))
			Expect(reg.reads).To(Equal(2))
			Expect(c.Contains(0x1004)).To(BeFalse())
			Expect(c.Stats().Uncached).To(Equal(uint64(2)))
		})

		It("should pass byte masks through", func() {
			write(0x1000, 0x77, 0x1)
			Expect(reg.writes).To(Equal(1))
			Expect(grants[0].Mask).To(Equal(uint8(0x1)))
		})

		It("should report bus faults for unmapped addresses", func() {
			r := read(0x8000)
			Expect(r.Fault).To(Equal(faults.BusOutOfRange))

			r = write(0x8000, 1, 0xF)
			Expect(r.Fault).To(Equal(faults.BusOutOfRange))
		})
	})

	Describe("Flush", func() {
		It("should write back all dirty blocks", func() {
			write(ramBase, 0x1234, 0xF)
			write(ramBase+0x10, 0x5678, 0xF)

			Expect(c.Flush()).To(Succeed())
			Expect(ram.Memory().Read32(0)).To(Equal(uint32(0x1234)))
			Expect(ram.Memory().Read32(0x10)).To(Equal(uint32(0x5678)))
			Expect(c.Contains(ramBase)).To(BeFalse())
		})

		It("should leave lines valid and clean on WriteBackDirty", func() {
			write(ramBase, 0x99, 0xF)
			Expect(c.WriteBackDirty()).To(Succeed())
			Expect(ram.Memory().Read32(0)).To(Equal(uint32(0x99)))
			Expect(c.Contains(ramBase)).To(BeTrue())
			Expect(c.IsDirty(ramBase)).To(BeFalse())
		})
	})

	Describe("Configuration", func() {
		It("should provide valid defaults", func() {
			Expect(cache.DefaultICacheConfig().Validate()).To(Succeed())
			Expect(cache.DefaultDCacheConfig().Validate()).To(Succeed())
			Expect(cache.DefaultDCacheConfig().NumSets()).To(Equal(64))
		})

		It("should reject bad geometry", func() {
			Expect(cache.Config{Size: 64, Associativity: 2, BlockSize: 12}.Validate()).
				To(MatchError(ContainSubstring("power of two")))
			Expect(cache.Config{Size: 100, Associativity: 2, BlockSize: 16}.Validate()).
				To(MatchError(ContainSubstring("multiple")))
			Expect(func() {
				cache.New(cache.Config{}, nil, nil)
			}).To(Panic())
		})
	})
})
