package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
)

// miss is a line fill in progress. steps holds the bus transactions still
// to run, in order: an optional writeback of the dirty victim, then the
// fill. The victim stays locked until the fill is installed.
type miss struct {
	blockAddr uint32
	victim    *akitacache.Block
	steps     []*bus.Transaction
	issued    bool
	fill      *bus.Transaction
}

// uncachedAccess is a single-word access that bypasses the line store.
type uncachedAccess struct {
	t    *bus.Transaction
	kind bus.Kind
	addr uint32
	data uint32
	mask uint8
}

func (u *uncachedAccess) matches(kind bus.Kind, addr, data uint32, mask uint8) bool {
	return u.kind == kind && u.addr == addr && u.mask == mask &&
		(kind == bus.Read || u.data == data)
}

// failedFill remembers a fill the bus rejected, so the waiting access can
// collect the fault.
type failedFill struct {
	blockAddr uint32
	code      faults.BusCode
}

// startMiss begins fetching the line holding addr. Only one miss is
// tracked at a time: a miss for another line, including one abandoned by a
// pipeline flush, runs to completion first.
func (c *Cache) startMiss(addr uint32) {
	blockAddr := c.blockAddr(addr)
	if c.miss != nil {
		return
	}
	if c.uncached != nil {
		if !c.uncached.t.Done {
			return
		}
		c.uncached = nil
	}

	// A fault left by an abandoned fill belongs to no waiting access.
	c.failed = nil

	victim := c.findVictim(blockAddr)
	m := &miss{blockAddr: blockAddr, victim: victim}

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
			data := append([]uint32(nil), c.lines[c.blockIndex(victim)]...)
			m.steps = append(m.steps, bus.NewWrite(uint32(victim.Tag), data, bus.FullMask))
		}
		c.logger.V(1).Info("evict", "line", uint32(victim.Tag),
			"dirty", victim.IsDirty, "for", blockAddr)
	}

	victim.IsValid = false
	victim.IsDirty = false
	victim.IsLocked = true

	m.fill = bus.NewRead(blockAddr, c.config.BlockSize/4, bus.FullMask)
	m.steps = append(m.steps, m.fill)

	c.stats.Misses++
	c.miss = m
	c.progress()
}

// findVictim picks the first invalid line of the set in way order, and
// otherwise defers to the LRU victim finder.
func (c *Cache) findVictim(blockAddr uint32) *akitacache.Block {
	setID := int(blockAddr/uint32(c.config.BlockSize)) % c.config.NumSets()
	for _, block := range c.directory.GetSets()[setID].Blocks {
		if !block.IsValid && !block.IsLocked {
			return block
		}
	}
	return c.directory.FindVictim(uint64(blockAddr))
}

// progress issues the next step of the outstanding miss once the previous
// one completed, and installs the line when the fill arrives.
func (c *Cache) progress() {
	m := c.miss
	if m == nil {
		return
	}

	for len(m.steps) > 0 {
		t := m.steps[0]
		if !m.issued {
			if !c.port.Submit(t) {
				return
			}
			m.issued = true
			return
		}
		if !t.Done {
			return
		}
		m.steps = m.steps[1:]
		m.issued = false
	}

	c.install(m)
}

func (c *Cache) install(m *miss) {
	c.miss = nil
	victim := m.victim
	victim.IsLocked = false

	if m.fill.Faulted() {
		c.failed = &failedFill{blockAddr: m.blockAddr, code: m.fill.Fault}
		c.logger.V(1).Info("fill fault", "line", m.blockAddr, "code", m.fill.Fault.String())
		return
	}

	copy(c.lines[c.blockIndex(victim)], m.fill.Data)
	victim.Tag = uint64(m.blockAddr)
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	c.stats.Fills++
	c.filled = m.blockAddr
	c.hasFilled = true
}

// accessUncached performs a single-word bus access. A new access waits for
// any outstanding bus work of this cache to finish.
func (c *Cache) accessUncached(kind bus.Kind, addr, data uint32, mask uint8) AccessResult {
	if u := c.uncached; u != nil {
		if !u.t.Done {
			return AccessResult{}
		}
		c.uncached = nil
		if u.matches(kind, addr, data, mask) {
			return c.completeUncached(u)
		}
	}

	if c.miss != nil || c.port.Busy() {
		return AccessResult{}
	}

	u := &uncachedAccess{kind: kind, addr: addr, data: data, mask: mask}
	if kind == bus.Read {
		u.t = bus.NewRead(addr, 1, mask)
	} else {
		u.t = bus.NewWrite(addr, []uint32{data}, mask)
	}
	c.port.Submit(u.t)
	c.uncached = u

	return AccessResult{}
}

func (c *Cache) completeUncached(u *uncachedAccess) AccessResult {
	c.stats.Uncached++
	if u.kind == bus.Read {
		c.stats.Reads++
	} else {
		c.stats.Writes++
	}

	result := AccessResult{Done: true, Fault: u.t.Fault}
	if u.kind == bus.Read && !u.t.Faulted() {
		result.Data = u.t.Data[0]
	}
	return result
}
