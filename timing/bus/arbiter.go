package bus

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/faults"
)

// Priority orders the masters competing for the bus. Lower values win.
type Priority uint8

// Master priorities.
const (
	PriorityData Priority = iota
	PriorityInstruction
	PriorityPeripheral
)

func (p Priority) String() string {
	switch p {
	case PriorityData:
		return "data"
	case PriorityInstruction:
		return "instruction"
	default:
		return "peripheral"
	}
}

// Port connects one master to the arbiter. A port carries at most one
// outstanding transaction.
type Port struct {
	name     string
	priority Priority

	outstanding *Transaction
	granted     bool
}

// Name returns the requester name stamped on the port's transactions.
func (p *Port) Name() string {
	return p.name
}

// Priority returns the port's arbitration priority.
func (p *Port) Priority() Priority {
	return p.priority
}

// Busy reports whether the port has a transaction that has not completed.
func (p *Port) Busy() bool {
	return p.outstanding != nil
}

// Outstanding returns the in-flight transaction, if any.
func (p *Port) Outstanding() *Transaction {
	return p.outstanding
}

// Submit queues t for arbitration. It returns false if the port already has
// an outstanding transaction.
func (p *Port) Submit(t *Transaction) bool {
	if p.outstanding != nil {
		return false
	}
	t.Requester = p.name
	t.Done = false
	t.Fault = faults.BusOK
	p.outstanding = t
	p.granted = false
	return true
}

// Grant records one arbitration decision.
type Grant struct {
	Cycle       uint64
	Transaction *Transaction
}

// Stats holds bus statistics.
type Stats struct {
	Cycles     uint64
	BusyCycles uint64
	Grants     uint64
	Completed  uint64
	Faults     uint64

	GrantsByRequester map[string]uint64
}

// Utilization returns the fraction of cycles the bus was occupied.
func (s Stats) Utilization() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.BusyCycles) / float64(s.Cycles)
}

// ArbiterOption configures an Arbiter.
type ArbiterOption func(*Arbiter)

// WithLogger sets the logger used for bus faults.
func WithLogger(logger logr.Logger) ArbiterOption {
	return func(a *Arbiter) {
		a.logger = logger
	}
}

// Arbiter owns the shared bus. Every Tick it first advances the transaction
// holding the bus and then grants at most one pending request. A granted
// transaction takes effect on its target all at once when its latency has
// elapsed.
type Arbiter struct {
	addrMap *AddressMap
	ports   []*Port
	logger  logr.Logger

	active     *Transaction
	activePort *Port

	// rrNext is the index into peripherals of the next peripheral to be
	// favored.
	peripherals []*Port
	rrNext      int

	cycle     uint64
	lastGrant Grant
	grantedAt uint64
	stats     Stats
}

// NewArbiter creates an arbiter serving the given address map.
func NewArbiter(addrMap *AddressMap, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		addrMap: addrMap,
		logger:  logr.Discard(),
		stats:   Stats{GrantsByRequester: make(map[string]uint64)},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddressMap returns the map the arbiter decodes against.
func (a *Arbiter) AddressMap() *AddressMap {
	return a.addrMap
}

// NewPort creates a port for a master.
func (a *Arbiter) NewPort(name string, priority Priority) *Port {
	p := &Port{name: name, priority: priority}
	a.ports = append(a.ports, p)
	if priority == PriorityPeripheral {
		a.peripherals = append(a.peripherals, p)
	}
	return p
}

// Busy reports whether a transaction currently holds the bus.
func (a *Arbiter) Busy() bool {
	return a.active != nil
}

// Cycle returns the number of ticks so far.
func (a *Arbiter) Cycle() uint64 {
	return a.cycle
}

// LastGrant returns the most recent grant.
func (a *Arbiter) LastGrant() Grant {
	return a.lastGrant
}

// GrantedThisCycle reports whether the last Tick issued a grant.
func (a *Arbiter) GrantedThisCycle() bool {
	return a.lastGrant.Transaction != nil && a.grantedAt == a.cycle
}

// Stats returns a copy of the bus statistics.
func (a *Arbiter) Stats() Stats {
	s := a.stats
	s.GrantsByRequester = make(map[string]uint64, len(a.stats.GrantsByRequester))
	for k, v := range a.stats.GrantsByRequester {
		s.GrantsByRequester[k] = v
	}
	return s
}

// Tick advances the bus by one cycle.
func (a *Arbiter) Tick() {
	a.cycle++
	a.stats.Cycles++

	if a.active != nil {
		a.stats.BusyCycles++
		a.active.remaining--
		if a.active.remaining == 0 {
			a.complete()
		}
	}

	if a.active != nil {
		return
	}

	port := a.pick()
	if port == nil {
		return
	}
	a.grant(port)
}

func (a *Arbiter) pick() *Port {
	for _, prio := range []Priority{PriorityData, PriorityInstruction} {
		for _, p := range a.ports {
			if p.priority == prio && p.waiting() {
				return p
			}
		}
	}

	n := len(a.peripherals)
	for i := 0; i < n; i++ {
		idx := (a.rrNext + i) % n
		if p := a.peripherals[idx]; p.waiting() {
			a.rrNext = (idx + 1) % n
			return p
		}
	}

	return nil
}

func (p *Port) waiting() bool {
	return p.outstanding != nil && !p.granted
}

func (a *Arbiter) grant(p *Port) {
	t := p.outstanding
	p.granted = true

	a.stats.Grants++
	a.stats.GrantsByRequester[p.name]++
	a.lastGrant = Grant{Cycle: a.cycle, Transaction: t}
	a.grantedAt = a.cycle

	if code := a.addrMap.Validate(t); code != faults.BusOK {
		a.stats.Faults++
		a.logger.V(1).Info("bus fault", "requester", p.name,
			"addr", t.Addr, "kind", t.Kind.String(), "code", code.String())
		t.Fault = code
		a.finish(p, t)
		return
	}

	t.remaining = t.window.Target.Latency(t.Words)
	if t.remaining == 0 {
		t.remaining = 1
	}
	a.active = t
	a.activePort = p
}

func (a *Arbiter) complete() {
	t := a.active
	target := t.window.Target
	offset := t.Addr - t.window.Base

	switch t.Kind {
	case Read:
		t.Data = make([]uint32, t.Words)
		for i := range t.Data {
			t.Data[i] = target.ReadWord(offset+uint32(i)*4, t.Mask)
		}
	case Write:
		for i, d := range t.Data {
			target.WriteWord(offset+uint32(i)*4, d, t.Mask)
		}
	}

	a.stats.Completed++
	a.finish(a.activePort, t)
	a.active = nil
	a.activePort = nil
}

func (a *Arbiter) finish(p *Port, t *Transaction) {
	t.Done = true
	p.outstanding = nil
	p.granted = false
}
