// Package bus models the shared system bus: an address map of disjoint
// windows, the targets behind them and the arbiter that serializes every
// master's transactions onto the bus one grant per cycle.
package bus

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/softcore/faults"
)

// Kind is the direction of a transaction.
type Kind uint8

// Transaction kinds.
const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// FullMask enables all four byte lanes of a word.
const FullMask uint8 = 0xF

// Transaction is a single- or multi-word bus access. The requester keeps a
// pointer to it and polls Done; the arbiter fills in Data (for reads) and
// Fault when the transaction completes.
type Transaction struct {
	ID        string
	Requester string
	Kind      Kind
	Addr      uint32
	Words     int
	Mask      uint8

	// Data carries the write data in and the read data out.
	Data []uint32

	Done  bool
	Fault faults.BusCode

	window    *Window
	remaining uint64
}

// NewRead creates a read of words consecutive words starting at addr.
// Bursts must use FullMask.
func NewRead(addr uint32, words int, mask uint8) *Transaction {
	return &Transaction{
		ID:    sim.GetIDGenerator().Generate(),
		Kind:  Read,
		Addr:  addr,
		Words: words,
		Mask:  mask,
	}
}

// NewWrite creates a write of data starting at addr.
func NewWrite(addr uint32, data []uint32, mask uint8) *Transaction {
	return &Transaction{
		ID:    sim.GetIDGenerator().Generate(),
		Kind:  Write,
		Addr:  addr,
		Words: len(data),
		Mask:  mask,
		Data:  data,
	}
}

// IsBurst reports whether the transaction moves more than one word.
func (t *Transaction) IsBurst() bool {
	return t.Words > 1
}

// Faulted reports whether the transaction completed with a bus fault.
func (t *Transaction) Faulted() bool {
	return t.Done && t.Fault != faults.BusOK
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s %08x x%d mask %x", t.Requester, t.Kind, t.Addr, t.Words, t.Mask)
}
