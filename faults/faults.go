// Package faults describes the precise exceptions raised by the core and
// keeps a counted log of them.
package faults

import (
	"fmt"
	"io"
)

// Category classifies a fault.
type Category int

// List of fault categories.
const (
	// IllegalInstruction is raised when decode finds an undefined opcode.
	IllegalInstruction Category = iota + 1
	// MisalignedAccess is raised when a load, store or fetch address is not
	// naturally aligned for its access size.
	MisalignedAccess
	// BusFault is raised when the bus rejects a transaction.
	BusFault
)

func (c Category) String() string {
	switch c {
	case IllegalInstruction:
		return "illegal instruction"
	case MisalignedAccess:
		return "misaligned access"
	case BusFault:
		return "bus fault"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// BusCode is the fault code reported by the bus for a rejected transaction.
// The numeric values are the ones the host bridges report in their status
// bytes.
type BusCode uint8

// List of bus fault codes.
const (
	BusOK BusCode = iota
	BusUnaligned
	BusOutOfRange
	BusIllegalMask
	BusIllegalBurst
)

func (b BusCode) String() string {
	switch b {
	case BusOK:
		return "ok"
	case BusUnaligned:
		return "unaligned access"
	case BusOutOfRange:
		return "address out of range"
	case BusIllegalMask:
		return "illegal write mask"
	case BusIllegalBurst:
		return "illegal address for burst"
	default:
		return fmt.Sprintf("bus code %d", uint8(b))
	}
}

// Fault is the descriptor handed to the embedding system when an
// instruction aborts.
type Fault struct {
	Category Category

	// PC of the faulting instruction.
	PC uint32

	// Addr is the data address of a misaligned access or bus fault. For
	// fetch faults it equals PC.
	Addr uint32

	// Word is the raw instruction word for illegal instructions.
	Word uint32

	// Bus is set for BusFault only.
	Bus BusCode
}

// NewIllegalInstruction creates an IllegalInstruction fault.
func NewIllegalInstruction(pc, word uint32) *Fault {
	return &Fault{Category: IllegalInstruction, PC: pc, Addr: pc, Word: word}
}

// NewMisaligned creates a MisalignedAccess fault.
func NewMisaligned(pc, addr uint32) *Fault {
	return &Fault{Category: MisalignedAccess, PC: pc, Addr: addr}
}

// NewBusFault creates a BusFault fault.
func NewBusFault(pc, addr uint32, code BusCode) *Fault {
	return &Fault{Category: BusFault, PC: pc, Addr: addr, Bus: code}
}

func (f *Fault) Error() string {
	switch f.Category {
	case IllegalInstruction:
		return fmt.Sprintf("%s: word %08x (PC: %08x)", f.Category, f.Word, f.PC)
	case BusFault:
		return fmt.Sprintf("%s: %s at %08x (PC: %08x)", f.Category, f.Bus, f.Addr, f.PC)
	default:
		return fmt.Sprintf("%s: %08x (PC: %08x)", f.Category, f.Addr, f.PC)
	}
}

// Entry is a single entry in the fault log.
type Entry struct {
	Fault Fault

	// number of times this fault has been seen at the same PC and address
	Count int

	// cycles of the first and the most recent occurrence
	FirstCycle uint64
	LastCycle  uint64
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (x%d, first cycle %d)", e.Fault.Error(), e.Count, e.FirstCycle)
}

type entryKey struct {
	category Category
	pc       uint32
	addr     uint32
}

// Log records faults in the order they first appear. Repeated faults from
// the same instruction and address bump the count of the existing entry.
type Log struct {
	entries map[entryKey]*Entry
	order   []*Entry

	// Total counts every recorded fault including repeats.
	Total int
}

// NewLog creates an empty fault log.
func NewLog() *Log {
	return &Log{entries: make(map[entryKey]*Entry)}
}

// Record adds a fault to the log and returns its entry.
func (l *Log) Record(f *Fault, cycle uint64) *Entry {
	key := entryKey{category: f.Category, pc: f.PC, addr: f.Addr}

	e, found := l.entries[key]
	if !found {
		e = &Entry{Fault: *f, FirstCycle: cycle}
		l.entries[key] = e
		l.order = append(l.order, e)
	}

	e.Count++
	e.LastCycle = cycle
	l.Total++

	return e
}

// Entries returns a copy of the log in order of first appearance.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.order))
	for i, e := range l.order {
		out[i] = *e
	}
	return out
}

// Len returns the number of distinct entries.
func (l *Log) Len() int {
	return len(l.order)
}

// Clear removes all entries.
func (l *Log) Clear() {
	clear(l.entries)
	l.order = l.order[:0]
	l.Total = 0
}

// WriteLog writes one line per entry.
func (l *Log) WriteLog(w io.Writer) {
	for _, e := range l.order {
		fmt.Fprintln(w, e.String())
	}
}
