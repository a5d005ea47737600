package bus

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/sarchlab/softcore/faults"
)

// Target is a device behind a window. Offsets are word aligned and relative
// to the window base.
type Target interface {
	ReadWord(offset uint32, mask uint8) uint32
	WriteWord(offset uint32, data uint32, mask uint8)

	// Latency is the number of cycles a transaction of the given length
	// holds the bus.
	Latency(words int) uint64
}

// Debugger is implemented by targets that allow side-effect free access
// outside of bus timing, for program loading and inspection.
type Debugger interface {
	Peek(offset uint32) uint32
	Poke(offset uint32, data uint32, mask uint8)
}

// Window is a contiguous range of the address space served by one target.
type Window struct {
	Name      string
	Base      uint32
	Size      uint32
	Target    Target
	Cacheable bool
	Burst     bool
}

// Contains reports whether addr falls inside the window.
func (w *Window) Contains(addr uint32) bool {
	return addr >= w.Base && uint64(addr) < uint64(w.Base)+uint64(w.Size)
}

// End returns the first address after the window.
func (w *Window) End() uint64 {
	return uint64(w.Base) + uint64(w.Size)
}

// AddressMap partitions the 32-bit address space into disjoint windows.
// Addresses outside every window decode to nothing and fault on the bus.
type AddressMap struct {
	windows []*Window
}

// NewAddressMap creates an empty address map.
func NewAddressMap() *AddressMap {
	return &AddressMap{}
}

// Add inserts a window. It fails if the window is malformed or overlaps a
// window already in the map.
func (m *AddressMap) Add(w *Window) error {
	switch {
	case w.Target == nil:
		return errors.Errorf("window %q has no target", w.Name)
	case w.Size == 0:
		return errors.Errorf("window %q is empty", w.Name)
	case w.Base&3 != 0 || w.Size&3 != 0:
		return errors.Errorf("window %q at %08x+%x is not word aligned", w.Name, w.Base, w.Size)
	case w.End() > 1<<32:
		return errors.Errorf("window %q at %08x+%x wraps the address space", w.Name, w.Base, w.Size)
	}

	for _, other := range m.windows {
		if uint64(w.Base) < other.End() && uint64(other.Base) < w.End() {
			return errors.Errorf("window %q overlaps %q", w.Name, other.Name)
		}
	}

	m.windows = append(m.windows, w)
	sort.Slice(m.windows, func(i, j int) bool {
		return m.windows[i].Base < m.windows[j].Base
	})

	return nil
}

// Windows returns the windows ordered by base address.
func (m *AddressMap) Windows() []*Window {
	return m.windows
}

// Window returns the window with the given name.
func (m *AddressMap) Window(name string) (*Window, bool) {
	for _, w := range m.windows {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}

// Decode returns the window containing addr.
func (m *AddressMap) Decode(addr uint32) (*Window, bool) {
	i := sort.Search(len(m.windows), func(i int) bool {
		return m.windows[i].End() > uint64(addr)
	})
	if i < len(m.windows) && m.windows[i].Contains(addr) {
		return m.windows[i], true
	}
	return nil, false
}

// Check returns BusOK if addr decodes to a window and BusOutOfRange
// otherwise.
func (m *AddressMap) Check(addr uint32) faults.BusCode {
	if _, ok := m.Decode(addr); !ok {
		return faults.BusOutOfRange
	}
	return faults.BusOK
}

// Cacheable reports whether addr lies in a cacheable window.
func (m *AddressMap) Cacheable(addr uint32) bool {
	w, ok := m.Decode(addr)
	return ok && w.Cacheable
}

// Validate checks a transaction against the map and returns the bus fault
// it would raise, or BusOK.
func (m *AddressMap) Validate(t *Transaction) faults.BusCode {
	if t.Addr&3 != 0 {
		return faults.BusUnaligned
	}

	w, ok := m.Decode(t.Addr)
	if !ok {
		return faults.BusOutOfRange
	}
	if t.Words < 1 || uint64(t.Addr)+4*uint64(t.Words) > w.End() {
		return faults.BusOutOfRange
	}

	if t.Mask == 0 || t.Mask&^FullMask != 0 {
		return faults.BusIllegalMask
	}
	if t.IsBurst() && t.Mask != FullMask {
		return faults.BusIllegalMask
	}
	if t.Kind == Write && len(t.Data) != t.Words {
		return faults.BusIllegalMask
	}

	if t.IsBurst() && !w.Burst {
		return faults.BusIllegalBurst
	}

	t.window = w
	return faults.BusOK
}

// Peek reads a word without bus timing or side effects.
func (m *AddressMap) Peek(addr uint32) (uint32, error) {
	w, dbg, err := m.debugger(addr)
	if err != nil {
		return 0, err
	}
	return dbg.Peek(addr - w.Base), nil
}

// Poke writes the masked lanes of a word without bus timing.
func (m *AddressMap) Poke(addr uint32, data uint32, mask uint8) error {
	w, dbg, err := m.debugger(addr)
	if err != nil {
		return err
	}
	dbg.Poke(addr-w.Base, data, mask)
	return nil
}

// LoadBytes copies data into memory at addr through the debug path.
func (m *AddressMap) LoadBytes(addr uint32, data []byte) error {
	for i := 0; i < len(data); {
		a := addr + uint32(i)
		lane := a & 3

		var word uint32
		var mask uint8
		for ; lane < 4 && i < len(data); lane++ {
			word |= uint32(data[i]) << (8 * lane)
			mask |= 1 << lane
			i++
		}

		if err := m.Poke(a&^3, word, mask); err != nil {
			return errors.Wrapf(err, "load at %08x", a)
		}
	}
	return nil
}

// ReadBytes copies n bytes starting at addr out through the debug path.
func (m *AddressMap) ReadBytes(addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		a := addr + uint32(i)
		word, err := m.Peek(a &^ 3)
		if err != nil {
			return nil, errors.Wrapf(err, "read at %08x", a)
		}
		out[i] = byte(word >> (8 * (a & 3)))
	}
	return out, nil
}

func (m *AddressMap) debugger(addr uint32) (*Window, Debugger, error) {
	w, ok := m.Decode(addr)
	if !ok {
		return nil, nil, errors.Errorf("address %08x is not mapped", addr)
	}
	dbg, ok := w.Target.(Debugger)
	if !ok {
		return nil, nil, errors.Errorf("window %q has no debug access", w.Name)
	}
	return w, dbg, nil
}
