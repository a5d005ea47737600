// Package loader provides program loading for the two supported ISAs: 32-bit
// little-endian ELF executables, raw binary images and programs assembled
// in memory.
package loader

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"

	"github.com/sarchlab/softcore/insts"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment.
type Segment struct {
	// Addr is the address where this segment should be loaded.
	Addr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// End returns the first address after the segment.
func (s *Segment) End() uint64 {
	return uint64(s.Addr) + uint64(s.MemSize)
}

// Program represents a loaded program ready for execution.
type Program struct {
	ISA insts.ISA
	// Entry is the address where execution should begin.
	Entry uint32
	// Segments contains all loadable segments.
	Segments []Segment
}

// Size returns the total memory size of all segments.
func (p *Program) Size() uint64 {
	var total uint64
	for _, seg := range p.Segments {
		total += uint64(seg.MemSize)
	}
	return total
}

func machineISA(m elf.Machine) (insts.ISA, bool) {
	switch m {
	case elf.EM_RISCV:
		return insts.RISCV, true
	case elf.EM_MIPS, elf.EM_MIPS_RS3_LE:
		return insts.MIPS, true
	}
	return 0, false
}

// Load parses a 32-bit little-endian RISC-V or MIPS ELF executable.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ELF file")
	}
	defer func() { _ = f.Close() }()

	return fromELF(f)
}

// LoadReader parses an ELF executable from r.
func LoadReader(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ELF file")
	}
	return fromELF(f)
}

func fromELF(f *elf.File) (*Program, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, errors.Errorf("not a 32-bit ELF file (class: %v)", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, errors.Errorf("not a little-endian ELF file")
	}

	isa, ok := machineISA(f.Machine)
	if !ok {
		return nil, errors.Errorf("unsupported ELF machine type: %v", f.Machine)
	}

	prog := &Program{
		ISA:   isa,
		Entry: uint32(f.Entry),
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}
		if phdr.Filesz > phdr.Memsz {
			return nil, errors.Errorf("segment at 0x%x has file size %d > memory size %d",
				phdr.Vaddr, phdr.Filesz, phdr.Memsz)
		}

		if phdr.Vaddr+phdr.Memsz > 1<<32 {
			return nil, errors.Errorf("segment at 0x%x with memory size %d extends past the 32-bit address space",
				phdr.Vaddr, phdr.Memsz)
		}

		// Grows with what the file holds, not with what the header claims.
		data, err := io.ReadAll(phdr.Open())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read segment at 0x%x", phdr.Vaddr)
		}
		if uint64(len(data)) != phdr.Filesz {
			return nil, errors.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Vaddr, len(data), phdr.Filesz)
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			Addr:    uint32(phdr.Vaddr),
			Data:    data,
			MemSize: uint32(phdr.Memsz),
			Flags:   flags,
		})
	}

	return prog, nil
}
