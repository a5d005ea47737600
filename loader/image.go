package loader

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/sarchlab/softcore/insts"
)

// LoadRaw reads a raw binary image that is placed at base and entered at
// its first byte.
func LoadRaw(path string, isa insts.ISA, base uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read raw image")
	}
	if len(data) == 0 {
		return nil, errors.Errorf("raw image %s is empty", path)
	}

	return &Program{
		ISA:   isa,
		Entry: base,
		Segments: []Segment{{
			Addr:    base,
			Data:    data,
			MemSize: uint32(len(data)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

// FromAssembly turns an assembled program into a loadable one entered at
// its base address.
func FromAssembly(p *insts.Program) (*Program, error) {
	data, err := p.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble program")
	}

	return &Program{
		ISA:   p.ISA(),
		Entry: p.Base(),
		Segments: []Segment{{
			Addr:    p.Base(),
			Data:    data,
			MemSize: uint32(len(data)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

const (
	elf32HeaderSize  = 52
	elf32PhdrSize    = 32
	elfMachineMIPS   = 8
	elfMachineRISCV  = 243
	elfSegmentAlign  = 4
	elfProgramLoad   = 1
	elfTypeExec      = 2
	elfFlagExecute   = 1
	elfFlagWrite     = 2
	elfFlagRead      = 4
	elfSectionHdrLen = 40
)

// WriteELF writes the program as a 32-bit little-endian executable with one
// PT_LOAD header per segment and no section headers.
func (p *Program) WriteELF(w io.Writer) error {
	machine := uint16(elfMachineRISCV)
	if p.ISA == insts.MIPS {
		machine = elfMachineMIPS
	}

	le := binary.LittleEndian
	phnum := len(p.Segments)
	offset := uint32(elf32HeaderSize + phnum*elf32PhdrSize)

	hdr := make([]byte, elf32HeaderSize)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 1 // ELFCLASS32
	hdr[5] = 1 // ELFDATA2LSB
	hdr[6] = 1 // EV_CURRENT
	le.PutUint16(hdr[16:], elfTypeExec)
	le.PutUint16(hdr[18:], machine)
	le.PutUint32(hdr[20:], 1)
	le.PutUint32(hdr[24:], p.Entry)
	le.PutUint32(hdr[28:], elf32HeaderSize)
	le.PutUint16(hdr[40:], elf32HeaderSize)
	le.PutUint16(hdr[42:], elf32PhdrSize)
	le.PutUint16(hdr[44:], uint16(phnum))
	le.PutUint16(hdr[46:], elfSectionHdrLen)

	phdrs := make([]byte, phnum*elf32PhdrSize)
	var body []byte
	for i, seg := range p.Segments {
		for (offset+uint32(len(body)))%elfSegmentAlign != 0 {
			body = append(body, 0)
		}

		var flags uint32
		if seg.Flags&SegmentFlagExecute != 0 {
			flags |= elfFlagExecute
		}
		if seg.Flags&SegmentFlagWrite != 0 {
			flags |= elfFlagWrite
		}
		if seg.Flags&SegmentFlagRead != 0 {
			flags |= elfFlagRead
		}

		memSize := seg.MemSize
		if memSize < uint32(len(seg.Data)) {
			memSize = uint32(len(seg.Data))
		}

		ph := phdrs[i*elf32PhdrSize:]
		le.PutUint32(ph[0:], elfProgramLoad)
		le.PutUint32(ph[4:], offset+uint32(len(body)))
		le.PutUint32(ph[8:], seg.Addr)
		le.PutUint32(ph[12:], seg.Addr)
		le.PutUint32(ph[16:], uint32(len(seg.Data)))
		le.PutUint32(ph[20:], memSize)
		le.PutUint32(ph[24:], flags)
		le.PutUint32(ph[28:], elfSegmentAlign)

		body = append(body, seg.Data...)
	}

	for _, chunk := range [][]byte{hdr, phdrs, body} {
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrap(err, "failed to write ELF file")
		}
	}
	return nil
}
