package loader_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	writeProgram := func(name string, prog *loader.Program) string {
		path := filepath.Join(tempDir, name)
		var buf bytes.Buffer
		Expect(prog.WriteELF(&buf)).To(Succeed())
		Expect(os.WriteFile(path, buf.Bytes(), 0644)).To(Succeed())
		return path
	}

	code := []byte{
		0x93, 0x02, 0xa0, 0x02, // addi t0, zero, 42
		0x73, 0x00, 0x00, 0x00, // ecall
	}

	Describe("Load", func() {
		for _, isa := range []insts.ISA{insts.RISCV, insts.MIPS} {
			isa := isa

			Context("with a valid "+isa.String()+" ELF binary", func() {
				var path string

				BeforeEach(func() {
					path = writeProgram("test.elf", &loader.Program{
						ISA:   isa,
						Entry: 0x100004,
						Segments: []loader.Segment{{
							Addr: 0x100000, Data: code, MemSize: uint32(len(code)),
							Flags: loader.SegmentFlagRead | loader.SegmentFlagExecute,
						}},
					})
				})

				It("should detect the ISA from the machine type", func() {
					prog, err := loader.Load(path)
					Expect(err).NotTo(HaveOccurred())
					Expect(prog.ISA).To(Equal(isa))
				})

				It("should extract the correct entry point", func() {
					prog, err := loader.Load(path)
					Expect(err).NotTo(HaveOccurred())
					Expect(prog.Entry).To(Equal(uint32(0x100004)))
				})

				It("should correctly load segment contents and permissions", func() {
					prog, err := loader.Load(path)
					Expect(err).NotTo(HaveOccurred())
					Expect(prog.Segments).To(HaveLen(1))

					seg := prog.Segments[0]
					Expect(seg.Addr).To(Equal(uint32(0x100000)))
					Expect(seg.Data).To(Equal(code))
					Expect(seg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())
					Expect(seg.Flags & loader.SegmentFlagWrite).To(BeZero())
					Expect(seg.End()).To(Equal(uint64(0x100008)))
				})
			})
		}

		Context("with several segments", func() {
			It("should load every PT_LOAD segment", func() {
				data := []byte{0x01, 0x02, 0x03}
				path := writeProgram("multi.elf", &loader.Program{
					ISA:   insts.RISCV,
					Entry: 0x100000,
					Segments: []loader.Segment{
						{Addr: 0x100000, Data: code, MemSize: uint32(len(code)),
							Flags: loader.SegmentFlagRead | loader.SegmentFlagExecute},
						{Addr: 0x110000, Data: data, MemSize: 1024,
							Flags: loader.SegmentFlagRead | loader.SegmentFlagWrite},
						{Addr: 0x120000, MemSize: 4096, Flags: loader.SegmentFlagRead},
					},
				})

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(3))
				Expect(prog.Segments[1].Data).To(Equal(data))
				Expect(prog.Segments[1].MemSize).To(Equal(uint32(1024)))
				Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
				Expect(prog.Segments[2].Data).To(BeEmpty())
				Expect(prog.Size()).To(Equal(uint64(len(code) + 1024 + 4096)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				path := filepath.Join(tempDir, "not-elf.bin")
				Expect(os.WriteFile(path, []byte("not an elf file"), 0644)).To(Succeed())

				_, err := loader.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				path := filepath.Join(tempDir, "empty.elf")
				Expect(os.WriteFile(path, []byte{}, 0644)).To(Succeed())

				_, err := loader.Load(path)
				Expect(err).To(HaveOccurred())
			})

			It("should reject other machines", func() {
				path := filepath.Join(tempDir, "x86.elf")
				writeHeader(path, 1, 1, 3)

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("unsupported ELF machine")))
			})

			It("should reject 64-bit files", func() {
				path := filepath.Join(tempDir, "elf64.elf")
				writeHeader(path, 2, 1, 243)

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("not a 32-bit")))
			})

			It("should reject segments larger than the file", func() {
				image := elfImage(code)
				patchFirstSegment(image, 0x7FFFFFF0, 0x7FFFFFF0)

				_, err := loader.LoadReader(bytes.NewReader(image))
				Expect(err).To(MatchError(ContainSubstring("short read")))
			})

			It("should reject segments past the 32-bit address space", func() {
				image := elfImage(code)
				patchFirstSegment(image, uint32(len(code)), 0xFFFFFFF0)

				_, err := loader.LoadReader(bytes.NewReader(image))
				Expect(err).To(MatchError(ContainSubstring("32-bit address space")))
			})

			It("should reject big-endian files", func() {
				path := filepath.Join(tempDir, "mipsbe.elf")
				writeHeader(path, 1, 2, 8)

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("little-endian")))
			})
		})
	})

	Describe("LoadReader", func() {
		It("should parse an in-memory image", func() {
			var buf bytes.Buffer
			Expect((&loader.Program{ISA: insts.MIPS, Entry: 0x2000}).WriteELF(&buf)).To(Succeed())

			prog, err := loader.LoadReader(bytes.NewReader(buf.Bytes()))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.ISA).To(Equal(insts.MIPS))
			Expect(prog.Segments).To(BeEmpty())
		})
	})

	Describe("LoadRaw", func() {
		It("should place the image at the base address", func() {
			path := filepath.Join(tempDir, "image.bin")
			Expect(os.WriteFile(path, code, 0644)).To(Succeed())

			prog, err := loader.LoadRaw(path, insts.RISCV, 0x100000)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x100000)))
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Data).To(Equal(code))
		})

		It("should reject empty images", func() {
			path := filepath.Join(tempDir, "empty.bin")
			Expect(os.WriteFile(path, nil, 0644)).To(Succeed())

			_, err := loader.LoadRaw(path, insts.RISCV, 0)
			Expect(err).To(MatchError(ContainSubstring("empty")))
		})
	})

	Describe("FromAssembly", func() {
		It("should keep the assembled bytes and base", func() {
			p := insts.NewProgram(insts.MIPS, 0x100000)
			p.ExitImm(3)
			want, err := p.Bytes()
			Expect(err).NotTo(HaveOccurred())

			prog, err := loader.FromAssembly(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.ISA).To(Equal(insts.MIPS))
			Expect(prog.Entry).To(Equal(uint32(0x100000)))
			Expect(prog.Segments[0].Data).To(Equal(want))
		})

		It("should report unresolved labels", func() {
			p := insts.NewProgram(insts.RISCV, 0x100000)
			p.J("nowhere")

			_, err := loader.FromAssembly(p)
			Expect(err).To(MatchError(ContainSubstring("failed to assemble")))
		})
	})
})

// elfImage assembles a one-segment RISC-V executable at 0x100000.
func elfImage(code []byte) []byte {
	var buf bytes.Buffer
	Expect((&loader.Program{
		ISA:   insts.RISCV,
		Entry: 0x100000,
		Segments: []loader.Segment{{
			Addr: 0x100000, Data: code, MemSize: uint32(len(code)),
			Flags: loader.SegmentFlagRead | loader.SegmentFlagExecute,
		}},
	}).WriteELF(&buf)).To(Succeed())
	return buf.Bytes()
}

// patchFirstSegment overwrites p_filesz and p_memsz of the first program
// header.
func patchFirstSegment(image []byte, filesz, memsz uint32) {
	phoff := binary.LittleEndian.Uint32(image[28:32])
	binary.LittleEndian.PutUint32(image[phoff+16:], filesz)
	binary.LittleEndian.PutUint32(image[phoff+20:], memsz)
}

// writeHeader writes a bare ELF identification and header with the given
// class (1 = 32-bit, 2 = 64-bit), data encoding (1 = LE, 2 = BE) and machine.
func writeHeader(path string, class, data byte, machine uint16) {
	size := 52
	if class == 2 {
		size = 64
	}
	hdr := make([]byte, size)
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = class
	hdr[5] = data
	hdr[6] = 1

	var order binary.ByteOrder = binary.LittleEndian
	if data == 2 {
		order = binary.BigEndian
	}
	order.PutUint16(hdr[16:18], 2)
	order.PutUint16(hdr[18:20], machine)
	order.PutUint32(hdr[20:24], 1)
	if class == 2 {
		order.PutUint16(hdr[52:54], 64)
		order.PutUint16(hdr[54:56], 56)
	} else {
		order.PutUint16(hdr[40:42], 52)
		order.PutUint16(hdr[42:44], 32)
	}

	Expect(os.WriteFile(path, hdr, 0644)).To(Succeed())
}
