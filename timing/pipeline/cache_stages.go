package pipeline

import (
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
	"github.com/sarchlab/softcore/timing/cache"
)

// FetchStage reads instruction words through the instruction cache.
type FetchStage struct {
	memory InstructionMemory
}

// NewFetchStage creates a fetch stage reading from memory.
func NewFetchStage(memory InstructionMemory) *FetchStage {
	return &FetchStage{memory: memory}
}

// FetchResult is the outcome of one fetch attempt.
type FetchResult struct {
	// Done is false while the cache is still servicing a miss.
	Done  bool
	Word  uint32
	Fault *faults.Fault
}

// Fetch attempts to read the instruction at pc.
func (s *FetchStage) Fetch(pc uint32) FetchResult {
	if !emu.Aligned(pc, 4) {
		return FetchResult{Done: true, Fault: faults.NewMisaligned(pc, pc)}
	}

	res := s.memory.Read(pc, bus.FullMask)
	if !res.Done {
		return FetchResult{}
	}
	if res.Fault != faults.BusOK {
		return FetchResult{Done: true, Fault: faults.NewBusFault(pc, pc, res.Fault)}
	}
	return FetchResult{Done: true, Word: res.Data}
}

// MemoryStage performs the data access of loads and stores through the data
// cache. Sub-word accesses become a word access with a byte mask.
type MemoryStage struct {
	memory DataMemory
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(memory DataMemory) *MemoryStage {
	return &MemoryStage{memory: memory}
}

// MemoryResult holds the result of the memory stage.
type MemoryResult struct {
	// Done is false while the data cache is busy.
	Done    bool
	MemData uint64
	Fault   *faults.Fault
}

// Access performs the memory read or write of the instruction in EX/MEM.
func (s *MemoryStage) Access(exmem *EXMEMRegister) MemoryResult {
	if !exmem.Valid || (!exmem.MemRead && !exmem.MemWrite) {
		return MemoryResult{Done: true}
	}

	inst := exmem.Inst
	addr := uint32(exmem.ALUResult)

	var res cache.AccessResult
	if exmem.MemRead {
		_, mask := emu.StoreLanes(addr, inst.Size, 0)
		res = s.memory.Read(emu.WordAddr(addr), mask)
	} else {
		word, mask := emu.StoreLanes(addr, inst.Size, uint32(exmem.StoreValue))
		res = s.memory.Write(emu.WordAddr(addr), word, mask)
	}

	if !res.Done {
		return MemoryResult{}
	}
	if res.Fault != faults.BusOK {
		return MemoryResult{Done: true, Fault: faults.NewBusFault(exmem.PC, addr, res.Fault)}
	}

	result := MemoryResult{Done: true}
	if exmem.MemRead {
		result.MemData = uint64(emu.ExtractLoad(res.Data, addr, inst.Size, inst.Signed))
	}
	return result
}

// FlatMemory is a memory that answers every access in the cycle it is made.
// It lets the pipeline run without caches or a bus, for example to measure
// the pipeline's own CPI.
type FlatMemory struct {
	memory *emu.Memory
	check  emu.AddressCheck
}

// NewFlatMemory wraps memory. check may be nil, in which case every address
// is valid.
func NewFlatMemory(memory *emu.Memory, check emu.AddressCheck) *FlatMemory {
	return &FlatMemory{memory: memory, check: check}
}

// Tick does nothing; a flat memory has no outstanding work.
func (m *FlatMemory) Tick() {}

// Read returns the word at addr.
func (m *FlatMemory) Read(addr uint32, _ uint8) cache.AccessResult {
	if code := m.validate(addr); code != faults.BusOK {
		return cache.AccessResult{Done: true, Fault: code}
	}
	return cache.AccessResult{Done: true, Hit: true, Data: m.memory.Read32(addr &^ 3)}
}

// Write merges the masked lanes of data into the word at addr.
func (m *FlatMemory) Write(addr uint32, data uint32, mask uint8) cache.AccessResult {
	if code := m.validate(addr); code != faults.BusOK {
		return cache.AccessResult{Done: true, Fault: code}
	}
	m.memory.WriteMasked(addr&^3, data, mask)
	return cache.AccessResult{Done: true, Hit: true}
}

func (m *FlatMemory) validate(addr uint32) faults.BusCode {
	if m.check == nil {
		return faults.BusOK
	}
	return m.check(addr)
}
