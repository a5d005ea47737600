package pipeline

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
	"github.com/sarchlab/softcore/timing/latency"
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions completed (retired).
	Instructions uint64
	// Stalls is the number of cycles Fetch and Decode were held.
	Stalls uint64
	// LoadUseStalls is the number of bubbles inserted behind loads.
	LoadUseStalls uint64
	// ExecStalls is the number of stalls due to multi-cycle execution.
	ExecStalls uint64
	// MemStalls is the number of cycles the Memory stage waited on the
	// data cache.
	MemStalls uint64
	// FetchStalls is the number of cycles Fetch waited on the
	// instruction cache.
	FetchStalls uint64
	// Flushes is the number of pipeline flushes (mispredicted control
	// transfers and serializing environment calls).
	Flushes uint64
	// Forwards is the number of executed instructions that took at least
	// one operand from a pipeline register.
	Forwards uint64
	Syscalls uint64
	Faults   uint64
	// BranchPredictions is the total number of branch predictions made.
	BranchPredictions uint64
	// BranchCorrect is the number of correct branch predictions.
	BranchCorrect uint64
	// BranchMispredictions is the number of branch mispredictions.
	BranchMispredictions uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// RetireEvent describes one committed instruction.
type RetireEvent struct {
	Cycle uint64
	PC    uint32
	Inst  *insts.Instruction
}

// FaultHandler receives every fault. Returning resume=true restarts fetch
// at resumePC; otherwise the pipeline halts.
type FaultHandler func(f *faults.Fault) (resumePC uint32, resume bool)

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithISA selects the instruction set. The default is RISC-V.
func WithISA(isa insts.ISA) PipelineOption {
	return func(p *Pipeline) {
		p.isa = isa
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler emu.SyscallHandler) PipelineOption {
	return func(p *Pipeline) {
		p.syscallHandler = handler
	}
}

// WithLatencyTable sets a custom latency table for instruction timing.
// Multi-cycle operations hold the Execute stage for their latency.
func WithLatencyTable(table *latency.Table) PipelineOption {
	return func(p *Pipeline) {
		p.latencyTable = table
	}
}

// WithLogger sets the logger. V(0) reports halts and faults, V(2) every
// retired instruction.
func WithLogger(logger logr.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRetireHook registers a function called for every retired instruction
// in program order.
func WithRetireHook(hook func(RetireEvent)) PipelineOption {
	return func(p *Pipeline) {
		p.retireHook = hook
	}
}

// WithFaultHandler sets the handler faults are delivered to.
func WithFaultHandler(handler FaultHandler) PipelineOption {
	return func(p *Pipeline) {
		p.faultHandler = handler
	}
}

// Pipeline implements a 5-stage pipelined CPU model.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
type Pipeline struct {
	// Pipeline registers
	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	// Pipeline stages
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	hazardUnit      *HazardUnit
	branchPredictor *BranchPredictor

	isa            insts.ISA
	regFile        *emu.RegFile
	syscallHandler emu.SyscallHandler
	latencyTable   *latency.Table
	logger         logr.Logger
	retireHook     func(RetireEvent)
	faultHandler   FaultHandler

	// Program counter for fetch
	pc uint32

	// exLatency counts the remaining Execute cycles of a multi-cycle
	// instruction.
	exLatency uint64

	// fetchBlocked stops sequential fetch after a faulting fetch until the
	// next redirect.
	fetchBlocked bool

	// Statistics
	stats Statistics

	// Execution state
	halted   bool
	exitCode int64
	fault    *faults.Fault
}

// NewPipeline creates a new pipeline that fetches through imem and accesses
// data through dmem.
func NewPipeline(
	regFile *emu.RegFile,
	imem InstructionMemory,
	dmem DataMemory,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		regFile:         regFile,
		logger:          logr.Discard(),
		hazardUnit:      NewHazardUnit(),
		branchPredictor: NewBranchPredictor(),
		executeStage:    NewExecuteStage(),
		writebackStage:  NewWritebackStage(regFile),
		fetchStage:      NewFetchStage(imem),
		memoryStage:     NewMemoryStage(dmem),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.decodeStage = NewDecodeStage(insts.NewDecoder(p.isa))
	if p.syscallHandler == nil {
		p.syscallHandler = emu.NewDefaultSyscallHandler(p.isa, regFile)
	}
	if p.latencyTable == nil {
		p.latencyTable = latency.NewTable()
	}

	return p
}

// ISA returns the instruction set being executed.
func (p *Pipeline) ISA() insts.ISA {
	return p.isa
}

// PC returns the address of the next instruction to fetch.
func (p *Pipeline) PC() uint32 {
	return p.pc
}

// SetPC sets the fetch address.
func (p *Pipeline) SetPC(pc uint32) {
	p.pc = pc
	p.regFile.PC = pc
}

// GetIFID returns the IF/ID pipeline register.
func (p *Pipeline) GetIFID() *IFIDRegister {
	return &p.ifid
}

// GetIDEX returns the ID/EX pipeline register.
func (p *Pipeline) GetIDEX() *IDEXRegister {
	return &p.idex
}

// GetEXMEM returns the EX/MEM pipeline register.
func (p *Pipeline) GetEXMEM() *EXMEMRegister {
	return &p.exmem
}

// GetMEMWB returns the MEM/WB pipeline register.
func (p *Pipeline) GetMEMWB() *MEMWBRegister {
	return &p.memwb
}

// Stats returns the pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	s := p.stats
	bp := p.branchPredictor.Stats()
	s.BranchPredictions = bp.Predictions
	s.BranchCorrect = bp.Correct
	s.BranchMispredictions = bp.Mispredictions
	return s
}

// Halted returns true if the pipeline has halted.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// ExitCode returns the exit code if halted by an exit call.
func (p *Pipeline) ExitCode() int64 {
	return p.exitCode
}

// Fault returns the fault that halted the pipeline, if any.
func (p *Pipeline) Fault() *faults.Fault {
	return p.fault
}

// Drained reports whether no instruction is in flight.
func (p *Pipeline) Drained() bool {
	return !p.ifid.Valid && !p.idex.Valid && !p.exmem.Valid && !p.memwb.Valid
}

// Run ticks until the program exits or faults. A maxCycles of 0 means no
// limit. It is meant for pipelines whose memories need no other component
// to be ticked, such as FlatMemory.
func (p *Pipeline) Run(maxCycles uint64) (int64, error) {
	for !p.halted {
		if maxCycles > 0 && p.stats.Cycles >= maxCycles {
			return 0, fmt.Errorf("cycle limit %d reached at PC %08x", maxCycles, p.pc)
		}
		p.Tick()
	}

	if p.fault != nil {
		return 0, p.fault
	}
	return p.exitCode, nil
}

// RunCycles executes the pipeline for the specified number of cycles.
// Returns true if still running, false if halted.
func (p *Pipeline) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !p.halted; i++ {
		p.Tick()
	}
	return !p.halted
}

// Tick executes one pipeline cycle. Stages are evaluated from Writeback
// back to Fetch so that every stage sees the registers latched at the end
// of the previous cycle; the new values are latched at the end.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}

	p.stats.Cycles++
	p.fetchStage.memory.Tick()
	p.memoryStage.memory.Tick()

	forwarding := p.hazardUnit.DetectForwarding(&p.idex, &p.exmem, &p.memwb)
	loadUse := p.hazardUnit.DetectLoadUseHazard(&p.idex, p.decodeStage.Peek(&p.ifid))

	// Stage 5: Writeback
	if p.writebackStage.Writeback(&p.memwb) {
		p.retire(p.memwb.PC, p.memwb.Inst)
	}

	// Stage 4: Memory
	var nextMEMWB MEMWBRegister
	memStall := false
	serialize := false

	if p.exmem.Valid {
		if p.exmem.Fault != nil {
			p.raiseFault(p.exmem.Fault)
			return
		}

		if p.exmem.IsSystem {
			if p.handleSyscall() {
				return
			}
			serialize = true
		} else {
			res := p.memoryStage.Access(&p.exmem)
			if res.Fault != nil {
				p.raiseFault(res.Fault)
				return
			}
			memStall = !res.Done
			if res.Done {
				nextMEMWB.MemData = res.MemData
			}
		}

		if !memStall {
			nextMEMWB.Valid = true
			nextMEMWB.PC = p.exmem.PC
			nextMEMWB.Inst = p.exmem.Inst
			nextMEMWB.ALUResult = p.exmem.ALUResult
			nextMEMWB.Rd = p.exmem.Rd
			nextMEMWB.RegWrite = p.exmem.RegWrite
			nextMEMWB.MemToReg = p.exmem.MemToReg
		}
	}

	if serialize {
		// The call may have changed registers that younger instructions
		// already read; restart them.
		pc := p.exmem.PC + 4
		p.memwb = nextMEMWB
		p.flushYounger()
		p.pc = pc
		p.stats.Flushes++
		return
	}

	// Stage 3: Execute
	var exResult ExecuteResult
	execStall := false
	redirect := false

	if p.idex.Valid && !memStall {
		if p.idex.Fault == nil {
			if p.exLatency == 0 {
				p.exLatency = p.latencyTable.GetLatency(p.idex.Inst)
			}
			if p.exLatency > 1 {
				p.exLatency--
				execStall = true
			} else {
				p.exLatency = 0
			}
		}

		if !execStall {
			a := p.operand(p.idex.Rs1, forwarding.ForwardRs1)
			b := p.operand(p.idex.Rs2, forwarding.ForwardRs2)
			if forwarding.Any() {
				p.stats.Forwards++
			}

			exResult = p.executeStage.Execute(&p.idex, a, b)

			if p.idex.IsControl && p.idex.Fault == nil {
				redirect = p.branchPredictor.Update(p.idex.PC, exResult.Redirect)
			}
		}
	}

	stalls := p.hazardUnit.ComputeStalls(loadUse || execStall || memStall, redirect)

	// Stage 1: Fetch
	var nextIFID IFIDRegister
	if !stalls.StallIF && !stalls.FlushIF && !p.fetchBlocked {
		fetch := p.fetchStage.Fetch(p.pc)
		if !fetch.Done {
			p.stats.FetchStalls++
		} else {
			nextIFID = IFIDRegister{
				Valid:           true,
				PC:              p.pc,
				InstructionWord: fetch.Word,
				Fault:           fetch.Fault,
			}
			if fetch.Fault != nil {
				p.fetchBlocked = true
			}
			p.pc += 4
		}
	}

	// Stage 2: Decode
	var nextIDEX IDEXRegister
	if p.ifid.Valid && !stalls.StallID && !stalls.FlushID {
		nextIDEX = p.decodeStage.Decode(&p.ifid)
	}

	// Latch pipeline registers.
	if stalls.StallIF {
		p.stats.Stalls++
	}

	if memStall {
		p.memwb.Clear()
		p.stats.MemStalls++
		return
	}

	p.memwb = nextMEMWB

	if execStall {
		p.exmem.Clear()
		p.stats.ExecStalls++
		return
	}

	if p.idex.Valid {
		p.exmem = exResult.EXMEM
	} else {
		p.exmem.Clear()
	}

	switch {
	case loadUse:
		p.idex.Clear()
		p.stats.LoadUseStalls++
	case redirect:
		p.idex.Clear()
		p.ifid.Clear()
		p.pc = exResult.Target
		p.fetchBlocked = false
		p.stats.Flushes++
	default:
		p.idex = nextIDEX
		p.ifid = nextIFID
	}
}

// operand returns the value of a source register as seen by Execute.
// Writeback has already run this cycle, so the register file holds every
// result older than the pipeline registers.
func (p *Pipeline) operand(reg uint8, source ForwardSource) uint64 {
	if source == ForwardNone {
		return p.regFile.ReadReg(reg)
	}
	return p.hazardUnit.GetForwardedValue(source, 0, &p.exmem, &p.memwb)
}

// handleSyscall runs the environment call in EX/MEM. It returns true when
// the program exited.
func (p *Pipeline) handleSyscall() bool {
	p.stats.Syscalls++
	result := p.syscallHandler.Handle(p.exmem.Inst)
	if result.Unsupported {
		p.logger.V(1).Info("unsupported environment call",
			"pc", fmt.Sprintf("%08x", p.exmem.PC))
	}
	if !result.Exited {
		return false
	}

	p.retire(p.exmem.PC, p.exmem.Inst)
	p.flushAll()
	p.halted = true
	p.exitCode = result.ExitCode
	p.regFile.PC = p.exmem.PC + 4
	p.logger.Info("program exited", "code", result.ExitCode,
		"cycles", p.stats.Cycles, "instructions", p.stats.Instructions)
	return true
}

func (p *Pipeline) retire(pc uint32, inst *insts.Instruction) {
	p.stats.Instructions++
	p.regFile.PC = pc + 4

	if log := p.logger.V(2); log.Enabled() {
		log.Info("retire", "cycle", p.stats.Cycles,
			"pc", fmt.Sprintf("%08x", pc), "inst", inst.String())
	}
	if p.retireHook != nil {
		p.retireHook(RetireEvent{Cycle: p.stats.Cycles, PC: pc, Inst: inst})
	}
}

// raiseFault delivers a fault from the Memory stage. Older instructions
// have already committed; the faulting one and everything younger is
// discarded.
func (p *Pipeline) raiseFault(f *faults.Fault) {
	p.stats.Faults++
	p.flushAll()
	p.regFile.PC = f.PC

	p.logger.Info("fault", "kind", f.Category.String(),
		"pc", fmt.Sprintf("%08x", f.PC), "detail", f.Error())

	if p.faultHandler != nil {
		if pc, resume := p.faultHandler(f); resume {
			p.pc = pc
			return
		}
	}

	p.halted = true
	p.fault = f
}

func (p *Pipeline) flushYounger() {
	p.exmem.Clear()
	p.idex.Clear()
	p.ifid.Clear()
	p.exLatency = 0
	p.fetchBlocked = false
}

func (p *Pipeline) flushAll() {
	p.memwb.Clear()
	p.flushYounger()
}

// Reset clears the pipeline state and statistics. The register file and
// memories are left alone.
func (p *Pipeline) Reset() {
	p.flushAll()
	p.pc = 0
	p.stats = Statistics{}
	p.branchPredictor.Reset()
	p.halted = false
	p.exitCode = 0
	p.fault = nil
}

// LatencyTable returns the latency table used by the pipeline.
func (p *Pipeline) LatencyTable() *latency.Table {
	return p.latencyTable
}
