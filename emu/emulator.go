package emu

import (
	"fmt"

	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// PC and Inst identify the executed instruction. Inst is nil when the
	// fetch itself faulted.
	PC   uint32
	Inst *insts.Instruction

	// Exited is true if the program terminated.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Fault is set when the instruction aborted. Architectural state is
	// left as it was before the instruction.
	Fault *faults.Fault
}

// AddressCheck validates a data or fetch address. It returns BusOK for
// addresses that decode to a target.
type AddressCheck func(addr uint32) faults.BusCode

// Emulator executes instructions one at a time with no timing. It is the
// reference model the pipeline is checked against.
type Emulator struct {
	isa            insts.ISA
	regFile        *RegFile
	memory         *Memory
	decoder        insts.Decoder
	syscallHandler SyscallHandler
	addressCheck   AddressCheck

	stackPointer    uint32
	hasStackPointer bool

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
	exitCode         int64
	fault            *faults.Fault
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithISA selects the instruction set. The default is RISC-V.
func WithISA(isa insts.ISA) EmulatorOption {
	return func(e *Emulator) {
		e.isa = isa
	}
}

// WithMemory uses an existing memory instead of a fresh one.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithStackPointer sets the initial stack pointer value.
func WithStackPointer(sp uint32) EmulatorOption {
	return func(e *Emulator) {
		e.stackPointer = sp
		e.hasStackPointer = true
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithAddressCheck makes accesses to addresses rejected by check fault
// with BusFault.
func WithAddressCheck(check AddressCheck) EmulatorOption {
	return func(e *Emulator) {
		e.addressCheck = check
	}
}

// NewEmulator creates a new functional emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory()
	}
	e.decoder = insts.NewDecoder(e.isa)
	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.isa, e.regFile)
	}
	if e.hasStackPointer {
		e.regFile.WriteReg(insts.ABIFor(e.isa).SP, uint64(e.stackPointer))
	}

	return e
}

// ISA returns the instruction set being executed.
func (e *Emulator) ISA() insts.ISA {
	return e.isa
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// SetPC sets the address of the next instruction.
func (e *Emulator) SetPC(pc uint32) {
	e.regFile.PC = pc
}

// Halted reports whether the program exited or faulted.
func (e *Emulator) Halted() bool {
	return e.halted
}

// ExitCode returns the exit status once halted.
func (e *Emulator) ExitCode() int64 {
	return e.exitCode
}

// Fault returns the fault that stopped execution, if any.
func (e *Emulator) Fault() *faults.Fault {
	return e.fault
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	pc := e.regFile.PC
	if e.halted {
		return StepResult{PC: pc, Exited: e.fault == nil, ExitCode: e.exitCode, Fault: e.fault}
	}

	result := e.step(pc)
	if result.Fault != nil {
		e.halted = true
		e.fault = result.Fault
		return result
	}

	e.instructionCount++
	if result.Exited {
		e.halted = true
		e.exitCode = result.ExitCode
	}

	return result
}

// Run executes until the program exits. It returns an error if the program
// faults or the instruction limit is reached.
func (e *Emulator) Run() (int64, error) {
	for !e.halted {
		if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
			return 0, fmt.Errorf("instruction limit %d reached at PC %08x",
				e.maxInstructions, e.regFile.PC)
		}
		e.Step()
	}

	if e.fault != nil {
		return 0, e.fault
	}
	return e.exitCode, nil
}

func (e *Emulator) step(pc uint32) StepResult {
	result := StepResult{PC: pc}

	if !Aligned(pc, 4) {
		result.Fault = faults.NewMisaligned(pc, pc)
		return result
	}
	if code := e.checkAddress(pc); code != faults.BusOK {
		result.Fault = faults.NewBusFault(pc, pc, code)
		return result
	}

	inst := e.decoder.Decode(e.memory.Read32(pc))
	result.Inst = inst
	if !inst.IsLegal() {
		result.Fault = faults.NewIllegalInstruction(pc, inst.Word)
		return result
	}

	a := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)
	b := SecondOperand(inst, rs2)
	next := pc + 4

	switch inst.Class {
	case insts.ClassALU, insts.ClassMulDiv:
		e.regFile.WriteReg(inst.Rd, ExecuteALU(inst, pc, a, b))

	case insts.ClassBranch:
		next = NextPC(inst, pc, a, b)

	case insts.ClassJump:
		e.regFile.WriteReg(inst.Rd, ExecuteALU(inst, pc, a, b))
		next = BranchTarget(inst, pc, a)

	case insts.ClassLoad:
		addr := EffectiveAddress(inst, a)
		if f := e.checkData(pc, addr, inst.Size); f != nil {
			result.Fault = f
			return result
		}
		word := e.memory.Read32(WordAddr(addr))
		e.regFile.WriteReg(inst.Rd, uint64(ExtractLoad(word, addr, inst.Size, inst.Signed)))

	case insts.ClassStore:
		addr := EffectiveAddress(inst, a)
		if f := e.checkData(pc, addr, inst.Size); f != nil {
			result.Fault = f
			return result
		}
		word, mask := StoreLanes(addr, inst.Size, uint32(rs2))
		e.memory.WriteMasked(WordAddr(addr), word, mask)

	case insts.ClassSystem:
		sys := e.syscallHandler.Handle(inst)
		result.Exited = sys.Exited
		result.ExitCode = sys.ExitCode
	}

	e.regFile.PC = next
	return result
}

func (e *Emulator) checkData(pc, addr uint32, size uint8) *faults.Fault {
	if !Aligned(addr, size) {
		return faults.NewMisaligned(pc, addr)
	}
	if code := e.checkAddress(addr); code != faults.BusOK {
		return faults.NewBusFault(pc, addr, code)
	}
	return nil
}

func (e *Emulator) checkAddress(addr uint32) faults.BusCode {
	if e.addressCheck == nil {
		return faults.BusOK
	}
	return e.addressCheck(addr)
}
