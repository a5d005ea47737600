package emu

import "github.com/sarchlab/softcore/insts"

// Environment call numbers.
const (
	RISCVSyscallExit      uint32 = 93 // exit(a0)
	RISCVSyscallExitGroup uint32 = 94 // exit_group(a0)
	MIPSSyscallExit       uint32 = 10 // exit with status 0
	MIPSSyscallExit2      uint32 = 17 // exit($a0)
)

// ENOSYS is returned in the result register for unknown calls.
const ENOSYS = 38

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Unsupported is set for call numbers the handler does not know.
	Unsupported bool
}

// SyscallHandler handles ECALL/SYSCALL and EBREAK/BREAK.
type SyscallHandler interface {
	// Handle executes the call indicated by the register file state.
	// RISC-V passes the call number in a7 and arguments from a0; MIPS
	// uses $v0 and $a0.
	Handle(inst *insts.Instruction) SyscallResult
}

// DefaultSyscallHandler implements program exit for both ISAs. Breakpoints
// halt with the current first argument register as exit code.
type DefaultSyscallHandler struct {
	isa     insts.ISA
	regFile *RegFile
	abi     insts.ABI
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(isa insts.ISA, regFile *RegFile) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		isa:     isa,
		regFile: regFile,
		abi:     insts.ABIFor(isa),
	}
}

// Handle executes the call.
func (h *DefaultSyscallHandler) Handle(inst *insts.Instruction) SyscallResult {
	arg0 := int64(int32(h.regFile.ReadReg(h.abi.A0)))

	if inst.Op == insts.OpEBREAK {
		return SyscallResult{Exited: true, ExitCode: arg0}
	}

	num := uint32(h.regFile.ReadReg(h.abi.Syscall))

	if h.isa == insts.MIPS {
		switch num {
		case MIPSSyscallExit:
			return SyscallResult{Exited: true, ExitCode: 0}
		case MIPSSyscallExit2:
			return SyscallResult{Exited: true, ExitCode: arg0}
		}
		h.regFile.WriteReg(h.abi.Syscall, errnoResult(ENOSYS))
		return SyscallResult{Unsupported: true}
	}

	switch num {
	case RISCVSyscallExit, RISCVSyscallExitGroup:
		return SyscallResult{Exited: true, ExitCode: arg0}
	}
	h.regFile.WriteReg(h.abi.A0, errnoResult(ENOSYS))
	return SyscallResult{Unsupported: true}
}

// errnoResult encodes -errno as a register value.
func errnoResult(errno int32) uint64 {
	return uint64(uint32(-errno))
}
