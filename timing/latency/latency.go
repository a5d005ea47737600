// Package latency provides the execute-stage timing model and the bus target
// service times used by the cycle-accurate core.
package latency

import (
	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the number of cycles the instruction occupies the
// Execute stage.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Class {
	case insts.ClassALU:
		return t.config.ALULatency
	case insts.ClassMulDiv:
		if emu.IsDivide(inst.Op) {
			return t.config.DivideLatency
		}
		return t.config.MultiplyLatency
	case insts.ClassBranch, insts.ClassJump:
		return t.config.BranchLatency
	case insts.ClassLoad:
		return t.config.LoadLatency
	case insts.ClassStore:
		return t.config.StoreLatency
	case insts.ClassSystem:
		return t.config.SyscallLatency
	default:
		return 1
	}
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return inst != nil && inst.Mem != insts.MemNone
}

// IsLoadOp returns true if the instruction is a load operation.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	return inst != nil && inst.Mem == insts.MemLoad
}

// IsStoreOp returns true if the instruction is a store operation.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	return inst != nil && inst.Mem == insts.MemStore
}

// IsBranchOp returns true if the instruction redirects control flow.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	return inst != nil && inst.IsControl()
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
