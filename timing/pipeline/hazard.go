package pipeline

import "github.com/sarchlab/softcore/insts"

// ForwardSource indicates where a forwarded value should come from.
type ForwardSource int

const (
	// ForwardNone means no forwarding needed - use register file value.
	ForwardNone ForwardSource = iota
	// ForwardFromEXMEM means forward from EX/MEM pipeline register.
	ForwardFromEXMEM
	// ForwardFromMEMWB means forward from MEM/WB pipeline register.
	ForwardFromMEMWB
)

// ForwardingResult contains forwarding decisions for both source operands.
type ForwardingResult struct {
	ForwardRs1 ForwardSource
	ForwardRs2 ForwardSource
}

// Any reports whether either operand is forwarded.
func (r ForwardingResult) Any() bool {
	return r.ForwardRs1 != ForwardNone || r.ForwardRs2 != ForwardNone
}

// StallResult contains stall and flush control signals.
type StallResult struct {
	// StallIF indicates the IF stage should stall (hold current instruction).
	StallIF bool
	// StallID indicates the ID stage should stall.
	StallID bool
	// FlushIF indicates the IF stage should be flushed (for branch).
	FlushIF bool
	// FlushID indicates the ID stage should be flushed (for branch).
	FlushID bool
}

// HazardUnit detects data hazards and determines forwarding/stall signals.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// DetectForwarding determines where the operands of the instruction in
// ID/EX come from. The EX/MEM producer is younger than the MEM/WB one, so
// it wins when both write the same register.
func (h *HazardUnit) DetectForwarding(
	idex *IDEXRegister,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardingResult {
	result := ForwardingResult{}
	if !idex.Valid {
		return result
	}

	result.ForwardRs1 = h.detectForwardForReg(idex.Rs1, exmem, memwb)
	result.ForwardRs2 = h.detectForwardForReg(idex.Rs2, exmem, memwb)
	return result
}

func (h *HazardUnit) detectForwardForReg(
	reg uint8,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardSource {
	if reg == 0 || reg == insts.RegNone {
		return ForwardNone
	}

	if exmem.Valid && exmem.RegWrite && exmem.Rd == reg {
		// A load in MEM has no value yet; the load-use stall keeps its
		// consumers out of EX until it reaches MEM/WB.
		if exmem.MemToReg {
			return ForwardNone
		}
		return ForwardFromEXMEM
	}

	if memwb.Valid && memwb.RegWrite && memwb.Rd == reg {
		return ForwardFromMEMWB
	}

	return ForwardNone
}

// DetectLoadUseHazard reports whether the instruction waiting in Decode
// reads the destination of a load in Execute.
func (h *HazardUnit) DetectLoadUseHazard(idex *IDEXRegister, next *insts.Instruction) bool {
	if !idex.Valid || !idex.MemRead || !idex.RegWrite || next == nil {
		return false
	}
	if idex.Rd == 0 {
		return false
	}
	return next.Reads(idex.Rd)
}

// ComputeStalls determines the stall and flush signals. A taken branch in
// Execute flushes both younger slots.
func (h *HazardUnit) ComputeStalls(stall bool, branchTaken bool) StallResult {
	result := StallResult{}

	if stall {
		result.StallIF = true
		result.StallID = true
	}

	if branchTaken {
		result.FlushIF = true
		result.FlushID = true
	}

	return result
}

// GetForwardedValue returns the operand value for the given source.
func (h *HazardUnit) GetForwardedValue(
	source ForwardSource,
	originalValue uint64,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) uint64 {
	switch source {
	case ForwardFromEXMEM:
		return exmem.ALUResult
	case ForwardFromMEMWB:
		return memwb.Result()
	default:
		return originalValue
	}
}
