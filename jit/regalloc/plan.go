// Package regalloc implements the per-instruction, operand-driven register
// allocator: given a RegisterPlan describing an instruction's operand
// slots, scratch needs, and shape flags, it picks
// physical registers by minimum-cost candidate search, generates the
// spill/copy/exchange sequence to get values there, and commits the new
// register-file state.
//
// This mirrors the role the teacher's lang/machine package plays for its
// own stack-machine dispatch (a small table-driven core plus an explicit
// per-value state machine) but reasons about physical registers instead of
// an operand stack.
package regalloc

import "github.com/mna/corejit/jit/ir"

// Flag is the per-plan shape bit carried in RegisterPlan.Flags, matching
// libjit's jit-reg-alloc.h flag set (JIT_REG_*) for the local allocator.
type Flag uint16

const (
	FlagTernary     Flag = 1 << iota // three inputs, no separate dest
	FlagBranch                       // plan must not break global registers
	FlagCommutative                  // value1/value2 may be swapped freely
	FlagStack                        // register-stack (x87) operand
	FlagX87Arith                     // stack arithmetic with an in-stack form
	FlagReversible                   // a reversed-operand encoding exists
	FlagFreeDest                     // dest is a fresh value, no prior content to preserve
	FlagCopy                         // plan is a pure register-to-register copy
	FlagClobberAll                   // every register not explicitly allowed is clobbered
)

// OperandSlot describes one of a RegisterPlan's three operand roles: an
// allowed register set plus the clobber/early-clobber/live/used bits that
// constrain what Allocate may do with it.
type OperandSlot struct {
	Value   ir.ValueID
	Allowed []int // candidate physical registers, in no particular order; empty means any register (an unused slot has Value ir.NoValue)

	Clobber      bool // instruction overwrites this slot's register
	EarlyClobber bool // clobbered before other operands are read, so it cannot share a register with them
	Live         bool // value is still live after this instruction
	Used         bool // value is read by this instruction

	chosen int // -1 until Allocate assigns it
}

func (s *OperandSlot) inUse() bool { return s.Value != ir.NoValue }

// NewOperandSlot returns an OperandSlot for value v, candidate registers
// allowed, used/live as given. Pass ir.NoValue for an unused slot.
func NewOperandSlot(v ir.ValueID, allowed []int, clobber, earlyClobber, live, used bool) OperandSlot {
	return OperandSlot{
		Value: v, Allowed: allowed, Clobber: clobber,
		EarlyClobber: earlyClobber, Live: live, Used: used, chosen: -1,
	}
}

// ScratchSlot is one of a RegisterPlan's up-to-six scratch register needs.
type ScratchSlot struct {
	Allowed []int

	chosen int
}

// NewScratchSlot returns a ScratchSlot constrained to the given candidate
// registers (or any register, if allowed is empty).
func NewScratchSlot(allowed []int) ScratchSlot {
	return ScratchSlot{Allowed: allowed, chosen: -1}
}

// RegisterPlan is the per-instruction allocation request processed by
// Allocate.
type RegisterPlan struct {
	Opcode ir.Opcode
	Flags  Flag

	Dest, Value1, Value2 OperandSlot
	Scratch              []ScratchSlot // at most 6, matching libjit's fixed scratch array
}

// PlanFromInstruction derives a RegisterPlan's operand slots (Value,
// Live, Used) from in's IR-level operand flags, leaving Allowed/Clobber/
// EarlyClobber/Flags for the caller (normally a jit/backend.Backend
// implementation, which knows the target's constraints) to fill in. This
// is the seam between the opcode-agnostic IR and the target-specific
// allocation rule, matching how a backend's gen_insn delegates to the
// allocator with a backend-supplied plan.
func PlanFromInstruction(in *ir.Instruction) *RegisterPlan {
	p := &RegisterPlan{Opcode: in.Opcode}
	if in.Opcode.IsCommutative() {
		p.Flags |= FlagCommutative
	}
	if in.Opcode.IsConditionalBranch() || in.Opcode == ir.BR {
		p.Flags |= FlagBranch
	}

	p.Dest = slotFromOperand(in.Dest, in.DestFlags, false)
	p.Value1 = slotFromOperand(in.Value1, in.Value1Flags, true)
	p.Value2 = slotFromOperand(in.Value2, in.Value2Flags, true)
	p.Dest.Clobber = p.Dest.inUse()
	return p
}

// slotFromOperand builds an OperandSlot from one of an Instruction's
// (ValueID, OperandFlags) pairs. isRead distinguishes Value1/Value2
// (always read) from Dest (always written, never read by this ISA).
func slotFromOperand(v ir.ValueID, flags ir.OperandFlags, isRead bool) OperandSlot {
	s := OperandSlot{Value: ir.NoValue, chosen: -1}
	if flags&ir.FlagIsValue == 0 || v == ir.NoValue {
		return s
	}
	s.Value = v
	s.Live = flags&ir.FlagLive != 0
	s.Used = isRead
	return s
}

// Chosen returns the physical register Allocate picked for this slot, or
// -1 if the slot is unused or Allocate has not run yet.
func (s *OperandSlot) Chosen() int { return s.chosen }

// Chosen returns the physical register Allocate picked for this scratch
// slot, or -1 if unassigned.
func (s *ScratchSlot) Chosen() int { return s.chosen }
