package regalloc

import (
	"fmt"
	"math"

	"github.com/mna/corejit/jit/ir"
	"golang.org/x/exp/slices"
)

// MoveKind classifies one entry of a Decision's Moves, the code-generation
// step that turns a register assignment into the actual load/copy/spill/
// exchange sequence an instruction needs.
type MoveKind uint8

const (
	MoveLoad  MoveKind = iota // materialize a value from its frame slot (or as a constant) into a register
	MoveCopy                  // register-to-register copy
	MoveSpill                 // write a register's contents back to its frame slot, evicting it
	MoveExch                  // x87 EXCH_TOP
	MovePop                   // x87 POP
)

func (k MoveKind) String() string {
	switch k {
	case MoveLoad:
		return "load"
	case MoveCopy:
		return "copy"
	case MoveSpill:
		return "spill"
	case MoveExch:
		return "exch"
	case MovePop:
		return "pop"
	default:
		return "move?"
	}
}

// Move is one step of the ordered series Allocate emits to get an
// instruction's operands into their chosen registers.
type Move struct {
	Kind          MoveKind
	Value         ir.ValueID
	FromReg, ToReg int
}

// Decision is Allocate's result: the physical register chosen for each
// operand slot (-1 if the slot was unused) and the ordered moves needed to
// realize that choice.
type Decision struct {
	Dest, Value1, Value2 int
	Scratch              []int
	Moves                []Move
}

// Allocate runs the operand-driven local register-allocation algorithm
// against the current contents of f, for one instruction described by
// plan. It both returns the Decision and commits the new register-file
// state to f, so callers must call Allocate once per instruction, in
// program order.
func Allocate(f *File, plan *RegisterPlan) (*Decision, error) {
	// Assign pre-constrained registers first (a single-candidate allowed
	// set leaves nothing to decide).
	assignPreConstrained(plan)

	// Pick argument order for commutative/reversible ops.
	selectOperandOrder(plan)

	claimed := map[int]bool{}
	markClaimed := func(slot *OperandSlot) {
		if slot.chosen != -1 {
			claimed[slot.chosen] = true
		}
	}
	markClaimed(&plan.Dest)
	markClaimed(&plan.Value1)
	markClaimed(&plan.Value2)
	for i := range plan.Scratch {
		if plan.Scratch[i].chosen != -1 {
			claimed[plan.Scratch[i].chosen] = true
		}
	}

	// Steps 3–4: cost-driven selection, Value1 then Value2 (so step 5's
	// duplicate detection can compare Value2 against Value1's pick) then
	// Dest (so a FREE_DEST plan can see which source register just died).
	if err := chooseOperand(f, plan, &plan.Value1, nil, claimed); err != nil {
		return nil, err
	}
	if err := chooseOperand(f, plan, &plan.Value2, &plan.Value1, claimed); err != nil {
		return nil, err
	}
	if err := chooseOperand(f, plan, &plan.Dest, nil, claimed); err != nil {
		return nil, err
	}
	for i := range plan.Scratch {
		s := &plan.Scratch[i]
		if s.chosen != -1 {
			continue
		}
		reg, err := chooseRegister(f, plan, s.Allowed, ir.NoValue, claimed)
		if err != nil {
			return nil, fmt.Errorf("regalloc: scratch slot %d: %w", i, err)
		}
		s.chosen = reg
		claimed[reg] = true
	}

	// Step 6: generate the move sequence, step 7: commit.
	dec := &Decision{Dest: -1, Value1: -1, Value2: -1}
	dec.Moves = append(dec.Moves, realizeSlot(f, &plan.Value1)...)
	dec.Value1 = plan.Value1.chosen
	dec.Moves = append(dec.Moves, realizeSlot(f, &plan.Value2)...)
	dec.Value2 = plan.Value2.chosen
	dec.Moves = append(dec.Moves, realizeDest(f, &plan.Dest)...)
	dec.Dest = plan.Dest.chosen

	for i := range plan.Scratch {
		dec.Scratch = append(dec.Scratch, plan.Scratch[i].chosen)
	}

	return dec, nil
}

func assignPreConstrained(plan *RegisterPlan) {
	for _, slot := range []*OperandSlot{&plan.Dest, &plan.Value1, &plan.Value2} {
		if slot.inUse() && len(slot.Allowed) == 1 && slot.chosen == -1 {
			slot.chosen = slot.Allowed[0]
		}
	}
	for i := range plan.Scratch {
		s := &plan.Scratch[i]
		if len(s.Allowed) == 1 && s.chosen == -1 {
			s.chosen = s.Allowed[0]
		}
	}
}

// selectOperandOrder picks the argument order: for a commutative or
// reversible op, prefer making the operand that dies here value1, since a
// FREE_DEST plan typically reuses value1's register for the destination,
// saving a copy.
func selectOperandOrder(plan *RegisterPlan) {
	if plan.Flags&(FlagCommutative|FlagReversible) == 0 {
		return
	}
	if plan.Value1.inUse() && plan.Value2.inUse() && plan.Value1.Live && !plan.Value2.Live {
		plan.Value1, plan.Value2 = plan.Value2, plan.Value1
	}
}

// chooseOperand first checks for a duplicate (two operand slots holding
// the same value, sharing one assignment) then falls back to a
// cost-driven pick for one operand slot. dup, if non-nil, is the operand
// slot to check for value equality (Value2 checks against Value1).
func chooseOperand(f *File, plan *RegisterPlan, slot, dup *OperandSlot, claimed map[int]bool) error {
	if !slot.inUse() || slot.chosen != -1 {
		return nil
	}
	if dup != nil && dup.inUse() && dup.chosen != -1 && dup.Value == slot.Value &&
		!dup.EarlyClobber && !slot.EarlyClobber {
		slot.chosen = dup.chosen
		return nil
	}

	reg, err := chooseRegister(f, plan, slot.Allowed, slot.Value, claimed)
	if err != nil {
		return err
	}
	slot.chosen = reg
	claimed[reg] = true
	return nil
}

// chooseRegister picks the candidate of minimum total cost over the
// allowed set, breaking ties by largest age (the candidate least recently
// touched wins).
func chooseRegister(f *File, plan *RegisterPlan, allowed []int, value ir.ValueID, claimed map[int]bool) (int, error) {
	candidates := allowed
	if len(candidates) == 0 {
		candidates = allRegs(f.NumRegs())
	} else {
		candidates = slices.Clone(candidates)
	}
	// Sorted so that multiple empty (equally stale) candidates break ties
	// deterministically on the lowest register number, independent of the
	// caller-supplied Allowed order.
	slices.Sort(candidates)

	best, bestCost, bestAge := -1, math.MaxInt, -1
	for _, reg := range candidates {
		if plan.Flags&FlagBranch != 0 && f.isGlobal(reg) {
			continue
		}
		cost := f.candidateCost(reg, value, claimed[reg])
		age := f.age(reg)
		if best == -1 || cost < bestCost || (cost == bestCost && age > bestAge) {
			best, bestCost, bestAge = reg, cost, age
		}
	}
	if best == -1 {
		return -1, fmt.Errorf("regalloc: no candidate register available (ill-formed rule)")
	}
	return best, nil
}

func allRegs(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// age returns how long ago reg was last touched (larger = staler); an
// empty register is treated as infinitely stale so it is always preferred
// on a cost tie.
func (f *File) age(reg int) int {
	e := f.regs[reg]
	if e.state != stateHolds {
		return math.MaxInt
	}
	return f.clock - e.age
}

// realizeSlot generates the moves needed to bring a read (Value1/Value2)
// operand into its chosen register and commits the new file state.
func realizeSlot(f *File, slot *OperandSlot) []Move {
	if !slot.inUse() {
		return nil
	}
	reg := slot.chosen
	var moves []Move

	if occVal, occupied := f.Contents(reg); occupied && occVal != slot.Value {
		if !f.regs[reg].dead {
			moves = append(moves, Move{Kind: MoveSpill, Value: occVal, FromReg: reg})
			f.Spill(reg)
		}
		f.Free(reg)
	}

	if curReg, resident := f.Locate(slot.Value); resident {
		if curReg != reg {
			moves = append(moves, Move{Kind: MoveCopy, Value: slot.Value, FromReg: curReg, ToReg: reg})
			f.Free(curReg)
			f.Assign(reg, slot.Value)
		} else {
			f.Use(reg)
		}
	} else {
		moves = append(moves, Move{Kind: MoveLoad, Value: slot.Value, ToReg: reg})
		f.Assign(reg, slot.Value)
	}

	if !slot.Live {
		f.MarkDead(reg)
	}
	return moves
}

// realizeDest generates the moves needed to make room for a written
// (Dest) operand's register and commits it, per step 7: "if an output
// value has NEXT_USE, record it in a register, otherwise spill it
// directly."
func realizeDest(f *File, slot *OperandSlot) []Move {
	if !slot.inUse() {
		return nil
	}
	reg := slot.chosen
	var moves []Move

	if occVal, occupied := f.Contents(reg); occupied && occVal != slot.Value {
		if !f.regs[reg].dead {
			moves = append(moves, Move{Kind: MoveSpill, Value: occVal, FromReg: reg})
		}
		f.Free(reg)
	}

	f.Assign(reg, slot.Value)
	if !slot.Live {
		// No recorded future use: spill directly and release the register
		// rather than let it linger.
		moves = append(moves, Move{Kind: MoveSpill, Value: slot.Value, FromReg: reg})
		f.Spill(reg)
		f.Free(reg)
	}
	return moves
}
